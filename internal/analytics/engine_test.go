package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/timeparse"
	"traceability-dashboard/internal/types"
)

// stubSource 内存数据源，ReadAllFn 可覆盖读取行为
type stubSource struct {
	preps     map[string][]types.PrepRecord
	posts     map[string]map[string]map[string]*types.PostRecord // station -> field -> value
	readErr   map[string]error
	ReadAllFn func(ctx context.Context, d station.Descriptor) ([]types.PrepRecord, error)
}

func (s *stubSource) ReadAll(ctx context.Context, d station.Descriptor) ([]types.PrepRecord, error) {
	if s.ReadAllFn != nil {
		return s.ReadAllFn(ctx, d)
	}
	if err := s.readErr[d.ID]; err != nil {
		return nil, err
	}
	return s.preps[d.ID], nil
}

func (s *stubSource) ResolvePost(_ context.Context, d station.Descriptor, field, value string) (*types.PostRecord, error) {
	return s.posts[d.ID][field][value], nil
}

func (s *stubSource) addPost(stationID, field, value string, p *types.PostRecord) {
	if s.posts == nil {
		s.posts = make(map[string]map[string]map[string]*types.PostRecord)
	}
	if s.posts[stationID] == nil {
		s.posts[stationID] = make(map[string]map[string]*types.PostRecord)
	}
	if s.posts[stationID][field] == nil {
		s.posts[stationID][field] = make(map[string]*types.PostRecord)
	}
	s.posts[stationID][field][value] = p
}

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func textAt(t time.Time) types.RawTime {
	return types.TextTime(t.Format(timeparse.DisplayLayout))
}

func newTestEngine(t *testing.T, src RecordSource, detailLimit int) *Engine {
	t.Helper()
	reg, err := station.NewRegistry(station.DefaultCatalog())
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	calc := NewOEECalculator(DefaultLoadingTime, station.DefaultStandardCycleTimes())
	return NewEngine(reg, src, timeparse.New(time.UTC), calc, Options{DetailLimit: detailLimit}, logger)
}

func dayRange() Query {
	return Query{Start: t0.Add(-12 * time.Hour), End: t0.Add(12 * time.Hour), Station: FilterAll, Status: FilterAll}
}

func stationRow(t *testing.T, agg *Aggregate, id string) StationStats {
	t.Helper()
	for _, row := range agg.Stations {
		if row.ID == id {
			return row
		}
	}
	t.Fatalf("station %s not in aggregate", id)
	return StationStats{}
}

func assertCountsConsistent(t *testing.T, agg *Aggregate) {
	t.Helper()
	check := func(c Counts) {
		assert.Equal(t, c.Total, c.OK+c.NG+c.Pending)
	}
	check(agg.Summary.Counts)
	for _, row := range agg.Stations {
		check(row.Counts)
	}
	for _, row := range agg.Models {
		check(row.Counts)
	}
	shiftTotal := 0
	for _, row := range agg.Shifts {
		check(row.Counts)
		shiftTotal += row.Total
	}
	assert.Equal(t, agg.Summary.Total, shiftTotal)
}

func TestCollect_MatchedPartCountsOKWithCycleTime(t *testing.T) {
	src := &stubSource{preps: map[string][]types.PrepRecord{
		"cnc_1": {{ID: 1, Time: textAt(t0), QR: types.Ptr("CNC1000001"), ModelName: types.Ptr("PX-100")}},
	}}
	src.addPost("cnc_1", "qr_data", "CNC1000001", &types.PostRecord{ID: 9, Time: textAt(t0.Add(2 * time.Minute)), Status: types.Ptr("OK")})

	agg, err := newTestEngine(t, src, 0).Collect(context.Background(), dayRange())
	require.NoError(t, err)

	assert.Equal(t, Counts{Total: 1, OK: 1}, agg.Summary.Counts)
	assert.Equal(t, 100.0, agg.Summary.YieldRate)
	assert.InDelta(t, 2.0, agg.Summary.AvgCycleTime, 0.001)

	row := stationRow(t, agg, "cnc_1")
	assert.Equal(t, Counts{Total: 1, OK: 1}, row.Counts)
	assert.True(t, row.Active)

	require.Len(t, agg.CycleTimes, 1)
	assert.Equal(t, "2024-03-04", agg.CycleTimes[0].Date)
	assert.InDelta(t, 2.0, agg.CycleTimes[0].Actual, 0.001)
	assert.InDelta(t, 2.5, agg.CycleTimes[0].Standard, 0.001)

	require.Len(t, agg.Records, 1)
	rec := agg.Records[0]
	assert.Equal(t, "CNC1000001", rec.QR)
	assert.Equal(t, "PX-100", rec.Model)
	assert.Equal(t, types.ShiftA, rec.Shift)
	require.NotNil(t, rec.PostID)
	assert.Equal(t, int64(9), *rec.PostID)
	assertCountsConsistent(t, agg)
}

func TestCollect_UnmatchedPartIsPendingWithoutCycleSample(t *testing.T) {
	src := &stubSource{preps: map[string][]types.PrepRecord{
		"cnc_1": {{ID: 1, Time: textAt(t0), QR: types.Ptr("CNC1000002")}},
	}}

	agg, err := newTestEngine(t, src, 0).Collect(context.Background(), dayRange())
	require.NoError(t, err)

	assert.Equal(t, Counts{Total: 1, Pending: 1}, agg.Summary.Counts)
	assert.Empty(t, agg.CycleTimes)
	assert.Zero(t, agg.Summary.CycleSamples)
	assert.Equal(t, 0.0, agg.Summary.YieldRate)
	require.Len(t, agg.Models, 1)
	assert.Equal(t, types.PlaceholderModel, agg.Models[0].Model)
	assertCountsConsistent(t, agg)
}

func TestCollect_ShiftBoundaries(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) types.RawTime { return textAt(day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)) }
	src := &stubSource{preps: map[string][]types.PrepRecord{
		"deburring": {
			{ID: 1, Time: at(13, 59), QR: types.Ptr("a")},
			{ID: 2, Time: at(14, 0), QR: types.Ptr("b")},
			{ID: 3, Time: at(23, 30), QR: types.Ptr("c")},
			{ID: 4, Time: at(5, 30), QR: types.Ptr("d")},
		},
	}}

	q := Query{Start: day, End: day.Add(24*time.Hour - time.Second), Station: "deburring"}
	agg, err := newTestEngine(t, src, 0).Collect(context.Background(), q)
	require.NoError(t, err)

	shifts := map[string]types.Shift{}
	for _, r := range agg.Records {
		shifts[r.QR] = r.Shift
	}
	assert.Equal(t, map[string]types.Shift{"a": types.ShiftA, "b": types.ShiftB, "c": types.ShiftC, "d": types.ShiftC}, shifts)

	require.Len(t, agg.Shifts, 3)
	assert.Equal(t, 1, agg.Shifts[0].Total)
	assert.Equal(t, 1, agg.Shifts[1].Total)
	assert.Equal(t, 2, agg.Shifts[2].Total)

	// 单工站过滤时使用该工站的工序代码
	assert.Equal(t, station.OpDeburring, agg.OEE.Operation)
	assert.Equal(t, 1.0, agg.OEE.StandardCycleTime)
}

func TestCollect_FiltersAndRange(t *testing.T) {
	src := &stubSource{preps: map[string][]types.PrepRecord{
		"cnc_1": {
			{ID: 1, Time: textAt(t0), QR: types.Ptr("q1"), ModelName: types.Ptr("PX-100")},
			{ID: 2, Time: textAt(t0.Add(time.Minute)), QR: types.Ptr("q2"), ModelName: types.Ptr("PX-200")},
			{ID: 3, Time: textAt(t0.Add(48 * time.Hour)), QR: types.Ptr("q3"), ModelName: types.Ptr("PX-100")},
			{ID: 4, Time: types.TextTime("garbage"), QR: types.Ptr("q4")},
		},
	}}
	src.addPost("cnc_1", "qr_data", "q1", &types.PostRecord{ID: 1, Status: types.Ptr("NG")})
	src.addPost("cnc_1", "qr_data", "q2", &types.PostRecord{ID: 2, Status: types.Ptr("OK")})
	e := newTestEngine(t, src, 0)

	agg, err := e.Collect(context.Background(), dayRange())
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 2, OK: 1, NG: 1}, agg.Summary.Counts)
	assert.Equal(t, 50.0, agg.Summary.YieldRate)

	q := dayRange()
	q.Status = "ng"
	agg, err = e.Collect(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 1, NG: 1}, agg.Summary.Counts)

	q = dayRange()
	q.Model = "PX-200"
	agg, err = e.Collect(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 1, OK: 1}, agg.Summary.Counts)

	// 不设界时包含所有可解析时间的记录
	agg, err = e.Collect(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, agg.Summary.Total)
}

func TestCollect_UnknownStationYieldsEmptyAggregate(t *testing.T) {
	q := dayRange()
	q.Station = "nope"
	agg, err := newTestEngine(t, &stubSource{}, 0).Collect(context.Background(), q)
	require.NoError(t, err)

	assert.Zero(t, agg.Summary.Total)
	assert.NotNil(t, agg.Stations)
	assert.NotNil(t, agg.Models)
	assert.NotNil(t, agg.Records)
	assert.Len(t, agg.Shifts, 3)
	assert.Len(t, agg.Hourly, 24)
	assert.Len(t, agg.OEE.Shifts, 3)
	assert.Empty(t, agg.OEE.Operation)
	assert.Equal(t, fallbackCycleTime, agg.OEE.StandardCycleTime)
}

func TestCollect_ReadFailureSkipsStation(t *testing.T) {
	src := &stubSource{
		preps: map[string][]types.PrepRecord{
			"cnc_2": {{ID: 1, Time: textAt(t0), QR: types.Ptr("x")}},
		},
		readErr: map[string]error{"cnc_1": errors.New("no such column: qr_data")},
	}
	agg, err := newTestEngine(t, src, 0).Collect(context.Background(), dayRange())
	require.NoError(t, err)

	assert.Equal(t, 1, agg.Summary.Total)
	for _, row := range agg.Stations {
		assert.NotEqual(t, "cnc_1", row.ID)
	}
	assert.Equal(t, 22, agg.Summary.TotalStations)
	assert.Equal(t, 1, agg.Summary.ActiveStations)
}

func TestCollect_CancellationDiscardsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	src := &stubSource{ReadAllFn: func(_ context.Context, d station.Descriptor) ([]types.PrepRecord, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return []types.PrepRecord{{ID: 1, Time: textAt(t0), QR: types.Ptr("x")}}, nil
	}}

	agg, err := newTestEngine(t, src, 0).Collect(ctx, dayRange())
	assert.Nil(t, agg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 23)
}

func TestCollect_DetailRecordsKeepNewestInAscendingOrder(t *testing.T) {
	var preps []types.PrepRecord
	for i := 0; i < 5; i++ {
		// 倒序写入，引擎负责排序
		preps = append(preps, types.PrepRecord{ID: int64(5 - i), Time: textAt(t0.Add(time.Duration(4-i) * time.Minute)), QR: types.Ptr(string(rune('a' + 4 - i)))})
	}
	src := &stubSource{preps: map[string][]types.PrepRecord{"honing_1": preps}}

	agg, err := newTestEngine(t, src, 3).Collect(context.Background(), dayRange())
	require.NoError(t, err)
	require.Len(t, agg.Records, 3)
	assert.Equal(t, []string{"c", "d", "e"}, []string{agg.Records[0].QR, agg.Records[1].QR, agg.Records[2].QR})
	assert.Equal(t, 5, agg.Summary.Total)
}

func TestCollect_TimelineHourlyAndIdempotence(t *testing.T) {
	day2 := t0.Add(24 * time.Hour)
	src := &stubSource{preps: map[string][]types.PrepRecord{
		"painting": {
			{ID: 1, Time: textAt(day2), QRHousing: types.Ptr("H1"), ModelHousing: types.Ptr("HS-1")},
			{ID: 2, Time: textAt(t0), QRHousing: types.Ptr("H2"), ModelHousing: types.Ptr("HS-1")},
			{ID: 3, Time: textAt(t0.Add(time.Hour)), QRHousing: types.Ptr("H3"), ModelHousing: types.Ptr("HS-2")},
		},
		"op40a_assembly": {
			{
				ID: 1, Time: types.NativeTime(t0), QRInternal: types.Ptr("I1"), ModelInternal: types.Ptr("AS-1"),
				QRExternal: types.Ptr("E1"), QRHousing: types.Ptr("H1"), Status: types.Ptr("OK"),
				ExternalTime: types.NativeTime(t0.Add(time.Minute)), HousingTime: types.NativeTime(t0.Add(90 * time.Second)),
			},
		},
	}}
	src.addPost("painting", "qr_data_housing", "H1", &types.PostRecord{ID: 1, Status: types.Ptr("OK")})
	src.addPost("painting", "qr_data_housing", "H2", &types.PostRecord{ID: 2, Status: types.Ptr("NG")})
	src.addPost("painting", "qr_data_housing", "H3", &types.PostRecord{ID: 3, Status: types.Ptr("OK")})
	e := newTestEngine(t, src, 0)
	q := Query{Start: t0.Add(-time.Hour), End: day2.Add(time.Hour)}

	agg, err := e.Collect(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, []DailyCount{{Date: "2024-03-04", OK: 2, NG: 1}, {Date: "2024-03-05", OK: 1}}, agg.Timeline)
	assert.Equal(t, []DailyYield{{Date: "2024-03-04", YieldRate: 66.67}, {Date: "2024-03-05", YieldRate: 100}}, agg.YieldTrend)
	assert.Equal(t, 3, agg.Hourly[9].Count)
	assert.Equal(t, 1, agg.Hourly[10].Count)

	// 装配工站取外壳与外部时间中较晚者
	require.Len(t, agg.CycleTimes, 1)
	assert.InDelta(t, 1.5, agg.CycleTimes[0].Actual, 0.001)

	models := map[string]int{}
	for _, m := range agg.Models {
		models[m.Model] = m.Total
	}
	assert.Equal(t, map[string]int{"HS-1": 2, "HS-2": 1, "AS-1": 1}, models)
	assertCountsConsistent(t, agg)

	again, err := e.Collect(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, agg, again)
}

func TestCollect_NonPositiveCycleTimeExcluded(t *testing.T) {
	src := &stubSource{preps: map[string][]types.PrepRecord{
		"cnc_1": {{ID: 1, Time: textAt(t0), QR: types.Ptr("q")}},
	}}
	src.addPost("cnc_1", "qr_data", "q", &types.PostRecord{ID: 1, Time: textAt(t0.Add(-time.Minute)), Status: types.Ptr("OK")})

	agg, err := newTestEngine(t, src, 0).Collect(context.Background(), dayRange())
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Summary.OK)
	assert.Empty(t, agg.CycleTimes)
	assert.Nil(t, agg.Records[0].CycleTime)
}
