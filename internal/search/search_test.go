package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceability-dashboard/internal/config"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/store"
	"traceability-dashboard/internal/timeparse"
	"traceability-dashboard/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var base = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func newSQLiteSearcher(t *testing.T) (*Searcher, *store.Store, *station.Registry) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "trace.db")}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	reg, err := station.NewRegistry(station.DefaultCatalog())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx, db, reg.All()))
	st := store.New(db, testLogger())
	return New(reg, st, timeparse.New(time.UTC), 0, testLogger()), st, reg
}

func insert(t *testing.T, st *store.Store, reg *station.Registry, id string, p store.Part) {
	t.Helper()
	d, ok := reg.ByID(id)
	require.True(t, ok, id)
	require.NoError(t, st.InsertPart(context.Background(), d, p))
}

func at(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

func TestSearch_AcrossStations(t *testing.T) {
	s, st, reg := newSQLiteSearcher(t)
	ctx := context.Background()

	insert(t, st, reg, "cnc_1", store.Part{QR: "A1", Model: "PX-100", Loaded: at(0), Finished: types.Ptr(at(2)), Status: types.StatusOK})
	insert(t, st, reg, "cnc_1", store.Part{QR: "A2", Model: "PX-200", Loaded: at(10), Finished: types.Ptr(at(12)), Status: types.StatusNG})
	insert(t, st, reg, "painting", store.Part{QR: "B1", Model: "PX-100", Loaded: at(20), Status: types.StatusPending})
	insert(t, st, reg, "op40a_assembly", store.Part{QR: "C1", Model: "AS-1", Loaded: at(30), Finished: types.Ptr(at(35)), Status: types.StatusOK})

	rows, err := s.Search(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"C1", "B1", "A2", "A1"}, []string{rows[0].QR, rows[1].QR, rows[2].QR, rows[3].QR})

	asm := rows[0]
	assert.Equal(t, types.KindAssembly, asm.Kind)
	assert.Equal(t, "EC1", asm.QRExternal)
	assert.Equal(t, "AS-1", asm.ModelInternal)
	assert.Equal(t, types.StatusOK, asm.Status)

	paint := rows[1]
	assert.Equal(t, "PB1", paint.QRPiston)
	assert.Equal(t, types.StatusPending, paint.Status)
	assert.Nil(t, paint.PostID)
	assert.Equal(t, types.PlaceholderCode, paint.PostTime)
	assert.Equal(t, types.PlaceholderCode, paint.MatchStatus)
	assert.Equal(t, types.PlaceholderModel, paint.ModelInternal)

	cnc := rows[3]
	assert.Equal(t, types.StatusOK, cnc.Status)
	require.NotNil(t, cnc.PostID)
	require.NotNil(t, cnc.Timestamp)
	assert.True(t, cnc.Timestamp.Equal(at(0)))
}

func TestSearch_Filters(t *testing.T) {
	s, st, reg := newSQLiteSearcher(t)
	ctx := context.Background()

	insert(t, st, reg, "cnc_1", store.Part{QR: "A1", Model: "PX-100", Loaded: at(0), Finished: types.Ptr(at(2)), Status: types.StatusOK})
	insert(t, st, reg, "cnc_1", store.Part{QR: "A2", Model: "PX-200", Loaded: at(10), Finished: types.Ptr(at(12)), Status: types.StatusNG})
	insert(t, st, reg, "painting", store.Part{QR: "B1", Model: "PX-100", Loaded: at(20), Status: types.StatusPending})

	qrs := func(rows []Row) []string {
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.QR)
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"qr substring case-insensitive", Filter{QR: "a"}, []string{"A2", "A1"}},
		{"status", Filter{Status: "ng"}, []string{"A2"}},
		{"status all", Filter{Status: "all"}, []string{"B1", "A2", "A1"}},
		{"station", Filter{Station: "painting"}, []string{"B1"}},
		{"model", Filter{Model: "PX-100"}, []string{"B1", "A1"}},
		{"window", Filter{From: at(5), To: at(25)}, []string{"B1", "A2"}},
		{"unknown station", Filter{Station: "nope"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Search(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, qrs(rows))
		})
	}
}

func TestModelNames_DistinctSorted(t *testing.T) {
	s, st, reg := newSQLiteSearcher(t)
	insert(t, st, reg, "cnc_1", store.Part{QR: "A1", Model: "PX-200", Loaded: at(0), Status: types.StatusPending})
	insert(t, st, reg, "cnc_2", store.Part{QR: "A2", Model: "PX-100", Loaded: at(1), Status: types.StatusPending})
	insert(t, st, reg, "cnc_3", store.Part{QR: "A3", Model: types.PlaceholderModel, Loaded: at(2), Status: types.StatusPending})
	insert(t, st, reg, "op40a_assembly", store.Part{QR: "C1", Model: "PX-100", Loaded: at(3), Finished: types.Ptr(at(4)), Status: types.StatusOK})

	names, err := s.ModelNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PX-100", "PX-200"}, names)
}

type stubSource struct {
	QueryFn      func(d station.Descriptor, q store.Query) ([]types.PrepRecord, error)
	ModelNamesFn func(d station.Descriptor) ([]string, error)
	CountByQRFn  func(d station.Descriptor, qr string) (store.QRCount, error)
}

func (s *stubSource) Query(_ context.Context, d station.Descriptor, q store.Query) ([]types.PrepRecord, error) {
	if s.QueryFn == nil {
		panic("QueryFn not set")
	}
	return s.QueryFn(d, q)
}

func (s *stubSource) ModelNames(_ context.Context, d station.Descriptor) ([]string, error) {
	if s.ModelNamesFn == nil {
		panic("ModelNamesFn not set")
	}
	return s.ModelNamesFn(d)
}

func (s *stubSource) CountByQR(_ context.Context, d station.Descriptor, qr string) (store.QRCount, error) {
	if s.CountByQRFn == nil {
		panic("CountByQRFn not set")
	}
	return s.CountByQRFn(d, qr)
}

func (s *stubSource) PrepByID(context.Context, station.Descriptor, int64) (*types.PrepRecord, error) {
	return nil, nil
}

func (s *stubSource) ResolvePost(context.Context, station.Descriptor, string, string) (*types.PostRecord, error) {
	return nil, nil
}

func washingRegistry(t *testing.T) *station.Registry {
	t.Helper()
	reg, err := station.NewRegistry([]station.Descriptor{
		{Name: "Pre Washing (Load)", Operation: station.OpPreWashing, Kind: types.KindWashingLoad, PrepTable: "prewashing_preprocessing"},
		{Name: "Pre Washing (Unload)", Operation: station.OpPreWashing, Kind: types.KindWashingUnload, PostTable: "prewashing_postprocessing"},
	})
	require.NoError(t, err)
	return reg
}

func TestSearch_SkipsFailingStationAndCapsLimit(t *testing.T) {
	var limits []int
	src := &stubSource{
		QueryFn: func(d station.Descriptor, q store.Query) ([]types.PrepRecord, error) {
			limits = append(limits, q.Limit)
			if d.Kind == types.KindWashingLoad {
				return nil, errors.New("relation does not exist")
			}
			return []types.PrepRecord{{ID: 7, Time: types.TextTime(at(0).Format(timeparse.DisplayLayout)), QR: types.Ptr("W1")}}, nil
		},
		ModelNamesFn: func(d station.Descriptor) ([]string, error) {
			if d.Kind == types.KindWashingLoad {
				return nil, errors.New("relation does not exist")
			}
			return []string{"", "PX-100"}, nil
		},
	}
	s := New(washingRegistry(t), src, timeparse.New(time.UTC), 50, testLogger())

	rows, err := s.Search(context.Background(), Filter{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "unload", rows[0].Stage)
	assert.Equal(t, types.StatusOK, rows[0].Status)
	assert.Equal(t, []int{50, 50}, limits)

	names, err := s.ModelNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PX-100"}, names)
}

func TestSearch_Canceled(t *testing.T) {
	src := &stubSource{}
	s := New(washingRegistry(t), src, timeparse.New(time.UTC), 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Search(ctx, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStations_CatalogOrder(t *testing.T) {
	s := New(washingRegistry(t), &stubSource{}, timeparse.New(time.UTC), 0, testLogger())
	opts := s.Stations()
	require.Len(t, opts, 2)
	assert.Equal(t, types.KindWashingLoad, opts[0].Kind)
	assert.Equal(t, "Pre Washing (Unload)", opts[1].Name)
}

func TestChart(t *testing.T) {
	ts := func(min int) *time.Time { v := time.Date(2024, 5, 6, 10, min, 0, 0, time.UTC); return &v }
	rows := []Row{
		{StationID: "cnc_1", StationName: "CNC-1", Model: "PX-100", Status: types.StatusOK, Timestamp: ts(1)},
		{StationID: "cnc_1", StationName: "CNC-1", Model: "PX-200", Status: types.StatusNG, Timestamp: ts(4)},
		{StationID: "painting", StationName: "Painting", Model: types.PlaceholderModel, Status: types.StatusPending, Timestamp: ts(6)},
		{StationID: "painting", StationName: "Painting", Model: "PX-100", Status: types.StatusOK},
	}
	data := Chart(rows, time.UTC)

	require.Len(t, data.Timeline, 2)
	assert.Equal(t, "10:00", data.Timeline[0].Label)
	assert.Equal(t, 2, data.Timeline[0].Total)
	assert.Equal(t, 1, data.Timeline[0].NG)
	assert.Equal(t, "10:05", data.Timeline[1].Label)
	assert.Equal(t, 1, data.Timeline[1].Pending)

	require.Len(t, data.Stations, 2)
	assert.Equal(t, "cnc_1", data.Stations[0].Key)
	assert.Equal(t, 2, data.Stations[1].Total)

	require.Len(t, data.Models, 2)
	assert.Equal(t, "PX-100", data.Models[0].Key)
	assert.Equal(t, 2, data.Models[0].OK)

	assert.Equal(t, 4, data.Summary.Total)
	assert.Equal(t, 2, data.Summary.OK)
	assert.Equal(t, 1, data.Summary.NG)
	assert.Equal(t, 1, data.Summary.Pending)
}

func TestChart_Empty(t *testing.T) {
	data := Chart(nil, nil)
	assert.NotNil(t, data.Timeline)
	assert.Empty(t, data.Models)
	assert.Zero(t, data.Summary.Total)
}
