package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceability-dashboard/internal/config"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *station.Registry) {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "trace.db")
	db, err := Open(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	reg, err := station.NewRegistry(station.DefaultCatalog())
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, reg.All()))
	return New(db, testLogger()), reg
}

func mustStation(t *testing.T, reg *station.Registry, id string) station.Descriptor {
	t.Helper()
	d, ok := reg.ByID(id)
	require.True(t, ok, id)
	return d
}

func TestStore_StandardReadAndResolve(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()
	gauge := mustStation(t, reg, "gauge_1")

	loaded := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	finished := loaded.Add(2 * time.Minute)
	require.NoError(t, s.InsertPart(ctx, gauge, Part{
		QR: "G1000001", Model: "PX-100", Loaded: loaded, Finished: &finished,
		Status: types.StatusOK, Values: []float64{1, 2, 3, 4, 5, 6},
	}))

	recs, err := s.ReadAll(ctx, gauge)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "G1000001", types.Str(recs[0].QR))
	assert.Equal(t, "PX-100", types.Str(recs[0].ModelName))
	assert.Equal(t, "01/05/2024, 09:00:00 AM", recs[0].Time.Text)

	post, err := s.ResolvePost(ctx, gauge, "qr_data", "G1000001")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "OK", types.Str(post.Status))
	require.Len(t, post.Values, 5)
	assert.Equal(t, 5.0, *post.Values[4])

	missing, err := s.ResolvePost(ctx, gauge, "qr_data", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.ResolvePost(ctx, gauge, "status", "OK")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestStore_ResolvePostPicksNewestDuplicate(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()
	cnc := mustStation(t, reg, "cnc_1")

	for _, st := range []string{"NG", "OK"} {
		status := st
		require.NoError(t, s.DB().Table(cnc.PostTable).Create(&standardPostRow{
			Timestamp: "01/05/2024, 09:00:00 AM", QRData: "DUP1", Status: &status,
		}).Error)
	}

	post, err := s.ResolvePost(ctx, cnc, "qr_data", "DUP1")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "OK", types.Str(post.Status))
	assert.Equal(t, int64(2), post.ID)
}

func TestStore_AssemblyRoundTrip(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()
	asm := mustStation(t, reg, "op40a_assembly")

	loaded := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	finished := loaded.Add(3 * time.Minute)
	require.NoError(t, s.InsertPart(ctx, asm, Part{QR: "A1", Model: "PX-200", Loaded: loaded, Finished: &finished, Status: types.StatusNG}))
	require.NoError(t, s.InsertPart(ctx, asm, Part{QR: "A2", Model: "PX-200", Loaded: loaded.Add(time.Minute), Status: types.StatusPending}))

	latest, err := s.Latest(ctx, asm)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "A2", types.Str(latest.QRInternal))
	assert.Nil(t, latest.QRExternal)
	assert.True(t, latest.ExternalTime.IsZero())
	require.NotNil(t, latest.Time.Value)
	assert.True(t, loaded.Add(time.Minute).Equal(*latest.Time.Value))

	recs, err := s.ReadAll(ctx, asm)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	done := recs[1]
	assert.Equal(t, "EA1", types.Str(done.QRExternal))
	assert.Equal(t, "HA1", types.Str(done.QRHousing))
	assert.Equal(t, "NG", types.Str(done.Status))
	require.NotNil(t, done.HousingTime.Value)
	assert.True(t, finished.Equal(*done.HousingTime.Value))

	_, err = s.ResolvePost(ctx, asm, "qr_data", "A1")
	assert.ErrorIs(t, err, ErrNoPostSource)
}

func TestStore_QueryFilters(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()
	paint := mustStation(t, reg, "painting")
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertPart(ctx, paint, Part{QR: "HOUSE-ABC", Model: "PX-100", Loaded: base}))
	require.NoError(t, s.InsertPart(ctx, paint, Part{QR: "HOUSE-XYZ", Model: "HX-300", Loaded: base}))
	require.NoError(t, s.InsertPart(ctx, paint, Part{QR: "OTHER", Model: "PX-100", Loaded: base}))

	recs, err := s.Query(ctx, paint, Query{QR: "house"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	// 活塞 QR 由壳体 QR 派生，同样可以命中
	recs, err = s.Query(ctx, paint, Query{QR: "phouse-abc"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = s.Query(ctx, paint, Query{Model: "PX-100"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = s.Query(ctx, paint, Query{QR: "house", Model: "PX-100", Limit: 5})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "HOUSE-ABC", types.Str(recs[0].QRHousing))

	recs, err = s.Query(ctx, paint, Query{Model: "all", Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "OTHER", types.Str(recs[0].QRHousing))
}

func TestStore_CountModelNamesAndStatusUpdate(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()
	lub := mustStation(t, reg, "lubrication")
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	done := base.Add(time.Minute)

	require.NoError(t, s.InsertPart(ctx, lub, Part{QR: "L1", Model: "PX-100", Loaded: base, Finished: &done, Status: types.StatusNG}))
	require.NoError(t, s.InsertPart(ctx, lub, Part{QR: "L2", Model: "HX-300", Loaded: base}))

	n, err := s.Count(ctx, lub)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	names, err := s.ModelNames(ctx, lub)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"PX-100", "HX-300", "PX-100", "HX-300"}, names)

	post, err := s.ResolvePost(ctx, lub, "qr_data_piston", "L1")
	require.NoError(t, err)
	require.NotNil(t, post)

	cur, found, err := s.CurrentStatus(ctx, lub.PostTable, post.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "NG", types.Str(cur))

	ok, err := s.UpdateStatus(ctx, lub.PostTable, post.ID, "OK")
	require.NoError(t, err)
	assert.True(t, ok)

	cur, _, err = s.CurrentStatus(ctx, lub.PostTable, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "OK", types.Str(cur))

	ok, err = s.UpdateStatus(ctx, lub.PostTable, 999, "OK")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err = s.CurrentStatus(ctx, lub.PostTable, 999)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ReadFailureOnMissingTable(t *testing.T) {
	s, _ := newTestStore(t)
	ghost := station.Descriptor{ID: "ghost", Name: "Ghost", Kind: types.KindStandard, PrepTable: "ghost_preprocessing", PostTable: "ghost_postprocessing"}

	_, err := s.ReadAll(context.Background(), ghost)
	assert.Error(t, err)
}

func TestSeed_WritesEveryStation(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

	n, err := Seed(ctx, s, reg.All(), SeedOptions{PartsPerStation: 4, Now: now, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, 4*reg.Len(), n)

	for _, d := range reg.All() {
		recs, err := s.ReadAll(ctx, d)
		require.NoError(t, err, d.ID)
		assert.Len(t, recs, 4, d.ID)
	}
}

func TestStore_CountByQRAndPrepByID(t *testing.T) {
	s, reg := newTestStore(t)
	ctx := context.Background()
	cnc := mustStation(t, reg, "cnc_1")
	paint := mustStation(t, reg, "painting")
	unload := mustStation(t, reg, "pre_washing_unload")
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	done := base.Add(2 * time.Minute)

	require.NoError(t, s.InsertPart(ctx, cnc, Part{QR: "QX1", Model: "PX-100", Loaded: base, Finished: &done, Status: types.StatusOK}))
	require.NoError(t, s.InsertPart(ctx, cnc, Part{QR: "QX2", Model: "PX-100", Loaded: base}))
	require.NoError(t, s.InsertPart(ctx, paint, Part{QR: "QX5", Model: "PX-100", Loaded: base, Finished: &done, Status: types.StatusNG}))
	require.NoError(t, s.InsertPart(ctx, unload, Part{QR: "QX9", Model: "PX-100", Loaded: base, Finished: &done, Status: types.StatusOK}))

	tests := []struct {
		name string
		d    station.Descriptor
		qr   string
		want QRCount
	}{
		{"substring case-insensitive", cnc, "qx", QRCount{Prep: 2, Post: 1}},
		{"exact", cnc, "QX1", QRCount{Prep: 1, Post: 1}},
		{"pending part has no post", cnc, "QX2", QRCount{Prep: 1}},
		{"painting matches housing or piston once", paint, "QX5", QRCount{Prep: 1, Post: 1}},
		{"unload-only washing counts as post", unload, "QX9", QRCount{Post: 1}},
		{"miss", cnc, "nope", QRCount{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.CountByQR(ctx, tt.d, tt.qr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	recs, err := s.ReadAll(ctx, cnc)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	rec, err := s.PrepByID(ctx, cnc, recs[1].ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "QX1", types.Str(rec.QR))

	missing, err := s.PrepByID(ctx, cnc, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
