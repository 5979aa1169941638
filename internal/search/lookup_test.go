package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/store"
	"traceability-dashboard/internal/timeparse"
	"traceability-dashboard/internal/types"
)

func TestQRSummary(t *testing.T) {
	s, st, reg := newSQLiteSearcher(t)
	insert(t, st, reg, "cnc_1", store.Part{QR: "Q100", Model: "PX-100", Loaded: at(0), Finished: types.Ptr(at(2)), Status: types.StatusOK})
	insert(t, st, reg, "cnc_1", store.Part{QR: "Q101", Model: "PX-100", Loaded: at(5)})
	insert(t, st, reg, "op40a_assembly", store.Part{QR: "Q100", Model: "AS-1", Loaded: at(10), Finished: types.Ptr(at(12)), Status: types.StatusOK})
	insert(t, st, reg, "cnc_2", store.Part{QR: "Z900", Model: "PX-100", Loaded: at(0)})

	hits, err := s.QRSummary(context.Background(), "q10")
	require.NoError(t, err)
	assert.Equal(t, []QRHit{
		{StationID: "cnc_1", StationName: "CNC-1", QRCount: store.QRCount{Prep: 2, Post: 1}},
		{StationID: "op40a_assembly", StationName: "OP40A Assembly", QRCount: store.QRCount{Prep: 1}},
	}, hits)

	hits, err = s.QRSummary(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)

	_, err = s.QRSummary(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidation, errs.AsAppError(err).Code)
}

func TestQRSummary_SkipsFailingStation(t *testing.T) {
	src := &stubSource{
		CountByQRFn: func(d station.Descriptor, _ string) (store.QRCount, error) {
			if d.Kind == types.KindWashingLoad {
				return store.QRCount{}, errors.New("relation does not exist")
			}
			return store.QRCount{Post: 1}, nil
		},
	}
	s := New(washingRegistry(t), src, timeparse.New(time.UTC), 0, testLogger())
	hits, err := s.QRSummary(context.Background(), "W1")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pre_washing_unload", hits[0].StationID)
}

func TestStationRecordsAndRecord(t *testing.T) {
	s, st, reg := newSQLiteSearcher(t)
	ctx := context.Background()
	insert(t, st, reg, "cnc_1", store.Part{QR: "A1", Model: "PX-100", Loaded: at(0), Finished: types.Ptr(at(2)), Status: types.StatusNG})
	insert(t, st, reg, "cnc_1", store.Part{QR: "A2", Model: "PX-100", Loaded: at(10)})
	insert(t, st, reg, "cnc_1", store.Part{QR: "A3", Model: "PX-100", Loaded: at(20)})
	insert(t, st, reg, "cnc_2", store.Part{QR: "B1", Model: "PX-100", Loaded: at(30)})

	rows, err := s.StationRecords(ctx, "cnc_1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"A3", "A2", "A1"}, []string{rows[0].QR, rows[1].QR, rows[2].QR})
	assert.Equal(t, types.StatusNG, rows[2].Status)
	require.NotNil(t, rows[2].PostID)

	rows, err = s.StationRecords(ctx, "cnc_1", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = s.StationRecords(ctx, "nope", 0)
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.AsAppError(err).Code)

	all, err := s.StationRecords(ctx, "cnc_1", 0)
	require.NoError(t, err)
	row, err := s.Record(ctx, "cnc_1", all[2].PrepID)
	require.NoError(t, err)
	assert.Equal(t, "A1", row.QR)
	assert.Equal(t, types.StatusNG, row.Status)
	assert.Equal(t, all[2].PostID, row.PostID)

	_, err = s.Record(ctx, "cnc_1", 999)
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.AsAppError(err).Code)
}
