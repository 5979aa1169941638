package rework

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/event"
	"traceability-dashboard/internal/fsm"
	"traceability-dashboard/internal/persistence"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/types"
	"traceability-dashboard/internal/util"
)

// ErrRecordNotFound 目标记录不存在
var ErrRecordNotFound = errors.New("record not found")

// Store 返工需要的状态读写能力
type Store interface {
	CurrentStatus(ctx context.Context, table string, id int64) (*string, bool, error)
	UpdateStatus(ctx context.Context, table string, id int64, status string) (bool, error)
}

// Journal 返工审计日志
type Journal interface {
	Append(e persistence.ReworkEntry) error
	Replay() ([]persistence.ReworkEntry, error)
}

// Record 一次已生效的返工
type Record = persistence.ReworkEntry

// Request 返工请求
// 装配与清洗上料工站按 PrepID 修改主表，其余工站按 PostID 修改下料表
type Request struct {
	Station  string `json:"station"`
	PrepID   *int64 `json:"prep_id"`
	PostID   *int64 `json:"post_id"`
	Status   string `json:"status"`
	Operator string `json:"operator"`
	Reason   string `json:"reason"`
}

// Service 返工服务：校验状态迁移，写库，记审计日志并发布事件
type Service struct {
	registry *station.Registry
	store    Store
	journal  Journal
	bus      *event.Bus
	now      func() time.Time
	logger   *slog.Logger
}

// NewService 创建返工服务；journal 与 bus 可以为 nil
func NewService(registry *station.Registry, store Store, journal Journal, bus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		store:    store,
		journal:  journal,
		bus:      bus,
		now:      time.Now,
		logger:   logger.With("component", "rework"),
	}
}

// target 返回需要修改的表与记录 ID
func target(d station.Descriptor, req Request) (string, int64, error) {
	switch d.Kind {
	case types.KindAssembly, types.KindWashingLoad:
		if req.PrepID == nil {
			return "", 0, errs.ErrValidation("prep_id is required for station " + d.ID)
		}
		return d.PrepTable, *req.PrepID, nil
	default:
		if req.PostID == nil {
			return "", 0, errs.ErrValidation("post_id is required for station " + d.ID)
		}
		return d.PostTable, *req.PostID, nil
	}
}

// currentState 把库中的状态文本映射到状态机状态；清洗工站空状态视为 OK
func currentState(kind types.StationKind, raw *string) fsm.State {
	if s, ok := types.ParseStatus(types.Str(raw)); ok {
		return s
	}
	if kind.IsWashing() && strings.TrimSpace(types.Str(raw)) == "" {
		return types.StatusOK
	}
	return types.StatusPending
}

// Update 修改单条记录的状态
func (s *Service) Update(ctx context.Context, req Request) (*Record, error) {
	logger := util.LoggerWithTrace(ctx, s.logger)

	d, ok := s.registry.ByID(strings.TrimSpace(req.Station))
	if !ok {
		return nil, errs.ErrNotFound("station").WithDetail("station", req.Station)
	}
	to, ok := types.ParseStatus(req.Status)
	if !ok {
		return nil, errs.ErrValidation("status must be OK or NG").WithDetail("status", req.Status)
	}
	table, id, err := target(d, req)
	if err != nil {
		return nil, err
	}

	raw, found, err := s.store.CurrentStatus(ctx, table, id)
	if err != nil {
		return nil, errs.ErrInternal(err)
	}
	if !found {
		return nil, errs.ErrNotFound("record").WithDetail("record_id", strconv.FormatInt(id, 10)).Wrap(ErrRecordNotFound)
	}
	from := currentState(d.Kind, raw)
	if err := fsm.Transition(strconv.FormatInt(id, 10), from, to); err != nil {
		return nil, errs.ErrConflict("cannot change status from " + string(from) + " to " + string(to)).Wrap(err)
	}

	updated, err := s.store.UpdateStatus(ctx, table, id, string(to))
	if err != nil {
		return nil, errs.ErrInternal(err)
	}
	if !updated {
		return nil, errs.ErrNotFound("record").WithDetail("record_id", strconv.FormatInt(id, 10)).Wrap(ErrRecordNotFound)
	}

	rec := &Record{
		ID:        uuid.NewString(),
		StationID: d.ID,
		Table:     table,
		RecordID:  id,
		From:      from,
		To:        to,
		Operator:  strings.TrimSpace(req.Operator),
		Reason:    strings.TrimSpace(req.Reason),
		At:        s.now(),
	}
	if traceID, ok := util.TraceIDFromContext(ctx); ok {
		rec.TraceID = traceID
	}
	if s.journal != nil {
		// 状态已写库，审计失败只记录日志
		if err := s.journal.Append(*rec); err != nil {
			logger.Error("写入返工审计日志失败", "record_id", id, "error", errs.Loggable(err))
		}
	}
	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type:        event.StatusReworked,
			StationID:   d.ID,
			StationName: d.Name,
			RecordID:    id,
			From:        from,
			To:          to,
			Message:     rec.Reason,
			At:          rec.At,
		})
	}
	logger.Info("返工状态已修改", "station_id", d.ID, "table", table, "record_id", id, "from", from, "to", to)
	return rec, nil
}

// History 返回最近的返工记录，最新的在前；limit 非正时返回全部
func (s *Service) History(limit int) ([]Record, error) {
	if s.journal == nil {
		return []Record{}, nil
	}
	entries, err := s.journal.Replay()
	if err != nil {
		return nil, errs.Wrap(err, "读取返工历史")
	}
	out := make([]Record, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
