package search

import (
	"context"
	"strconv"
	"strings"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/store"
)

// DefaultStationRecords 单工站记录列表的默认条数
const DefaultStationRecords = 100

// QRHit 某个 QR 码在一个工站上的命中情况
type QRHit struct {
	StationID   string `json:"station_id"`
	StationName string `json:"station_name"`
	store.QRCount
}

// QRSummary 列出包含该 QR 码的全部工站及其上下料记录数
// 没有命中的工站不出现在结果中；单个工站读取失败时跳过
func (s *Searcher) QRSummary(ctx context.Context, qr string) ([]QRHit, error) {
	qr = strings.TrimSpace(qr)
	if qr == "" {
		return nil, errs.ErrValidation("qr is required")
	}
	hits := []QRHit{}
	for _, d := range s.registry.All() {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(err, "检索已取消")
		}
		n, err := s.source.CountByQR(ctx, d, qr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.Wrap(ctx.Err(), "检索已取消")
			}
			s.logger.Warn("按 QR 统计失败，已跳过", "station_id", d.ID, "error", errs.Loggable(err))
			continue
		}
		if n.Prep == 0 && n.Post == 0 {
			continue
		}
		hits = append(hits, QRHit{StationID: d.ID, StationName: d.Name, QRCount: n})
	}
	return hits, nil
}

// StationRecords 返回单个工站最新的 limit 条记录 (已匹配下料)，按时间倒序
func (s *Searcher) StationRecords(ctx context.Context, stationID string, limit int) ([]Row, error) {
	d, ok := s.registry.ByID(strings.TrimSpace(stationID))
	if !ok {
		return nil, errs.ErrNotFound("station").WithDetail("station", stationID)
	}
	if limit <= 0 {
		limit = DefaultStationRecords
	}
	if limit > s.limit {
		limit = s.limit
	}
	recs, err := s.source.Query(ctx, d, store.Query{Limit: limit})
	if err != nil {
		return nil, errs.Wrapf(err, "读取工站 %s 记录", d.ID)
	}
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		res, err := s.matcher.Match(ctx, rec, d)
		if err != nil {
			return nil, errs.Wrapf(err, "匹配工站 %s 记录 %d", d.ID, rec.ID)
		}
		rows = append(rows, s.build(d, rec, res))
	}
	sortNewestFirst(rows)
	return rows, nil
}

// Record 读取单条主记录及其当前状态，返工前用于展示
func (s *Searcher) Record(ctx context.Context, stationID string, prepID int64) (*Row, error) {
	d, ok := s.registry.ByID(strings.TrimSpace(stationID))
	if !ok {
		return nil, errs.ErrNotFound("station").WithDetail("station", stationID)
	}
	rec, err := s.source.PrepByID(ctx, d, prepID)
	if err != nil {
		return nil, errs.Wrapf(err, "读取 %s#%d", d.ID, prepID)
	}
	if rec == nil {
		return nil, errs.ErrNotFound("record").WithDetail("prep_id", strconv.FormatInt(prepID, 10))
	}
	res, err := s.matcher.Match(ctx, *rec, d)
	if err != nil {
		return nil, errs.Wrapf(err, "匹配 %s#%d", d.ID, prepID)
	}
	row := s.build(d, *rec, res)
	return &row, nil
}
