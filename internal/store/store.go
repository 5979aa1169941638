package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/types"
)

var (
	// ErrUnknownField 匹配字段不属于该类工站的下料表
	ErrUnknownField = errors.New("unknown match field")
	// ErrNoPostSource 工站没有独立的下料表
	ErrNoPostSource = errors.New("station has no postprocessing source")
)

// 下料表中允许用于匹配查询的列
var postFields = map[types.StationKind]map[string]bool{
	types.KindStandard:    {"qr_data": true},
	types.KindPainting:    {"qr_data_housing": true, "qr_data_piston": true},
	types.KindLubrication: {"qr_data_piston": true},
	types.KindLeakTest:    {"qr_data_housing": true, "qr_data_housing_new": true},
}

// 检索时 QR 码模糊匹配的列
var qrColumns = map[types.StationKind][]string{
	types.KindStandard:      {"qr_data"},
	types.KindWashingLoad:   {"qr_data"},
	types.KindWashingUnload: {"qr_data"},
	types.KindAssembly:      {"qr_data_internal", "qr_data_external", "qr_data_housing"},
	types.KindPainting:      {"qr_data_housing", "qr_data_piston"},
	types.KindLubrication:   {"qr_data_piston", "qr_data_housing"},
	types.KindLeakTest:      {"qr_data_piston", "qr_data_housing"},
}

// 下料表中 QR 码模糊匹配的列
var postQRColumns = map[types.StationKind][]string{
	types.KindStandard:    {"qr_data"},
	types.KindPainting:    {"qr_data_housing", "qr_data_piston"},
	types.KindLubrication: {"qr_data_piston"},
	types.KindLeakTest:    {"qr_data_housing", "qr_data_housing_new"},
}

// 检索时型号精确匹配的列
var modelColumns = map[types.StationKind][]string{
	types.KindStandard:      {"model_name"},
	types.KindWashingLoad:   {"model_name"},
	types.KindWashingUnload: {"model_name"},
	types.KindAssembly:      {"model_name_internal", "model_name_external", "model_name_housing"},
	types.KindPainting:      {"model_name_housing", "model_name_piston"},
	types.KindLubrication:   {"model_name_piston", "model_name_housing"},
	types.KindLeakTest:      {"model_name_internal", "model_name_external"},
}

// Query 主记录检索条件，空字段表示不过滤
type Query struct {
	QR    string // 不区分大小写的子串匹配
	Model string // 精确匹配，"all" 等同于不过滤
	Limit int
}

// Store 基于 gorm 读取各工站记录表
// 除返工状态更新外只做读操作；可被多个 goroutine 并发使用
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New 创建 Store
func New(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "store")}
}

// DB 返回底层连接
func (s *Store) DB() *gorm.DB { return s.db }

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true})
}

func findRows[R any](ctx context.Context, db *gorm.DB, table string, scopes ...func(*gorm.DB) *gorm.DB) ([]R, error) {
	var rows []R
	err := db.WithContext(ctx).Table(table).Scopes(scopes...).Find(&rows).Error
	if err != nil {
		return nil, errs.Wrapf(err, "查询表 %s", table)
	}
	return rows, nil
}

func convert[R any, T any](rows []R, fn func(R) T) []T {
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = fn(r)
	}
	return out
}

// primary 按工站类别读取主记录表
func (s *Store) primary(ctx context.Context, d station.Descriptor, scopes ...func(*gorm.DB) *gorm.DB) ([]types.PrepRecord, error) {
	table := d.PrimaryTable()
	scopes = append(scopes, newestFirst)
	switch d.Kind {
	case types.KindStandard:
		rows, err := findRows[standardPrepRow](ctx, s.db, table, scopes...)
		return convert(rows, func(r standardPrepRow) types.PrepRecord { return r.record(table) }), err
	case types.KindWashingLoad, types.KindWashingUnload:
		rows, err := findRows[washingRow](ctx, s.db, table, scopes...)
		return convert(rows, func(r washingRow) types.PrepRecord { return r.record(table) }), err
	case types.KindAssembly:
		rows, err := findRows[assemblyRow](ctx, s.db, table, scopes...)
		return convert(rows, func(r assemblyRow) types.PrepRecord { return r.record(table) }), err
	case types.KindLeakTest:
		rows, err := findRows[leakPrepRow](ctx, s.db, table, scopes...)
		return convert(rows, func(r leakPrepRow) types.PrepRecord { return r.record(table) }), err
	case types.KindPainting:
		rows, err := findRows[paintPrepRow](ctx, s.db, table, scopes...)
		return convert(rows, func(r paintPrepRow) types.PrepRecord { return r.record(table) }), err
	case types.KindLubrication:
		rows, err := findRows[lubPrepRow](ctx, s.db, table, scopes...)
		return convert(rows, func(r lubPrepRow) types.PrepRecord { return r.record(table) }), err
	}
	return nil, fmt.Errorf("工站 %s: 未知类别 %q", d.ID, d.Kind)
}

// ReadAll 读取工站全部主记录，按 id 倒序；时间过滤由调用方完成
func (s *Store) ReadAll(ctx context.Context, d station.Descriptor) ([]types.PrepRecord, error) {
	return s.primary(ctx, d)
}

// Latest 返回工站最新一条主记录，没有记录时返回 nil
func (s *Store) Latest(ctx context.Context, d station.Descriptor) (*types.PrepRecord, error) {
	recs, err := s.primary(ctx, d, func(db *gorm.DB) *gorm.DB { return db.Limit(1) })
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// Query 按 QR 码与型号检索主记录，按 id 倒序
func (s *Store) Query(ctx context.Context, d station.Descriptor, q Query) ([]types.PrepRecord, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if qr := strings.TrimSpace(q.QR); qr != "" {
			db = db.Where(containsAny(qrColumns[d.Kind], qr))
		}
		if q.Model != "" && q.Model != "all" {
			conds := make([]clause.Expression, 0, len(modelColumns[d.Kind]))
			for _, col := range modelColumns[d.Kind] {
				conds = append(conds, clause.Eq{Column: clause.Column{Name: col}, Value: q.Model})
			}
			db = db.Where(clause.Or(conds...))
		}
		if q.Limit > 0 {
			db = db.Limit(q.Limit)
		}
		return db
	}
	return s.primary(ctx, d, scope)
}

// containsAny 任一列不区分大小写地包含 value
func containsAny(cols []string, value string) clause.Expression {
	pattern := "%" + strings.ToLower(value) + "%"
	conds := make([]clause.Expression, 0, len(cols))
	for _, col := range cols {
		conds = append(conds, clause.Expr{SQL: "LOWER(?) LIKE ?", Vars: []any{clause.Column{Name: col}, pattern}})
	}
	return clause.Or(conds...)
}

// PrepByID 按 id 读取一条主记录，不存在时返回 nil
func (s *Store) PrepByID(ctx context.Context, d station.Descriptor, id int64) (*types.PrepRecord, error) {
	recs, err := s.primary(ctx, d, func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).Limit(1)
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// ResolvePost 在下料表中按字段相等查找记录
// 同一 QR 码存在多条记录时取 id 最大 (最新) 的一条；没有命中返回 nil
func (s *Store) ResolvePost(ctx context.Context, d station.Descriptor, field, value string) (*types.PostRecord, error) {
	if !d.HasPostSource() {
		return nil, ErrNoPostSource
	}
	if !postFields[d.Kind][field] {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, d.PostTable, field)
	}
	table := d.PostTable
	match := func(db *gorm.DB) *gorm.DB {
		return newestFirst(db.Where(clause.Eq{Column: clause.Column{Name: field}, Value: value})).Limit(1)
	}

	var recs []types.PostRecord
	switch d.Kind {
	case types.KindStandard:
		rows, err := findRows[standardPostRow](ctx, s.db, table, match)
		if err != nil {
			return nil, err
		}
		recs = convert(rows, func(r standardPostRow) types.PostRecord { return r.record(table, d.GaugeSlots) })
	case types.KindLeakTest:
		rows, err := findRows[leakPostRow](ctx, s.db, table, match)
		if err != nil {
			return nil, err
		}
		recs = convert(rows, func(r leakPostRow) types.PostRecord { return r.record(table) })
	case types.KindPainting:
		rows, err := findRows[paintPostRow](ctx, s.db, table, match)
		if err != nil {
			return nil, err
		}
		recs = convert(rows, func(r paintPostRow) types.PostRecord { return r.record(table) })
	case types.KindLubrication:
		rows, err := findRows[lubPostRow](ctx, s.db, table, match)
		if err != nil {
			return nil, err
		}
		recs = convert(rows, func(r lubPostRow) types.PostRecord { return r.record(table) })
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Count 统计工站主表与下料表的记录总数，用于实时看板的变化检测
func (s *Store) Count(ctx context.Context, d station.Descriptor) (int64, error) {
	var total int64
	tables := []string{d.PrimaryTable()}
	if d.HasPostSource() {
		tables = append(tables, d.PostTable)
	}
	for _, t := range tables {
		var n int64
		if err := s.db.WithContext(ctx).Table(t).Count(&n).Error; err != nil {
			return 0, errs.Wrapf(err, "统计表 %s", t)
		}
		total += n
	}
	return total, nil
}

// QRCount 某个 QR 码在工站上料表与下料表中的命中数
type QRCount struct {
	Prep int64 `json:"preprocessing_count"`
	Post int64 `json:"postprocessing_count"`
}

// CountByQR 统计工站各表中 QR 码列包含 qr 的记录数 (不区分大小写)
// 仅有下料表的清洗工站计入 Post
func (s *Store) CountByQR(ctx context.Context, d station.Descriptor, qr string) (QRCount, error) {
	var out QRCount
	count := func(table string, cols []string, n *int64) error {
		if len(cols) == 0 {
			return nil
		}
		if err := s.db.WithContext(ctx).Table(table).Where(containsAny(cols, qr)).Count(n).Error; err != nil {
			return errs.Wrapf(err, "按 QR 统计表 %s", table)
		}
		return nil
	}

	primary := &out.Prep
	if d.Kind == types.KindWashingUnload {
		primary = &out.Post
	}
	if err := count(d.PrimaryTable(), qrColumns[d.Kind], primary); err != nil {
		return QRCount{}, err
	}
	if d.HasPostSource() {
		if err := count(d.PostTable, postQRColumns[d.Kind], &out.Post); err != nil {
			return QRCount{}, err
		}
	}
	return out, nil
}

// ModelNames 返回工站主表中出现过的全部型号 (未去除占位符)
func (s *Store) ModelNames(ctx context.Context, d station.Descriptor) ([]string, error) {
	var out []string
	for _, col := range modelColumns[d.Kind] {
		var vals []*string
		err := s.db.WithContext(ctx).Table(d.PrimaryTable()).Distinct(col).Pluck(col, &vals).Error
		if err != nil {
			return nil, errs.Wrapf(err, "读取型号 %s.%s", d.PrimaryTable(), col)
		}
		for _, v := range vals {
			if v != nil {
				out = append(out, *v)
			}
		}
	}
	return out, nil
}

// CurrentStatus 读取单条记录的 status 列，记录不存在时 found 为 false
func (s *Store) CurrentStatus(ctx context.Context, table string, id int64) (status *string, found bool, err error) {
	var rows []struct {
		Status *string `gorm:"column:status"`
	}
	err = s.db.WithContext(ctx).Table(table).
		Select("status").
		Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, false, errs.Wrapf(err, "读取 %s#%d 状态", table, id)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0].Status, true, nil
}

// UpdateStatus 更新单条记录的 status 列，返回是否有记录被修改
func (s *Store) UpdateStatus(ctx context.Context, table string, id int64, status string) (bool, error) {
	res := s.db.WithContext(ctx).Table(table).
		Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).
		Update("status", status)
	if res.Error != nil {
		return false, errs.Wrapf(res.Error, "更新 %s#%d 状态", table, id)
	}
	s.logger.Info("记录状态已更新", "table", table, "id", id, "status", status)
	return res.RowsAffected > 0, nil
}
