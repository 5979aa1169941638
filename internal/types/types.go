package types

import (
	"strings"
	"time"
)

// StationKind 定义工站类别，决定上下料记录的匹配规则和字段取值方式
type StationKind string

const (
	KindStandard      StationKind = "standard"       // CNC / 检测 / 珩磨 / 去毛刺：按 QR 码直接匹配
	KindAssembly      StationKind = "assembly"       // OP40 装配：单表记录，自身携带最终状态
	KindPainting      StationKind = "painting"       // 喷漆：按壳体 QR 匹配
	KindLubrication   StationKind = "lubrication"    // 润滑：按活塞 QR 匹配
	KindLeakTest      StationKind = "leak_test"      // OP80 O 型圈与泄漏测试：三级回退匹配
	KindWashingLoad   StationKind = "washing_load"   // 清洗上料：只有上料表
	KindWashingUnload StationKind = "washing_unload" // 清洗下料：只有下料表
)

// Valid 判断工站类别是否为已知取值
func (k StationKind) Valid() bool {
	switch k {
	case KindStandard, KindAssembly, KindPainting, KindLubrication, KindLeakTest, KindWashingLoad, KindWashingUnload:
		return true
	}
	return false
}

// IsWashing 清洗工站不做上下料交叉匹配
func (k StationKind) IsWashing() bool {
	return k == KindWashingLoad || k == KindWashingUnload
}

// Status 定义工件在某工站的生命周期状态
type Status string

const (
	StatusOK      Status = "OK"
	StatusNG      Status = "NG"
	StatusPending Status = "Pending"
)

// ParseStatus 将数据库中的状态文本规整为 OK / NG，其余情况返回 false
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OK":
		return StatusOK, true
	case "NG":
		return StatusNG, true
	}
	return "", false
}

// Shift 班次：A 06-14，B 14-22，C 22-06
type Shift string

const (
	ShiftA Shift = "A"
	ShiftB Shift = "B"
	ShiftC Shift = "C"
)

// Shifts 按固定顺序列出全部班次
var Shifts = []Shift{ShiftA, ShiftB, ShiftC}

// 缺省占位符，展示层依赖这两种不同的取值
const (
	PlaceholderModel = "N/A" // 型号类字段
	PlaceholderCode  = "-"   // QR 码 / 前序状态类字段
)

// RawTime 记录中的原始时间戳
// 文本列保存在 Text 中；数据库原生时间列保存在 Value 中
type RawTime struct {
	Text  string
	Value *time.Time
}

// TextTime 由文本时间戳构造 RawTime
func TextTime(s string) RawTime { return RawTime{Text: s} }

// NativeTime 由数据库原生时间构造 RawTime
func NativeTime(t time.Time) RawTime { return RawTime{Value: &t} }

// IsZero 判断时间戳是否缺失
func (r RawTime) IsZero() bool {
	return r.Value == nil && strings.TrimSpace(r.Text) == ""
}

// String 返回便于展示的原始文本
func (r RawTime) String() string {
	if r.Value != nil {
		return r.Value.Format(time.RFC3339)
	}
	return r.Text
}

// PrepRecord 是所有工站类别的上料记录（逻辑视图）
// 可选字段使用指针表示，nil 表示该类别没有此字段或数据库值为空：
//   - standard / washing: QR, ModelName, PrevStatus (CNC 额外有 MachineName)
//   - assembly: QRInternal/External/Housing, ModelInternal/External/Housing, Status, ExternalTime, HousingTime
//   - leak_test: QRPiston, QRHousing, ModelInternal, ModelExternal
//   - painting: QRHousing, QRPiston, ModelHousing, ModelPiston, PreStatus
//   - lubrication: QRPiston, QRHousing, ModelPiston, ModelHousing
//
// 仅有下料表的清洗工站，其下料记录同样以 PrepRecord 形式读出。
type PrepRecord struct {
	ID    int64
	Table string
	Time  RawTime

	QR         *string
	QRInternal *string
	QRExternal *string
	QRHousing  *string
	QRPiston   *string

	ModelName     *string
	ModelInternal *string
	ModelExternal *string
	ModelHousing  *string
	ModelPiston   *string

	MachineName      *string
	PrevStatus       *string
	PrevHousingState *string
	PreStatus        *string
	Status           *string

	ExternalTime RawTime
	HousingTime  RawTime
}

// PostRecord 是下料 / 结果记录（逻辑视图）
type PostRecord struct {
	ID    int64
	Table string
	Time  RawTime

	QR           *string
	QRHousing    *string
	QRHousingNew *string
	QRPiston     *string

	Status      *string
	MatchStatus *string

	// Values 检测工站的测量值，按槽位顺序；非检测工站为 nil
	Values []*float64
}

// Str 解引用可选字符串，nil 返回空串
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Or 返回去除空白后的非空值，否则返回占位符
func Or(p *string, placeholder string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return placeholder
	}
	return *p
}

// Ptr 返回值的指针，便于构造可选字段
func Ptr[T any](v T) *T { return &v }
