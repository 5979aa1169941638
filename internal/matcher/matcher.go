package matcher

import (
	"context"
	"strings"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/types"
)

// PostResolver 按字段相等在工站下料表中查找一条记录
type PostResolver interface {
	ResolvePost(ctx context.Context, d station.Descriptor, field, value string) (*types.PostRecord, error)
}

// keyRule 一条匹配规则：取上料记录中的某个 QR 码，与下料表的某列比较
type keyRule struct {
	prepKey   func(types.PrepRecord) *string
	postField string
}

func qrData(r types.PrepRecord) *string    { return r.QR }
func qrHousing(r types.PrepRecord) *string { return r.QRHousing }
func qrPiston(r types.PrepRecord) *string  { return r.QRPiston }

// rules 按工站类别定义匹配规则，按顺序尝试，首个命中即返回
// 装配与清洗工站不做交叉匹配，不在表中
var rules = map[types.StationKind][]keyRule{
	types.KindStandard:    {{qrData, "qr_data"}},
	types.KindPainting:    {{qrHousing, "qr_data_housing"}},
	types.KindLubrication: {{qrPiston, "qr_data_piston"}},
	types.KindLeakTest: {
		{qrHousing, "qr_data_housing"},
		{qrHousing, "qr_data_housing_new"},
		{qrPiston, "qr_data_housing"},
	},
}

// Result 匹配结果：Post 为 nil 表示尚无下料记录
type Result struct {
	Post   *types.PostRecord
	Status types.Status
}

// Matcher 根据工站类别解析上料记录对应的下料记录并推导生命周期状态
type Matcher struct {
	posts PostResolver
}

// New 创建 Matcher
func New(posts PostResolver) *Matcher {
	return &Matcher{posts: posts}
}

// Match 解析上料记录的下料记录与状态
// 相同输入多次调用返回相同结果；只有读取失败才返回错误
func (m *Matcher) Match(ctx context.Context, prep types.PrepRecord, d station.Descriptor) (Result, error) {
	switch d.Kind {
	case types.KindAssembly:
		return Result{Status: AssemblyStatus(prep)}, nil
	case types.KindWashingLoad, types.KindWashingUnload:
		return Result{Status: WashingStatus(prep)}, nil
	}

	for _, r := range rules[d.Kind] {
		key := strings.TrimSpace(types.Str(r.prepKey(prep)))
		if key == "" {
			continue
		}
		post, err := m.posts.ResolvePost(ctx, d, r.postField, key)
		if err != nil {
			return Result{}, errs.Wrapf(err, "匹配 %s#%d", d.ID, prep.ID)
		}
		if post != nil {
			return Result{Post: post, Status: PostStatus(post)}, nil
		}
	}
	return Result{Status: types.StatusPending}, nil
}

// PostStatus 下料记录的 OK / NG 原样采用，缺失或无法识别时视为待判定
func PostStatus(post *types.PostRecord) types.Status {
	if post == nil {
		return types.StatusPending
	}
	if s, ok := types.ParseStatus(types.Str(post.Status)); ok {
		return s
	}
	return types.StatusPending
}

// AssemblyStatus 装配记录在外圈与壳体 QR 都写入后才有最终状态
func AssemblyStatus(prep types.PrepRecord) types.Status {
	if strings.TrimSpace(types.Str(prep.QRExternal)) == "" || strings.TrimSpace(types.Str(prep.QRHousing)) == "" {
		return types.StatusPending
	}
	if s, ok := types.ParseStatus(types.Str(prep.Status)); ok {
		return s
	}
	return types.StatusPending
}

// WashingStatus 清洗记录直接读取自身状态，缺失时默认 OK
func WashingStatus(prep types.PrepRecord) types.Status {
	raw := strings.TrimSpace(types.Str(prep.Status))
	if raw == "" {
		return types.StatusOK
	}
	if s, ok := types.ParseStatus(raw); ok {
		return s
	}
	return types.StatusPending
}

// ModelName 按工站类别选取用于统计的型号
func ModelName(prep types.PrepRecord, kind types.StationKind) string {
	var p *string
	switch kind {
	case types.KindAssembly, types.KindLeakTest:
		p = prep.ModelInternal
	case types.KindPainting:
		p = prep.ModelHousing
	case types.KindLubrication:
		p = prep.ModelPiston
	default:
		p = prep.ModelName
	}
	return types.Or(p, types.PlaceholderModel)
}

// PrimaryQR 按工站类别选取记录的主 QR 码
func PrimaryQR(prep types.PrepRecord, kind types.StationKind) string {
	var p *string
	switch kind {
	case types.KindAssembly:
		p = prep.QRInternal
	case types.KindPainting:
		p = prep.QRHousing
	case types.KindLubrication, types.KindLeakTest:
		p = prep.QRPiston
	default:
		p = prep.QR
	}
	return types.Or(p, types.PlaceholderCode)
}

// CompletionTime 返回用于计算节拍的完成时间
// 装配工站取外圈与壳体时间中较晚者，仅在已有最终状态时有效；清洗工站没有完成时间
func CompletionTime(prep types.PrepRecord, res Result, kind types.StationKind) (types.RawTime, bool) {
	switch kind {
	case types.KindWashingLoad, types.KindWashingUnload:
		return types.RawTime{}, false
	case types.KindAssembly:
		if res.Status == types.StatusPending {
			return types.RawTime{}, false
		}
		ext, hsg := prep.ExternalTime, prep.HousingTime
		switch {
		case ext.Value != nil && hsg.Value != nil:
			if hsg.Value.After(*ext.Value) {
				return hsg, true
			}
			return ext, true
		case ext.Value != nil:
			return ext, true
		case hsg.Value != nil:
			return hsg, true
		}
		return types.RawTime{}, false
	}
	if res.Post == nil || res.Post.Time.IsZero() {
		return types.RawTime{}, false
	}
	return res.Post.Time, true
}
