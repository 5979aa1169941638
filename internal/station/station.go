package station

import (
	"fmt"
	"strings"

	"traceability-dashboard/internal/types"
)

// Descriptor 描述一个物理工站
// 上料表与下料表可以缺失（清洗工站拆分为上料 / 下料两个描述），装配工站两者为同一张表
type Descriptor struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Operation  string            `json:"operation"`
	Address    string            `json:"address"`
	Kind       types.StationKind `json:"kind"`
	PrepTable  string            `json:"prep_table,omitempty"`
	PostTable  string            `json:"post_table,omitempty"`
	GaugeSlots int               `json:"gauge_slots,omitempty"`
}

// PrimaryTable 返回工站的主记录表：仅下料的清洗工站为下料表，其余为上料表
func (d Descriptor) PrimaryTable() string {
	if d.Kind == types.KindWashingUnload {
		return d.PostTable
	}
	return d.PrepTable
}

// HasPostSource 是否存在可用于匹配的独立下料表
func (d Descriptor) HasPostSource() bool {
	switch d.Kind {
	case types.KindAssembly, types.KindWashingLoad, types.KindWashingUnload:
		return false
	}
	return d.PostTable != ""
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("工站名称不能为空")
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("工站 %s: 未知类别 %q", d.Name, d.Kind)
	}
	switch d.Kind {
	case types.KindWashingLoad:
		if d.PrepTable == "" || d.PostTable != "" {
			return fmt.Errorf("工站 %s: 清洗上料只能配置上料表", d.Name)
		}
	case types.KindWashingUnload:
		if d.PostTable == "" || d.PrepTable != "" {
			return fmt.Errorf("工站 %s: 清洗下料只能配置下料表", d.Name)
		}
	default:
		if d.PrepTable == "" {
			return fmt.Errorf("工站 %s: 缺少上料表", d.Name)
		}
	}
	return nil
}

// Slug 由显示名称生成工站 ID：小写，空格和短横线转下划线，去掉括号
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "_", "(", "", ")", "", "-", "_").Replace(s)
	return s
}

// Registry 是启动时构建、此后只读的工站目录
type Registry struct {
	stations []Descriptor
	index    map[string]int
}

// NewRegistry 校验并构建工站目录
// ID 为空时由名称生成；ID 重复或违反上下料表约束时返回错误
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{
		stations: make([]Descriptor, 0, len(descriptors)),
		index:    make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if d.ID == "" {
			d.ID = Slug(d.Name)
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("工站 ID 重复: %s", d.ID)
		}
		r.index[d.ID] = len(r.stations)
		r.stations = append(r.stations, d)
	}
	return r, nil
}

// All 返回全部工站描述的副本，保持目录顺序
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.stations))
	copy(out, r.stations)
	return out
}

// ByID 按 ID 查找工站
func (r *Registry) ByID(id string) (Descriptor, bool) {
	i, ok := r.index[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.stations[i], true
}

// Select 解析工站过滤条件："all" 或空串返回全部，未知 ID 返回空集合
func (r *Registry) Select(filter string) []Descriptor {
	if filter == "" || filter == "all" {
		return r.All()
	}
	if d, ok := r.ByID(filter); ok {
		return []Descriptor{d}
	}
	return nil
}

// Len 工站数量
func (r *Registry) Len() int { return len(r.stations) }
