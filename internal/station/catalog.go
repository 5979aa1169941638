package station

import (
	"fmt"
	"strings"

	"traceability-dashboard/internal/types"
)

// 默认工序代码，与 OEE 标准节拍表的键对应
const (
	OpCNC         = "OP10"
	OpGauge       = "OP20"
	OpHoning      = "OP30"
	OpDeburring   = "OP35"
	OpPreWashing  = "OP36"
	OpAssembly    = "OP40"
	OpFinalWash   = "OP70"
	OpLeakTest    = "OP80"
	OpPainting    = "OP90"
	OpLubrication = "OP100"
)

// DefaultCatalog 返回产线的默认工站目录
func DefaultCatalog() []Descriptor {
	var out []Descriptor
	host := 10

	add := func(d Descriptor) {
		d.Address = fmt.Sprintf("192.168.1.%d", host)
		host++
		out = append(out, d)
	}

	for i := 1; i <= 6; i++ {
		add(Descriptor{
			Name:      fmt.Sprintf("CNC-%d", i),
			Operation: OpCNC,
			Kind:      types.KindStandard,
			PrepTable: fmt.Sprintf("cnc%d_preprocessing", i),
			PostTable: fmt.Sprintf("cnc%d_postprocessing", i),
		})
	}
	for i, slots := range []int{5, 6, 6} {
		add(Descriptor{
			Name:       fmt.Sprintf("Gauge-%d", i+1),
			Operation:  OpGauge,
			Kind:       types.KindStandard,
			PrepTable:  fmt.Sprintf("gauge%d_preprocessing", i+1),
			PostTable:  fmt.Sprintf("gauge%d_postprocessing", i+1),
			GaugeSlots: slots,
		})
	}
	for i := 1; i <= 2; i++ {
		add(Descriptor{
			Name:      fmt.Sprintf("Honing-%d", i),
			Operation: OpHoning,
			Kind:      types.KindStandard,
			PrepTable: fmt.Sprintf("honing%d_preprocessing", i),
			PostTable: fmt.Sprintf("honing%d_postprocessing", i),
		})
	}
	add(Descriptor{
		Name:      "Deburring",
		Operation: OpDeburring,
		Kind:      types.KindStandard,
		PrepTable: "deburring_preprocessing",
		PostTable: "deburring_postprocessing",
	})
	add(Descriptor{Name: "Pre-Washing (Load)", Operation: OpPreWashing, Kind: types.KindWashingLoad, PrepTable: "prewashing_preprocessing"})
	add(Descriptor{Name: "Pre-Washing (Unload)", Operation: OpPreWashing, Kind: types.KindWashingUnload, PostTable: "prewashing_postprocessing"})

	for _, suffix := range []string{"A", "B", "C", "D"} {
		table := "op40" + strings.ToLower(suffix) + "_processing"
		add(Descriptor{
			Name:      "OP40" + suffix + " Assembly",
			Operation: OpAssembly,
			Kind:      types.KindAssembly,
			PrepTable: table,
			PostTable: table,
		})
	}

	add(Descriptor{Name: "Final Washing (Load)", Operation: OpFinalWash, Kind: types.KindWashingLoad, PrepTable: "finalwashing_preprocessing"})
	add(Descriptor{Name: "Final Washing (Unload)", Operation: OpFinalWash, Kind: types.KindWashingUnload, PostTable: "finalwashing_postprocessing"})
	add(Descriptor{
		Name:      "OP80 Leak Test",
		Operation: OpLeakTest,
		Kind:      types.KindLeakTest,
		PrepTable: "op80_preprocessing",
		PostTable: "op80_postprocessing",
	})
	add(Descriptor{
		Name:      "Painting",
		Operation: OpPainting,
		Kind:      types.KindPainting,
		PrepTable: "painting_preprocessing",
		PostTable: "painting_postprocessing",
	})
	add(Descriptor{
		Name:      "Lubrication",
		Operation: OpLubrication,
		Kind:      types.KindLubrication,
		PrepTable: "lub_preprocessing",
		PostTable: "lub_postprocessing",
	})
	return out
}

// DefaultStandardCycleTimes 默认标准节拍（分钟），按工序代码索引
func DefaultStandardCycleTimes() map[string]float64 {
	return map[string]float64{
		OpCNC:         2.5,
		OpGauge:       0.5,
		OpHoning:      1.5,
		OpDeburring:   1.0,
		OpPreWashing:  0.8,
		OpAssembly:    1.2,
		OpFinalWash:   0.8,
		OpLeakTest:    1.0,
		OpPainting:    1.5,
		OpLubrication: 0.6,
	}
}
