package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceability-dashboard/internal/types"
)

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"CNC-1":                    "cnc_1",
		"Pre-Washing (Load)":       "pre_washing_load",
		"OP40A Assembly":           "op40a_assembly",
		"OP80 Leak Test":           "op80_leak_test",
		" Final Washing (Unload) ": "final_washing_unload",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
		// 重复计算保持稳定
		assert.Equal(t, Slug(in), Slug(in))
	}
}

func TestDefaultCatalog_BuildsRegistry(t *testing.T) {
	reg, err := NewRegistry(DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, 23, reg.Len())

	d, ok := reg.ByID("cnc_1")
	require.True(t, ok)
	assert.Equal(t, "CNC-1", d.Name)
	assert.Equal(t, OpCNC, d.Operation)
	assert.Equal(t, "cnc1_preprocessing", d.PrimaryTable())
	assert.True(t, d.HasPostSource())

	unload, ok := reg.ByID("pre_washing_unload")
	require.True(t, ok)
	assert.Equal(t, types.KindWashingUnload, unload.Kind)
	assert.Equal(t, "prewashing_postprocessing", unload.PrimaryTable())
	assert.False(t, unload.HasPostSource())

	asm, ok := reg.ByID("op40c_assembly")
	require.True(t, ok)
	assert.Equal(t, asm.PrepTable, asm.PostTable)
	assert.False(t, asm.HasPostSource())

	gauge, ok := reg.ByID("gauge_1")
	require.True(t, ok)
	assert.Equal(t, 5, gauge.GaugeSlots)

	_, ok = reg.ByID("nope")
	assert.False(t, ok)
}

func TestNewRegistry_RejectsInvalidDescriptors(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
	}{
		{"missing prep", Descriptor{Name: "X", Kind: types.KindStandard, PostTable: "x_post"}},
		{"load with post", Descriptor{Name: "W", Kind: types.KindWashingLoad, PrepTable: "a", PostTable: "b"}},
		{"unload with prep", Descriptor{Name: "W", Kind: types.KindWashingUnload, PrepTable: "a", PostTable: "b"}},
		{"unknown kind", Descriptor{Name: "Y", Kind: "robot", PrepTable: "a"}},
		{"no name", Descriptor{Kind: types.KindStandard, PrepTable: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry([]Descriptor{tt.d})
			assert.Error(t, err)
		})
	}

	_, err := NewRegistry([]Descriptor{
		{Name: "CNC-1", Kind: types.KindStandard, PrepTable: "a"},
		{Name: "cnc 1", Kind: types.KindStandard, PrepTable: "b"},
	})
	assert.ErrorContains(t, err, "cnc_1")
}

func TestRegistry_SelectAndImmutability(t *testing.T) {
	reg, err := NewRegistry(DefaultCatalog())
	require.NoError(t, err)

	assert.Len(t, reg.Select("all"), reg.Len())
	assert.Len(t, reg.Select(""), reg.Len())
	assert.Len(t, reg.Select("painting"), 1)
	assert.Empty(t, reg.Select("unknown_station"))

	all := reg.All()
	all[0].Name = "changed"
	d, _ := reg.ByID("cnc_1")
	assert.Equal(t, "CNC-1", d.Name)
}
