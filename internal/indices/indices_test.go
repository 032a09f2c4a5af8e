package indices

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for in, want := range map[string]Index{
		"NDVI":          NDVI,
		" evi ":         EVI,
		"Savi":          SAVI,
		"gndvi":         GNDVI,
		"NDRE":          NDRE,
		"arvi":          ARVI,
		"rgb":           TrueColor,
		"RGB_OPTIMIZED": TrueColorOptimized,
	} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := Parse("nvdi")
	require.ErrorIs(t, err, ErrUnknownIndex)
}

func TestValue(t *testing.T) {
	b := Bands{B02: 0.05, B03: 0.08, B04: 0.1, B05: 0.2, B08: 0.5}
	tests := []struct {
		index Index
		want  float64
	}{
		{NDVI, (0.5 - 0.1) / (0.5 + 0.1)},
		{EVI, 2.5 * (0.5 - 0.1) / (0.5 + 6*0.1 - 7.5*0.05 + 1)},
		{SAVI, (0.5 - 0.1) / (0.5 + 0.1 + 0.5) * 1.5},
		{GNDVI, (0.5 - 0.08) / (0.5 + 0.08)},
		{NDRE, (0.5 - 0.2) / (0.5 + 0.2)},
		{ARVI, (0.5 - 0.15) / (0.5 + 0.15)},
	}
	for _, tt := range tests {
		t.Run(string(tt.index), func(t *testing.T) {
			got, err := Value(tt.index, b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestValueZeroDenominator(t *testing.T) {
	got, err := Value(NDVI, Bands{})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))

	got, err = Value(GNDVI, Bands{B03: -0.2, B08: 0.2})
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, 1))
}

func TestValueRejectsComposites(t *testing.T) {
	_, err := Value(TrueColor, Bands{})
	require.ErrorIs(t, err, ErrUnknownIndex)
}

func TestCompute(t *testing.T) {
	bands := map[string][]float32{
		"B04": {0.1, 0.2, 0},
		"B08": {0.5, 0.2, 0},
	}
	out, err := Compute(NDVI, bands)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.InDelta(t, 0.6666, out[0], 1e-3)
	assert.Zero(t, out[1])
	assert.True(t, math.IsNaN(float64(out[2])))

	_, err = Compute(NDRE, bands)
	require.Error(t, err)

	_, err = Compute(NDVI, map[string][]float32{"B04": {1}, "B08": {1, 2}})
	require.Error(t, err)
}

func TestRequiredBands(t *testing.T) {
	for _, idx := range VegetationIndices {
		bands, err := RequiredBands(idx)
		require.NoError(t, err)
		assert.Contains(t, bands, "B08")
	}
}
