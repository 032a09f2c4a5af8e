package sentinel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAOI(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "feature collection", data: testAOI},
		{name: "feature", data: `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}`},
		{name: "bare polygon", data: `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`},
		{name: "multipolygon", data: `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]]]}`},
		{name: "point", data: `{"type":"Point","coordinates":[0,0]}`, wantErr: true},
		{name: "empty collection", data: `{"type":"FeatureCollection","features":[]}`, wantErr: true},
		{name: "out of range", data: `{"type":"Polygon","coordinates":[[[0,0],[200,0],[200,1],[0,1],[0,0]]]}`, wantErr: true},
		{name: "not json", data: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aoi, err := ParseAOI([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAOI)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, aoi.Geometry)
		})
	}
}

func TestLoadAOI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.geojson")
	require.NoError(t, os.WriteFile(path, []byte(testAOI), 0644))

	aoi, err := LoadAOI(path)
	require.NoError(t, err)
	assert.Equal(t, [4]float64{-47.10, -22.90, -47.00, -22.80}, aoi.BBox())

	lat, lon, err := aoi.Centroid()
	require.NoError(t, err)
	assert.InDelta(t, -22.85, lat, 1e-9)
	assert.InDelta(t, -47.05, lon, 1e-9)

	_, err = LoadAOI(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestScaledDimensions(t *testing.T) {
	// About 0.1 degree at the equator is roughly 11.1 km.
	small := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0.1, 0.05}}
	w, h := ScaledDimensions(small, 10, 2500)
	assert.InDelta(t, 1113, w, 2)
	assert.InDelta(t, 556, h, 2)

	large := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 0.5}}
	w, h = ScaledDimensions(large, 10, 2500)
	assert.Equal(t, 2500, w)
	assert.InDelta(t, 1250, h, 2)

	tiny := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0.00001, 0.00001}}
	w, h = ScaledDimensions(tiny, 10, 2500)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}

func TestEvalscript(t *testing.T) {
	for index := range evalscripts {
		script, err := Evalscript(index)
		require.NoError(t, err)
		assert.Contains(t, script, "//VERSION=3")
	}
	_, err := Evalscript("ndwi")
	assert.Error(t, err)
}

type fakeSearcher struct {
	available map[time.Time]bool
	searched  []time.Time
	err       error
}

func (f *fakeSearcher) Search(_ context.Context, req SearchRequest) ([]time.Time, error) {
	f.searched = append(f.searched, req.From)
	if f.err != nil {
		return nil, f.err
	}
	if f.available[req.From] {
		return []time.Time{req.From}, nil
	}
	return nil, nil
}

func TestFindNearestAvailableDate(t *testing.T) {
	aoi := mustAOI(t)

	t.Run("exact date", func(t *testing.T) {
		s := &fakeSearcher{available: map[time.Time]bool{date("2024-05-10"): true}}
		found, err := FindNearestAvailableDate(context.Background(), s, aoi, date("2024-05-10"), 30, 20)
		require.NoError(t, err)
		assert.Equal(t, date("2024-05-10"), found)
		assert.Len(t, s.searched, 1)
	})

	t.Run("forward before backward", func(t *testing.T) {
		s := &fakeSearcher{available: map[time.Time]bool{
			date("2024-05-08"): true,
			date("2024-05-12"): true,
		}}
		found, err := FindNearestAvailableDate(context.Background(), s, aoi, date("2024-05-10"), 30, 20)
		require.NoError(t, err)
		assert.Equal(t, date("2024-05-12"), found)
		assert.Equal(t, []time.Time{
			date("2024-05-10"),
			date("2024-05-11"), date("2024-05-09"),
			date("2024-05-12"),
		}, s.searched)
	})

	t.Run("backward", func(t *testing.T) {
		s := &fakeSearcher{available: map[time.Time]bool{date("2024-05-07"): true}}
		found, err := FindNearestAvailableDate(context.Background(), s, aoi, date("2024-05-10"), 30, 20)
		require.NoError(t, err)
		assert.Equal(t, date("2024-05-07"), found)
	})

	t.Run("nothing in window", func(t *testing.T) {
		s := &fakeSearcher{}
		_, err := FindNearestAvailableDate(context.Background(), s, aoi, date("2024-05-10"), 2, 20)
		assert.ErrorIs(t, err, ErrNoNearbyAcquisition)
		assert.Len(t, s.searched, 5)
	})

	t.Run("search error", func(t *testing.T) {
		boom := errors.New("boom")
		s := &fakeSearcher{err: boom}
		_, err := FindNearestAvailableDate(context.Background(), s, aoi, date("2024-05-10"), 2, 20)
		assert.ErrorIs(t, err, boom)
	})
}
