package ui

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/forest-guardian/vegindex-cli/internal/ml"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
	"github.com/forest-guardian/vegindex-cli/internal/tiling"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGeoJSON = `{"type":"Polygon","coordinates":[[[10,0],[10.002,0],[10.002,0.001],[10,0.001],[10,0]]]}`

// withIO feeds lines to the readers and captures everything printed.
func withIO(t *testing.T, lines ...string) *bytes.Buffer {
	t.Helper()
	oldIn, oldOut := input, stdout
	t.Cleanup(func() { input, stdout = oldIn, oldOut })

	var buf bytes.Buffer
	input = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	stdout = &buf
	return &buf
}

func testApp(t *testing.T, src sentinel.ImageSource) *App {
	t.Helper()
	cfg := properties.DefaultConfig()
	cfg.RootPath = t.TempDir()
	require.NoError(t, os.MkdirAll(cfg.GeoJSONPath(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.GeoJSONPath(), "farm.geojson"), []byte(testGeoJSON), 0644))
	return &App{Ctx: context.Background(), Cfg: cfg, Source: src}
}

type fakeSource struct {
	dates []time.Time
}

func (f *fakeSource) Search(_ context.Context, req sentinel.SearchRequest) ([]time.Time, error) {
	var out []time.Time
	for _, d := range f.dates {
		if !d.Before(req.From) && !d.After(req.To) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSource) Process(_ context.Context, req sentinel.ProcessRequest) ([]byte, error) {
	return []byte("png:" + req.From.Format(sentinel.DateLayout)), nil
}

func TestReadInt(t *testing.T) {
	withIO(t, "7", "abc", "42")

	v, err := ReadInt("n: ", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = ReadInt("n: ", 1, 10)
	assert.ErrorContains(t, err, "invalid number")

	_, err = ReadInt("n: ", 1, 10)
	assert.ErrorContains(t, err, "between 1 and 10")
}

func TestReadIntDefault(t *testing.T) {
	withIO(t, "", "15")

	v, err := ReadIntDefault("cloud: ", 20, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	v, err = ReadIntDefault("cloud: ", 20, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 15, v)
}

func TestReadDateRange(t *testing.T) {
	withIO(t, "2024-08-20", "2024-09-10", "2024-09-10", "2024-08-20", "20/08/2024")

	start, end, err := ReadDateRange()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 8, 20, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC), end)

	_, _, err = ReadDateRange()
	assert.ErrorContains(t, err, "before start date")

	_, err = ReadDate("date: ")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestReadChoiceAndYesNo(t *testing.T) {
	out := withIO(t, "2", "y", "", "no")

	choice, err := ReadChoice("Pick:", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, choice)
	assert.Contains(t, out.String(), "3. c")

	assert.True(t, ReadYesNo("? ", false))
	assert.True(t, ReadYesNo("? ", true))
	assert.False(t, ReadYesNo("? ", true))
}

func TestAvailableAOIs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.geojson", "a.geojson", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.geojson"), 0755))

	names, err := AvailableAOIs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	_, err = AvailableAOIs(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestShowMenuListsAOIsAndExits(t *testing.T) {
	out := withIO(t, "9", "5", "6")
	ShowMenu(testApp(t, &fakeSource{}))

	s := out.String()
	assert.Contains(t, s, "invalid choice")
	assert.Contains(t, s, "- farm")
	assert.Contains(t, s, "Exiting...")
}

func TestShowMenuStopsAtEndOfInput(t *testing.T) {
	withIO(t)
	done := make(chan struct{})
	go func() {
		ShowMenu(testApp(t, &fakeSource{}))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("menu did not return at end of input")
	}
}

func TestTrueColorUsesNearestDate(t *testing.T) {
	src := &fakeSource{dates: []time.Time{time.Date(2024, 9, 3, 0, 0, 0, 0, time.UTC)}}
	app := testApp(t, src)
	out := withIO(t, "farm", "2024-09-01", "", "")

	TrueColor(app)

	s := out.String()
	assert.Contains(t, s, "nearest available date 2024-09-03")
	path := filepath.Join(app.Cfg.OutputPath(), "rgb_2024-09-03.png")
	assert.Contains(t, s, path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png:2024-09-03", string(content))
}

func TestGenerateIndexReportsMissingAcquisitions(t *testing.T) {
	app := testApp(t, &fakeSource{})
	out := withIO(t, "farm", "2024-08-20", "2024-09-10", "1", "")

	GenerateIndex(app)

	assert.Contains(t, out.String(), "error generating NDVI for farm")
}

func TestGenerateIndexRejectsUnknownAOI(t *testing.T) {
	app := testApp(t, &fakeSource{})
	out := withIO(t, "nowhere")

	GenerateIndex(app)

	assert.Contains(t, out.String(), "Error:")
}

func TestSegment(t *testing.T) {
	app := testApp(t, &fakeSource{})
	app.Cfg.Inference.PatchSize = 4
	app.LoadModel = func() (tiling.Model, func() error, error) {
		return ml.NewThresholdModel(0, 0.3), func() error { return nil }, nil
	}

	in := filepath.Join(t.TempDir(), "ndvi.tif")
	data := make([]float32, 6*5)
	for i := range data {
		if i%2 == 0 {
			data[i] = 0.8
		}
	}
	meta := geotiff.NewMeta(orb.Bound{Min: orb.Point{10, 0}, Max: orb.Point{10.006, 0.005}}, 6, 5)
	require.NoError(t, geotiff.Write(in, meta, []geotiff.Band{{Data: data}}))

	out := withIO(t, in, "")
	Segment(app)

	s := out.String()
	segmented := filepath.Join(filepath.Dir(in), "ndvi_segmented.tif")
	assert.Contains(t, s, segmented)
	assert.Contains(t, s, "vegetation: 50.00%")
	assert.FileExists(t, segmented)
	assert.FileExists(t, filepath.Join(filepath.Dir(in), "ndvi_segmented_mask.png"))
}

func TestPrintCentroidSeries(t *testing.T) {
	out := withIO(t)
	aoi, err := sentinel.ParseAOI([]byte(testGeoJSON))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ndvi.tif")
	meta := geotiff.NewMeta(aoi.Bound(), 3, 1)
	require.NoError(t, geotiff.Write(path, meta, []geotiff.Band{
		{Data: []float32{0.1, 0.625, 0.3}, Tags: map[string]string{geotiff.DateTag: "2024-08-20"}},
	}))

	printCentroidSeries(aoi, path)
	assert.Contains(t, out.String(), "Values at the AOI centroid")
	assert.Contains(t, out.String(), "2024-08-20: 0.6250")
}
