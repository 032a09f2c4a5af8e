package delivery

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/forest-guardian/vegindex-cli/internal/cache"
	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/forest-guardian/vegindex-cli/internal/indices"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
	"github.com/forest-guardian/vegindex-cli/internal/utils"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

const searchCacheTTL = 6 * time.Hour

type IndexRequest struct {
	AOI           *sentinel.AOI
	Start         time.Time
	End           time.Time
	Index         indices.Index
	MaxCloudCover int
	// Local downloads raw reflectances and computes the index here instead
	// of on the Process API.
	Local bool
	// Progress shows a progress bar while dates are downloaded.
	Progress bool
}

type IndexResult struct {
	Path   string
	Dates  []time.Time
	Width  int
	Height int
}

// IndexFileName is the name of the GeoTIFF written for an index and date
// range.
func IndexFileName(start, end time.Time, index indices.Index) string {
	return fmt.Sprintf("%s_%s_%s.tif", start.Format(sentinel.DateLayout), end.Format(sentinel.DateLayout), index)
}

// GeoTIFFForVegIndex writes one band per acquisition date between Start and
// End holding the requested vegetation index over the AOI bounding box. Every
// band is tagged with its DATE.
func GeoTIFFForVegIndex(ctx context.Context, cfg *properties.Config, src sentinel.ImageSource, req IndexRequest) (*IndexResult, error) {
	if req.AOI == nil {
		return nil, sentinel.ErrInvalidAOI
	}
	if req.Index.IsComposite() {
		return nil, fmt.Errorf("%w: %s is not a vegetation index", indices.ErrUnknownIndex, req.Index)
	}
	evalscript := sentinel.EvalscriptRawBands
	if !req.Local {
		script, err := sentinel.Evalscript(req.Index)
		if err != nil {
			return nil, err
		}
		evalscript = script
	}

	dates, err := searchDates(ctx, cfg, src, sentinel.SearchRequest{
		AOI:           req.AOI,
		From:          req.Start,
		To:            req.End,
		MaxCloudCover: req.MaxCloudCover,
	})
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, sentinel.ErrNoAcquisitions
	}
	// band i carries dates[i]
	utils.SortDates(dates, true)

	width, height := sentinel.ScaledDimensions(req.AOI.Bound(), cfg.Imagery.Resolution, cfg.Imagery.MaxDimension)
	logrus.WithFields(logrus.Fields{
		"index":  req.Index,
		"dates":  len(dates),
		"width":  width,
		"height": height,
	}).Info("fetching index images")

	f := &fetcher{
		cfg:        cfg,
		src:        src,
		aoi:        req.AOI,
		index:      req.Index,
		local:      req.Local,
		evalscript: evalscript,
		width:      width,
		height:     height,
	}
	bands, err := f.fetchAll(ctx, dates, req.Progress)
	if err != nil {
		return nil, err
	}

	outputPath := filepath.Join(cfg.OutputPath(), IndexFileName(req.Start, req.End, req.Index))
	meta := geotiff.NewMeta(req.AOI.Bound(), width, height)
	if err := geotiff.Write(outputPath, meta, bands); err != nil {
		return nil, err
	}

	return &IndexResult{Path: outputPath, Dates: dates, Width: width, Height: height}, nil
}

func searchDates(ctx context.Context, cfg *properties.Config, src sentinel.Searcher, req sentinel.SearchRequest) ([]time.Time, error) {
	fc := cache.NewFileCache[[]time.Time](cfg.CachePath("searches"), searchCacheTTL)
	geometry, err := req.AOI.GeoJSON()
	if err != nil {
		return nil, err
	}
	key := fc.GenerateKey(string(geometry), req.From.Format(sentinel.DateLayout), req.To.Format(sentinel.DateLayout), req.MaxCloudCover)

	if dates, ok := fc.Get(key); ok {
		logrus.WithField("dates", len(dates)).Debug("catalog search served from cache")
		return dates, nil
	}

	dates, err := src.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := fc.Set(key, dates); err != nil {
		logrus.WithError(err).Warn("failed to cache catalog search")
	}
	return dates, nil
}

type fetcher struct {
	cfg        *properties.Config
	src        sentinel.ImageSource
	aoi        *sentinel.AOI
	index      indices.Index
	local      bool
	evalscript string
	width      int
	height     int
}

// fetchAll downloads every date on a worker pool. Bands keep the order of
// dates; the first error stops the remaining downloads.
func (f *fetcher) fetchAll(ctx context.Context, dates []time.Time, progress bool) ([]geotiff.Band, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		bands    = make([]geotiff.Band, len(dates))
		mu       sync.Mutex
		firstErr error
		bar      *progressbar.ProgressBar
	)
	if progress {
		bar = progressbar.Default(int64(len(dates)), "Downloading images")
	}

	wp := workerpool.New(max(f.cfg.Imagery.FetchWorkers, 1))
	for i, date := range dates {
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			data, err := f.fetchDate(ctx, date)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to fetch %s: %w", date.Format(sentinel.DateLayout), err)
					cancel()
				}
				return
			}
			bands[i] = geotiff.Band{
				Data: data,
				Tags: map[string]string{geotiff.DateTag: date.Format(sentinel.DateLayout)},
			}
			if bar != nil {
				bar.Add(1)
			}
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	return bands, nil
}

func (f *fetcher) fetchDate(ctx context.Context, date time.Time) ([]float32, error) {
	content, err := f.download(ctx, date)
	if err != nil {
		return nil, err
	}

	img, err := geotiff.ReadBytes(content, f.cfg.CachePath("tmp"))
	if err != nil {
		return nil, err
	}
	if img.Width != f.width || img.Height != f.height {
		return nil, fmt.Errorf("%w: got %dx%d, requested %dx%d", geotiff.ErrInvalidImage, img.Width, img.Height, f.width, f.height)
	}

	if !f.local {
		return img.Bands[0].Data, nil
	}
	if len(img.Bands) != len(sentinel.RawBands) {
		return nil, fmt.Errorf("%w: expected %d raw bands, got %d", geotiff.ErrInvalidImage, len(sentinel.RawBands), len(img.Bands))
	}
	byName := make(map[string][]float32, len(img.Bands))
	for i, name := range sentinel.RawBands {
		byName[name] = img.Bands[i].Data
	}
	return indices.Compute(f.index, byName)
}

// download returns the Process API response for date, reusing a previous
// download of the same request when present.
func (f *fetcher) download(ctx context.Context, date time.Time) ([]byte, error) {
	bbox := f.aoi.BBox()
	kind := string(f.index)
	if f.local {
		kind = "raw"
	}
	images := cache.NewBlobCache(f.cfg.CachePath("images"), ".tif")
	key := cache.Key(bbox, date.Format(sentinel.DateLayout), kind, f.width, f.height)
	if content, ok := images.Get(key); ok {
		return content, nil
	}

	content, err := f.src.Process(ctx, sentinel.ProcessRequest{
		AOI:        f.aoi,
		UseBBox:    true,
		From:       date,
		To:         date,
		Evalscript: f.evalscript,
		Width:      f.width,
		Height:     f.height,
		Format:     sentinel.FormatTIFF,
	})
	if err != nil {
		return nil, err
	}

	if err := images.Set(key, content); err != nil {
		logrus.WithError(err).Warn("failed to cache image")
	}
	return content, nil
}
