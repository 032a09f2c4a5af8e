package delivery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/forest-guardian/vegindex-cli/internal/cache"
	"github.com/forest-guardian/vegindex-cli/internal/indices"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
	"github.com/sirupsen/logrus"
)

type TrueColorRequest struct {
	AOI           *sentinel.AOI
	Target        time.Time
	MaxCloudCover int
	// Optimized selects the contrast enhanced composite.
	Optimized bool
}

type TrueColorResult struct {
	Date time.Time
	// Exact reports whether Date is the requested target date.
	Exact bool
	Path  string
}

// TrueColorForTargetDate saves a PNG true color composite of the AOI on the
// target date, or on the nearest date with an acquisition when the target
// has none.
func TrueColorForTargetDate(ctx context.Context, cfg *properties.Config, src sentinel.ImageSource, req TrueColorRequest) (*TrueColorResult, error) {
	if req.AOI == nil {
		return nil, sentinel.ErrInvalidAOI
	}
	if req.Target.IsZero() {
		return nil, errors.New("target date is required")
	}

	index := indices.TrueColor
	if req.Optimized {
		index = indices.TrueColorOptimized
	}
	evalscript, err := sentinel.Evalscript(index)
	if err != nil {
		return nil, err
	}

	target, _ := sentinel.DayRange(req.Target)
	dates, err := src.Search(ctx, sentinel.SearchRequest{
		AOI:           req.AOI,
		From:          target,
		To:            target,
		MaxCloudCover: req.MaxCloudCover,
	})
	if err != nil {
		return nil, err
	}

	date, exact := target, len(dates) > 0
	if !exact {
		date, err = sentinel.FindNearestAvailableDate(ctx, src, req.AOI, target, cfg.Imagery.NearestDateWindow, req.MaxCloudCover)
		if err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"target": target.Format(sentinel.DateLayout),
			"date":   date.Format(sentinel.DateLayout),
		}).Info("using nearest available date")
	}

	width, height := sentinel.ScaledDimensions(req.AOI.Bound(), cfg.Imagery.Resolution, cfg.Imagery.MaxDimension)
	content, err := src.Process(ctx, sentinel.ProcessRequest{
		AOI:        req.AOI,
		From:       date,
		To:         date,
		Evalscript: evalscript,
		Width:      width,
		Height:     height,
		Format:     sentinel.FormatPNG,
	})
	if err != nil {
		return nil, err
	}

	outputPath := filepath.Join(cfg.OutputPath(), fmt.Sprintf("rgb_%s.png", date.Format(sentinel.DateLayout)))
	if err := cache.WriteAtomic(outputPath, content); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", outputPath, err)
	}
	return &TrueColorResult{Date: date, Exact: exact, Path: outputPath}, nil
}
