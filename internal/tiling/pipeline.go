package tiling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type options struct {
	patchSize int
	workers   int
	progress  bool
}

type Option func(*options)

// WithPatchSize sets the square patch size, which is also the padding
// multiple. Defaults to DefaultPatchSize.
func WithPatchSize(size int) Option {
	return func(o *options) { o.patchSize = size }
}

// WithWorkers predicts up to n patches concurrently. n <= 1 keeps the
// sequential row-major order.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithProgress shows a progress bar on stdout while patches are predicted.
func WithProgress(enabled bool) Option {
	return func(o *options) { o.progress = enabled }
}

// SegmentLargeImage runs model over img patch by patch and returns a
// (C_out, H, W) raster where H and W are the dimensions of img.
func SegmentLargeImage(ctx context.Context, img *Raster, model Model, opts ...Option) (*Raster, error) {
	o := options{patchSize: DefaultPatchSize, workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, errors.New("model is required")
	}
	if ev, ok := model.(Evaler); ok {
		ev.Eval()
	}

	start := time.Now()
	padded, padH, padW, err := PadToMultiple(img, o.patchSize)
	if err != nil {
		return nil, err
	}

	patches, err := ExtractPatches(padded, o.patchSize)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"shape":   img.Shape(),
		"padded":  padded.Shape(),
		"patches": len(patches),
		"workers": o.workers,
	}).Debug("starting tiled inference")

	var bar *progressbar.ProgressBar
	if o.progress {
		bar = progressbar.Default(int64(len(patches)), "Predicting patches")
		defer bar.Finish()
	}

	var predictions []Patch
	if o.workers > 1 {
		predictions, err = predictConcurrently(ctx, model, patches, o.workers, bar)
	} else {
		predictions, err = predictSequentially(ctx, model, patches, bar)
	}
	if err != nil {
		return nil, err
	}

	stitched, err := Stitch(predictions, predictions[0].Data.Channels, padded.Height, padded.Width, o.patchSize)
	if err != nil {
		return nil, err
	}

	out, err := Crop(stitched, padH, padW)
	if err != nil {
		return nil, err
	}
	logrus.WithField("elapsed", time.Since(start)).Debug("tiled inference finished")
	return out, nil
}

func predictSequentially(ctx context.Context, model Model, patches []Patch, bar *progressbar.ProgressBar) ([]Patch, error) {
	predictions := make([]Patch, len(patches))
	for i, p := range patches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pred, err := predictPatch(ctx, model, p)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			if err := checkFirstPrediction(pred, p.Data.Height); err != nil {
				return nil, err
			}
		} else if err := checkPatchShape(pred.Data, predictions[0].Data.Channels, p.Data.Height); err != nil {
			return nil, fmt.Errorf("patch at (%d, %d): %w", p.Row, p.Col, err)
		}
		predictions[i] = pred
		if bar != nil {
			bar.Add(1)
		}
	}
	return predictions, nil
}

func predictConcurrently(ctx context.Context, model Model, patches []Patch, workers int, bar *progressbar.ProgressBar) ([]Patch, error) {
	predictions := make([]Patch, len(patches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, p := range patches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pred, err := predictPatch(gctx, model, p)
			if err != nil {
				return err
			}
			// each goroutine owns predictions[i]
			predictions[i] = pred
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := patches[0].Data.Height
	if err := checkFirstPrediction(predictions[0], size); err != nil {
		return nil, err
	}
	for _, pred := range predictions[1:] {
		if err := checkPatchShape(pred.Data, predictions[0].Data.Channels, size); err != nil {
			return nil, fmt.Errorf("patch at (%d, %d): %w", pred.Row, pred.Col, err)
		}
	}
	return predictions, nil
}

func predictPatch(ctx context.Context, model Model, p Patch) (Patch, error) {
	out, err := model.Predict(ctx, p.Data.Batch())
	if err != nil {
		return Patch{}, fmt.Errorf("model failed on patch at (%d, %d): %w", p.Row, p.Col, err)
	}
	pred, err := Unbatch(out)
	if err != nil {
		return Patch{}, fmt.Errorf("patch at (%d, %d): %w: %v", p.Row, p.Col, ErrInconsistentOutput, err)
	}
	return Patch{Row: p.Row, Col: p.Col, Data: pred}, nil
}

// checkFirstPrediction fixes C_out and requires the spatial size to match
// the patch size.
func checkFirstPrediction(pred Patch, size int) error {
	if pred.Data.Height != size || pred.Data.Width != size {
		return fmt.Errorf("patch at (%d, %d): %w: expected %dx%d prediction, got %dx%d",
			pred.Row, pred.Col, ErrInconsistentOutput, size, size, pred.Data.Height, pred.Data.Width)
	}
	return nil
}
