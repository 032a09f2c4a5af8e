package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/forest-guardian/vegindex-cli/internal/dataset"
	"github.com/forest-guardian/vegindex-cli/internal/delivery"
	"github.com/forest-guardian/vegindex-cli/internal/geotiff"
	"github.com/forest-guardian/vegindex-cli/internal/indices"
	"github.com/forest-guardian/vegindex-cli/internal/ml"
	"github.com/forest-guardian/vegindex-cli/internal/notification"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
	"github.com/forest-guardian/vegindex-cli/output"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errNoSource = errors.New("Sentinel Hub credentials are not configured")

// notified runs fn and reports its outcome to Discord. fn returns the
// success message.
func notified(ctx context.Context, cfg *properties.Config, fn func() (string, error)) error {
	notifier := notification.NewDiscord(cfg)
	msg, err := fn()
	if err != nil {
		if nerr := notifier.SendError(ctx, "VegIndex CLI\n\n"+err.Error()); nerr != nil {
			logrus.WithError(nerr).Warn("error sending discord notification")
		}
		return err
	}
	color.Green("%s", msg)
	if nerr := notifier.SendSuccess(ctx, "VegIndex CLI\n\n"+msg); nerr != nil {
		logrus.WithError(nerr).Warn("error sending discord notification")
	}
	return nil
}

func parseDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("--%s is required", name)
	}
	d, err := time.Parse(sentinel.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, use YYYY-MM-DD", name, value)
	}
	return d, nil
}

func formatDates(dates []time.Time) string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(sentinel.DateLayout)
	}
	return strings.Join(out, ", ")
}

type renderFlags struct {
	cols     int
	colormap string
	vmin     float64
	vmax     float64
}

func (f *renderFlags) register(cmd *cobra.Command) {
	def := output.DefaultIndexImageOptions()
	cmd.Flags().IntVar(&f.cols, "cols", def.NCols, "number of panel columns in the preview")
	cmd.Flags().StringVar(&f.colormap, "colormap", "Greens", "preview colormap (Greens, RdYlGn)")
	cmd.Flags().Float64Var(&f.vmin, "vmin", def.VMin, "lower bound of the color scale")
	cmd.Flags().Float64Var(&f.vmax, "vmax", def.VMax, "upper bound of the color scale")
}

func (f *renderFlags) options() (output.IndexImageOptions, error) {
	cmap, err := output.ParseColormap(f.colormap)
	if err != nil {
		return output.IndexImageOptions{}, err
	}
	return output.IndexImageOptions{NCols: f.cols, Colormap: cmap, VMin: f.vmin, VMax: f.vmax}, nil
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var (
		aoiPath, start, end, index string
		cloud                      int
		local, render              bool
		rf                         renderFlags
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build a multi-date vegetation index GeoTIFF for an area of interest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			idx, err := indices.Parse(index)
			if err != nil {
				return err
			}
			from, err := parseDate("start", start)
			if err != nil {
				return err
			}
			to, err := parseDate("end", end)
			if err != nil {
				return err
			}
			aoi, err := sentinel.LoadAOI(aoiPath)
			if err != nil {
				return err
			}
			opts, err := rf.options()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("cloud") {
				cloud = cfg.Imagery.MaxCloudCover
			}
			src := newSource(cmd.Context(), cfg)
			if src == nil {
				return errNoSource
			}

			return notified(cmd.Context(), cfg, func() (string, error) {
				res, err := delivery.GeoTIFFForVegIndex(cmd.Context(), cfg, src, delivery.IndexRequest{
					AOI:           aoi,
					Start:         from,
					End:           to,
					Index:         idx,
					MaxCloudCover: cloud,
					Local:         local,
					Progress:      true,
				})
				if err != nil {
					return "", fmt.Errorf("error generating %s: %w", idx.Label(), err)
				}
				msg := fmt.Sprintf("%s GeoTIFF with %d dates (%s): %s", idx.Label(), len(res.Dates), formatDates(res.Dates), res.Path)
				if !render {
					return msg, nil
				}
				r, err := delivery.RenderIndexGeoTIFF(res.Path, opts)
				if err != nil {
					return "", fmt.Errorf("error rendering %s: %w", res.Path, err)
				}
				return fmt.Sprintf("%s\nPreview: %s\nStatistics: %s", msg, r.PreviewPath, r.StatsPath), nil
			})
		},
	}
	cmd.Flags().StringVar(&aoiPath, "aoi", "", "GeoJSON file with the area of interest")
	cmd.Flags().StringVar(&start, "start", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&index, "index", string(indices.NDVI), "vegetation index (ndvi, evi, savi, gndvi, ndre, arvi)")
	cmd.Flags().IntVar(&cloud, "cloud", 0, "maximum cloud cover percentage")
	cmd.Flags().BoolVar(&local, "local", false, "download raw bands and compute the index locally")
	cmd.Flags().BoolVar(&render, "render", true, "also write a PNG preview and a CSV of statistics")
	rf.register(cmd)
	_ = cmd.MarkFlagRequired("aoi")
	return cmd
}

func newTrueColorCmd(root *rootOptions) *cobra.Command {
	var (
		aoiPath, date string
		cloud         int
		optimized     bool
	)
	cmd := &cobra.Command{
		Use:   "truecolor",
		Short: "Download a true color PNG for the target date or the nearest one available",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			target, err := parseDate("date", date)
			if err != nil {
				return err
			}
			aoi, err := sentinel.LoadAOI(aoiPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("cloud") {
				cloud = cfg.Imagery.MaxCloudCover
			}
			src := newSource(cmd.Context(), cfg)
			if src == nil {
				return errNoSource
			}

			return notified(cmd.Context(), cfg, func() (string, error) {
				res, err := delivery.TrueColorForTargetDate(cmd.Context(), cfg, src, delivery.TrueColorRequest{
					AOI:           aoi,
					Target:        target,
					MaxCloudCover: cloud,
					Optimized:     optimized,
				})
				if err != nil {
					return "", fmt.Errorf("error downloading true color image: %w", err)
				}
				if !res.Exact {
					color.Yellow("No acquisition on %s, using %s", target.Format(sentinel.DateLayout), res.Date.Format(sentinel.DateLayout))
				}
				return fmt.Sprintf("True color image on %s: %s", res.Date.Format(sentinel.DateLayout), res.Path), nil
			})
		},
	}
	cmd.Flags().StringVar(&aoiPath, "aoi", "", "GeoJSON file with the area of interest")
	cmd.Flags().StringVar(&date, "date", "", "target date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&cloud, "cloud", 0, "maximum cloud cover percentage")
	cmd.Flags().BoolVar(&optimized, "optimized", false, "use the contrast enhanced composite")
	_ = cmd.MarkFlagRequired("aoi")
	return cmd
}

func newSegmentCmd(root *rootOptions) *cobra.Command {
	var (
		out, modelAddress string
		patchSize         int
		workers           int
	)
	cmd := &cobra.Command{
		Use:   "segment <geotiff>",
		Short: "Segment a GeoTIFF patch by patch with the configured model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if modelAddress != "" {
				cfg.Inference.ModelAddress = modelAddress
			}
			if patchSize > 0 {
				cfg.Inference.PatchSize = patchSize
			}
			if workers > 0 {
				cfg.Inference.Workers = workers
			}
			in := args[0]
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + "_segmented.tif"
			}

			model, release, err := ml.Load(cfg)
			if err != nil {
				return err
			}
			defer release()

			return notified(cmd.Context(), cfg, func() (string, error) {
				res, err := delivery.SegmentGeoTIFF(cmd.Context(), cfg, model, in, out)
				if err != nil {
					return "", err
				}
				var b strings.Builder
				fmt.Fprintf(&b, "Segmentation of %s: %s\nMask: %s\nGeoJSON: %s", in, res.Path, res.MaskPath, res.GeoJSONPath)
				for _, label := range cfg.Inference.Labels {
					if share, ok := res.Coverage[label]; ok {
						fmt.Fprintf(&b, "\n%s: %.2f%%", label, share*100)
					}
				}
				return b.String(), nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output GeoTIFF path")
	cmd.Flags().StringVar(&modelAddress, "model", "", "address of a segmentation service, overrides the config")
	cmd.Flags().IntVar(&patchSize, "patch-size", 0, "patch side in pixels")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of patches predicted concurrently")
	return cmd
}

func newRenderCmd(root *rootOptions) *cobra.Command {
	var rf renderFlags
	cmd := &cobra.Command{
		Use:   "render <geotiff>",
		Short: "Write a PNG preview and a CSV of statistics for an index GeoTIFF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := rf.options()
			if err != nil {
				return err
			}
			res, err := delivery.RenderIndexGeoTIFF(args[0], opts)
			if err != nil {
				return err
			}
			color.Green("Preview: %s", res.PreviewPath)
			color.Green("Statistics: %s", res.StatsPath)
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "stats <geotiff>",
		Short: "Print per-date statistics of an index GeoTIFF as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := geotiff.Read(args[0])
			if err != nil {
				return err
			}
			if out != "" {
				_, err := output.CreateIndexStatsCSV(img, out)
				return err
			}
			stats := output.ComputeIndexStats(img)
			csv, err := gocsv.MarshalString(&stats)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), csv)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the CSV to this file instead of stdout")
	return cmd
}

func newPixelsCmd(root *rootOptions) *cobra.Command {
	var out, aoiPath string
	cmd := &cobra.Command{
		Use:   "pixels <geotiff>",
		Short: "Export the per-pixel time series of an index GeoTIFF as CSV",
		Long:  "Export the per-pixel time series of an index GeoTIFF as CSV. With --aoi only the pixel under the AOI centroid is exported.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + "_pixels.csv"
			}
			if aoiPath == "" {
				n, err := dataset.CreatePixelDatasetCSV(in, out, true)
				if err != nil {
					return err
				}
				color.Green("Pixel dataset with %d rows: %s", n, out)
				return nil
			}

			aoi, err := sentinel.LoadAOI(aoiPath)
			if err != nil {
				return err
			}
			lat, lon, err := aoi.Centroid()
			if err != nil {
				return err
			}
			n, err := dataset.PixelSeriesCSV(in, lon, lat, out)
			if err != nil {
				return err
			}
			color.Green("Series of %d dates at %.6f, %.6f: %s", n, lat, lon, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output CSV path")
	cmd.Flags().StringVar(&aoiPath, "aoi", "", "GeoJSON file whose centroid selects a single pixel")
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		model     string
		channel   int
		threshold float32
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a segmentation model over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := ml.ServedModel(model, channel, threshold)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if root.port == 0 {
				color.Yellow("No port specified. Using default port: %d", cfg.Inference.GrpcPort)
			}
			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Inference.GrpcPort))
			if err != nil {
				return fmt.Errorf("failed to listen on port %d: %w", cfg.Inference.GrpcPort, err)
			}
			return ml.Serve(cmd.Context(), lis, m)
		},
	}
	cmd.Flags().StringVar(&model, "model", "threshold", "model to serve: threshold or identity")
	cmd.Flags().IntVar(&channel, "channel", 0, "input band holding the vegetation index")
	cmd.Flags().Float32Var(&threshold, "threshold", ml.DefaultVegetationThreshold, "index value from which a pixel is vegetation")
	return cmd
}

func newConfigCmd(root *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write a default configuration to the --config file",
		Long:  "Write a default configuration to the --config file. Credentials are read from the environment and never written.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root.configPath == "" {
				return errors.New("--config is empty")
			}
			if _, err := os.Stat(root.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", root.configPath)
			}
			if err := properties.SaveConfig(properties.DefaultConfig(), root.configPath); err != nil {
				return err
			}
			color.Green("Configuration written to %s", root.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func init() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
