package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/forest-guardian/vegindex-cli/internal/ml"
	"github.com/forest-guardian/vegindex-cli/internal/notification"
	"github.com/forest-guardian/vegindex-cli/internal/properties"
	"github.com/forest-guardian/vegindex-cli/internal/sentinel"
	"github.com/forest-guardian/vegindex-cli/internal/tiling"
	"github.com/forest-guardian/vegindex-cli/internal/ui"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envPath    string
	port       int
	logLevel   string
}

func printBanner() {
	color.Cyan(figure.NewFigure("VegIndex", "isometric1", true).String())
	color.Cyan(figure.NewFigure("CLI", "isometric1", true).String())
	fmt.Println()
}

// loadEnv loads path when given, otherwise the first .env found walking up
// from the working directory like the binary is usually launched.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("error loading env file %s: %w", path, err)
		}
		return nil
	}
	for _, candidate := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(candidate); err == nil {
			logrus.WithField("path", candidate).Debug("loaded env file")
			return nil
		}
	}
	return nil
}

func loadConfig(opts *rootOptions) (*properties.Config, error) {
	if err := loadEnv(opts.envPath); err != nil {
		return nil, err
	}
	cfg, err := properties.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.port != 0 {
		cfg.Inference.GrpcPort = opts.port
	}
	return cfg, nil
}

// newSource returns nil when no credentials are configured so that the
// offline operations keep working.
func newSource(ctx context.Context, cfg *properties.Config) sentinel.ImageSource {
	client, err := sentinel.NewClientFromConfig(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Warn("Sentinel Hub client unavailable, downloads are disabled")
		return nil
	}
	return client
}

// recoverPanic prints the panic location and reports it to Discord.
func recoverPanic(notifier *notification.Discord) {
	r := recover()
	if r == nil {
		return
	}
	pc, file, line, ok := runtime.Caller(3)
	location := "Unknown location"
	if ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}

	red := color.New(color.FgRed)
	red.Printf("\nPANIC: %v\n", r)
	red.Printf("Location: %s\n", location)
	red.Println("Please check the input and try again.")
	red.Println("Exiting...")

	if notifier == nil {
		os.Exit(2)
	}
	msg := fmt.Sprintf("VegIndex CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
	if err := notifier.SendError(context.Background(), msg); err != nil {
		red.Printf("Failed to send notification: %s\n", err)
	}
	os.Exit(2)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "vegindex",
		Short:         "Sentinel-2 vegetation indices, true color images and tiled segmentation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			notifier := notification.NewDiscord(cfg)
			defer recoverPanic(notifier)

			printBanner()
			ui.ShowMenu(&ui.App{
				Ctx:      cmd.Context(),
				Cfg:      cfg,
				Source:   newSource(cmd.Context(), cfg),
				Notifier: notifier,
				LoadModel: func() (tiling.Model, func() error, error) {
					return ml.Load(cfg)
				},
			})
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")
	flags.StringVar(&opts.envPath, "env", "", "path to a .env file")
	flags.IntVar(&opts.port, "port", 0, "port of the segmentation service")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newIndexCmd(opts),
		newTrueColorCmd(opts),
		newSegmentCmd(opts),
		newRenderCmd(opts),
		newStatsCmd(opts),
		newPixelsCmd(opts),
		newServeCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.Red("Error: %s", err)
		stop()
		os.Exit(1)
	}
}
