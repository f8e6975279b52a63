// Command image-ingest crops and compresses images the way the upload modal
// does and stores the result.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	imageingest "github.com/menta2k/image-ingest"
	"github.com/menta2k/image-ingest/internal/config"
	"github.com/menta2k/image-ingest/internal/logging"
	"github.com/menta2k/image-ingest/internal/notify"
	"github.com/menta2k/image-ingest/internal/storage"
	"github.com/menta2k/image-ingest/internal/utils"
	"github.com/menta2k/image-ingest/pkg/types"
)

func main() {
	if err := newApp().Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globalOptions are shared by every subcommand
type globalOptions struct {
	configPath  string
	outDir      string
	logLevel    string
	development bool
}

type app struct {
	root   *cobra.Command
	opts   globalOptions
	stdout io.Writer
	stderr io.Writer
}

func newApp() *app {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}

	a.root = &cobra.Command{
		Use:   "image-ingest",
		Short: "Crop, rotate and compress images for upload",
		Long: `image-ingest runs the upload pipeline on a local file or URL.

The crop command frames the image with an aspect preset, optional
rotation, zoom and pan, then compresses it to WebP. The compress command
skips the crop and compresses the original. Results are written to the
configured storage backend and their URL is printed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := a.root.PersistentFlags()
	pf.StringVarP(&a.opts.configPath, "config", "c", "", "path to a YAML or JSON config file")
	pf.StringVarP(&a.opts.outDir, "out", "o", "", "output directory for the local storage backend")
	pf.StringVar(&a.opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&a.opts.development, "dev", false, "human readable logs")

	a.root.AddCommand(
		a.newCropCmd(),
		a.newCompressCmd(),
		a.newPresetsCmd(),
		a.newVersionCmd(),
	)
	return a
}

// withOutput sets custom output writers
func (a *app) withOutput(stdout, stderr io.Writer) *app {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI until the command finishes or a signal arrives
func (a *app) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// executeWithArgs runs the CLI with specific arguments
func (a *app) executeWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig reads --config, then the user config file, then defaults, and
// applies the flag overrides
func (a *app) loadConfig() (*config.Config, error) {
	path := a.opts.configPath
	if path == "" {
		if p := config.GetConfigPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if a.opts.outDir != "" {
		cfg.Storage.Dir = a.opts.outDir
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	if a.opts.development {
		cfg.Log.Development = true
	}
	return cfg, cfg.Validate()
}

// pipeline bundles what every processing command needs
type pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	ingester *imageingest.Ingester
	sink     storage.Sink
}

func (a *app) newPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	ing, err := imageingest.NewFromConfig(cfg,
		imageingest.WithLogger(logger),
		imageingest.WithNotifier(notify.NewLogNotifier(logger)),
	)
	if err != nil {
		return nil, err
	}

	sink, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	return &pipeline{cfg: cfg, logger: logger, ingester: ing, sink: sink}, nil
}

// store uploads asset and prints a one-line summary
func (a *app) store(ctx context.Context, rt *pipeline, src types.SourceImage, asset types.OutputAsset) error {
	url, err := rt.sink.Put(ctx, asset)
	if err != nil {
		return fmt.Errorf("store %s: %w", asset.Name, err)
	}

	rt.logger.Info("asset stored",
		zap.String("name", asset.Name),
		zap.String("encoding", asset.Encoding),
		zap.Int64("size", asset.Size),
		zap.String("url", url))

	fmt.Fprintf(a.stdout, "%s\t%s -> %s\t%dx%d\t%s\n",
		url,
		utils.FormatFileSize(src.Size),
		utils.FormatFileSize(asset.Size),
		asset.Width, asset.Height,
		asset.Encoding)
	return nil
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.stdout, imageingest.GetVersion())
		},
	}
}
