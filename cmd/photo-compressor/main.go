package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-compressor-go/internal/batch"
	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/logger"
	"photo-compressor-go/internal/metadata"
	"photo-compressor-go/internal/report"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/statistics"
	"photo-compressor-go/internal/web"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	inputDir    string
	outputDir   string
	quality     int
	maxWidth    int
	maxHeight   int
	verbose     bool
	quiet       bool
	noProgress  bool
	useExiftool bool
	port        int
)

// rootCmd compresses every image of the input directory.
var rootCmd = &cobra.Command{
	Use:   "photo-compressor",
	Short: "Batch-compress photos into web-friendly JPEGs",
	Long: `photo-compressor converts every image of an input directory into a
JPEG in an output directory, scaled down to fit a bounding box.

Features:
- Reads JPEG, PNG, WEBP and HEIC
- Fits images into 3000x3000 (configurable) with Lanczos, never upscales
- Flattens alpha, palette and grayscale images to RGB
- Writes <name>.jpg at quality 85 (configurable)
- Reports size before/after and the reduction for every file
- A broken file is reported and skipped, the batch keeps going

The optimize setting is accepted in config but currently has no effect:
the Go JPEG encoder has no optimized-Huffman option.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd)
	},
}

// scanCmd lists the files a run would convert.
var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "List eligible images without converting them",
	Long: `Scan the specified directory (or the configured input directory) and
list the images a compression run would process, with their sizes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, args)
	},
}

// inspectCmd prints what is known about one image.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show format, dimensions, color mode and EXIF of one image",
	Long: `Decodes a single image and prints its format, dimensions and color mode,
the dimensions it would be fitted to, and the camera, date and orientation
found in its EXIF metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd, args[0])
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts a web server exposing the compressor over HTTP:
- GET  /api/status    current run and statistics
- POST /api/scan      list eligible images
- POST /api/compress  start a run
- POST /api/stop      cancel the running run
- GET  /api/results   per-file results of the last run
- /ws                 live results over WebSocket`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&inputDir, "input", "", "input directory (default: images)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "output directory (default: compressed)")
	rootCmd.PersistentFlags().IntVar(&quality, "quality", config.DefaultQuality, "JPEG quality (1-95)")
	rootCmd.PersistentFlags().IntVar(&maxWidth, "max-width", config.DefaultMaxWidth, "maximum output width")
	rootCmd.PersistentFlags().IntVar(&maxHeight, "max-height", config.DefaultMaxHeight, "maximum output height")

	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	inspectCmd.Flags().BoolVar(&useExiftool, "exiftool", true, "fall back to the exiftool binary when the file has no EXIF block")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress executes one compression run over the input directory.
func runCompress(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if noProgress {
		cfg.ShowProgress = false
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	reporter := report.New(os.Stdout, os.Stderr, quiet)
	comp := compressor.NewDefaultCompressor(log)

	var hooks batch.Hooks
	if cfg.ShowProgress && !quiet {
		hooks = progressHooks(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := batch.NewBatchCompressorWithHooks(cfg, log, stats, comp, reporter, hooks)
	summary, err := b.Run(ctx)
	if err != nil {
		return err
	}

	if summary.Found > 0 {
		reporter.RunSummary(stats)
	}
	return nil
}

// progressHooks drives a progress bar on w from the batch callbacks.
func progressHooks(w io.Writer) batch.Hooks {
	var bar *progressbar.ProgressBar
	return batch.Hooks{
		OnStart: func(runID string, total int) {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription("Compressing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		},
		OnResult: func(index, total int, res compressor.CompressionResult) {
			if bar == nil {
				return
			}
			_ = bar.Add(1)
			if index == total-1 {
				_ = bar.Finish()
			}
		},
	}
}

// runScan lists eligible images and their total size.
func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	scanDir := cfg.InputDirectory
	if len(args) > 0 {
		scanDir = args[0]
	}

	log := setupLogger(cfg)
	files, err := scanner.New(cfg.SupportedExtensions, cfg.SortFiles, log).Scan(scanDir)
	if err != nil {
		if errors.Is(err, scanner.ErrInputNotFound) {
			report.New(os.Stdout, os.Stderr, quiet).InputMissing(scanDir)
		}
		return err
	}

	fmt.Printf("Scanning directory: %s\n", scanDir)
	var total int64
	for _, f := range files {
		total += f.Size
		if !quiet {
			fmt.Printf("  %-40s %10s\n", f.Name, statistics.FormatBytes(f.Size))
		}
	}
	fmt.Printf("\n%d images, %s\n", len(files), statistics.FormatBytes(total))
	return nil
}

// runInspect prints metadata for one file.
func runInspect(cmd *cobra.Command, filePath string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	m, err := metadata.NewInspector(log, useExiftool).Inspect(filePath, cfg.MaxWidth, cfg.MaxHeight)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", filePath, err)
	}

	fmt.Printf("File:        %s\n", m.Path)
	fmt.Printf("Format:      %s\n", m.Format)
	fmt.Printf("Size:        %s\n", statistics.FormatBytes(m.Size))
	fmt.Printf("Dimensions:  %dx%d\n", m.Width, m.Height)
	fmt.Printf("Color mode:  %s\n", m.Mode)
	if m.WillResize() {
		fmt.Printf("Fitted to:   %dx%d\n", m.FitWidth, m.FitHeight)
	} else {
		fmt.Printf("Fitted to:   %dx%d (unchanged)\n", m.FitWidth, m.FitHeight)
	}

	if m.Source == metadata.SourceNone {
		fmt.Println("EXIF:        none")
		return nil
	}
	fmt.Printf("EXIF source: %s\n", m.Source)
	if m.Camera != "" {
		fmt.Printf("Camera:      %s\n", m.Camera)
	}
	if m.TakenAt != nil {
		fmt.Printf("Taken:       %s\n", m.TakenAt.Format("2006-01-02 15:04:05"))
	}
	if m.Orientation != 0 {
		fmt.Printf("Orientation: %d\n", m.Orientation)
	}
	if m.Software != "" {
		fmt.Printf("Software:    %s\n", m.Software)
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log, compressor.NewDefaultCompressor(log))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Printf("🚀 Photo compressor API started on http://localhost:%d\n", port)
	fmt.Printf("🛑 Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("✅ Server stopped gracefully")
	return nil
}

// loadConfig loads configuration, applies CLI overrides and validates the
// result, so a flag can correct a bad file or environment value.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.ReadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if inputDir != "" {
		cfg.InputDirectory = inputDir
	}
	if outputDir != "" {
		cfg.OutputDirectory = outputDir
	}
	if flags.Changed("quality") {
		cfg.Quality = quality
	}
	if flags.Changed("max-width") {
		cfg.MaxWidth = maxWidth
	}
	if flags.Changed("max-height") {
		cfg.MaxHeight = maxHeight
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger configures and returns a logger. Console logging is only
// enabled with --verbose; the run's own output goes through report.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.DefaultConfig()
	loggerCfg.Level = cfg.Logging.Level
	loggerCfg.FilePath = cfg.Logging.FilePath
	loggerCfg.Compress = cfg.Logging.Compress
	loggerCfg.Console = verbose
	if cfg.Logging.MaxSize > 0 {
		loggerCfg.MaxSize = cfg.Logging.MaxSize
	}
	if cfg.Logging.MaxBackups > 0 {
		loggerCfg.MaxBackups = cfg.Logging.MaxBackups
	}
	if cfg.Logging.MaxAge > 0 {
		loggerCfg.MaxAge = cfg.Logging.MaxAge
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.WarnLevel)
		log.Warnf("Falling back to console logging: %v", err)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// The missing-input notice has already been printed by the reporter.
		if !errors.Is(err, batch.ErrInputNotFound) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
