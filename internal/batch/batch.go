// Package batch runs a whole compression pass over an input directory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/logger"
	"photo-compressor-go/internal/report"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInputNotFound is returned by Run when the input directory is missing.
var ErrInputNotFound = scanner.ErrInputNotFound

// Hooks lets callers observe a run as it progresses (progress bars, WebSocket push).
type Hooks struct {
	OnStart  func(runID string, total int)
	OnResult func(index, total int, res compressor.CompressionResult)
}

// Summary is the outcome of one run.
type Summary struct {
	RunID            string
	OutputDirCreated bool
	Found            int
	Succeeded        int
	Failed           int
	Results          []compressor.CompressionResult
}

// BatchCompressor converts every eligible image of the input directory, one
// file at a time. A failing file is reported and skipped.
type BatchCompressor struct {
	config     *config.Config
	logger     *logrus.Logger
	stats      *statistics.Statistics
	scanner    *scanner.Scanner
	compressor compressor.Compressor
	reporter   *report.Reporter
	hooks      Hooks
}

// NewBatchCompressor returns a new BatchCompressor.
func NewBatchCompressor(
	cfg *config.Config,
	logger *logrus.Logger,
	stats *statistics.Statistics,
	comp compressor.Compressor,
	reporter *report.Reporter,
) *BatchCompressor {
	return NewBatchCompressorWithHooks(cfg, logger, stats, comp, reporter, Hooks{})
}

// NewBatchCompressorWithHooks is NewBatchCompressor with progress callbacks.
func NewBatchCompressorWithHooks(
	cfg *config.Config,
	logger *logrus.Logger,
	stats *statistics.Statistics,
	comp compressor.Compressor,
	reporter *report.Reporter,
	hooks Hooks,
) *BatchCompressor {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	if reporter == nil {
		reporter = report.New(nil, nil, false)
	}
	return &BatchCompressor{
		config:     cfg,
		logger:     logger,
		stats:      stats,
		scanner:    scanner.New(cfg.SupportedExtensions, cfg.SortFiles, logger),
		compressor: comp,
		reporter:   reporter,
		hooks:      hooks,
	}
}

// Run creates the output directory, checks the input directory, enumerates
// the eligible files and compresses each in turn. A missing input directory
// is the only fatal condition: it returns ErrInputNotFound before any file is
// touched. Per-file failures are recorded in the Summary. When ctx is
// cancelled the run stops between files and returns what it has with ctx.Err().
func (b *BatchCompressor) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}
	log := logger.WithRun(b.logger, summary.RunID)
	b.stats.Start()

	created, err := ensureDir(b.config.OutputDirectory)
	if err != nil {
		log.Errorf("Could not create output directory %s: %v", b.config.OutputDirectory, err)
		return summary, fmt.Errorf("create output directory: %w", err)
	}
	if created {
		summary.OutputDirCreated = true
		b.stats.IncrementDirectoriesCreated()
		b.reporter.DirectoryCreated(b.config.OutputDirectory)
		log.Debugf("Created directory: %s", b.config.OutputDirectory)
	}

	files, err := b.scanner.Scan(b.config.InputDirectory)
	if err != nil {
		if errors.Is(err, ErrInputNotFound) {
			b.reporter.InputMissing(b.config.InputDirectory)
		}
		log.Errorf("Could not scan input directory: %v", err)
		return summary, err
	}

	b.reporter.Start(b.config.Quality, b.config.InputDirectory)

	summary.Found = len(files)
	b.stats.SetFilesFound(len(files))
	if len(files) == 0 {
		log.Info("No images found to compress")
		b.reporter.NoImages()
		b.stats.Finalize()
		return summary, nil
	}

	log.Infof("Found %d images to process", len(files))
	if b.hooks.OnStart != nil {
		b.hooks.OnStart(summary.RunID, len(files))
	}

	params := compressor.CompressionParams{
		TargetDir: b.config.OutputDirectory,
		Quality:   b.config.Quality,
		Optimize:  b.config.Optimize,
		MaxWidth:  b.config.MaxWidth,
		MaxHeight: b.config.MaxHeight,
	}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			log.Warnf("Run cancelled after %d of %d files", i, len(files))
			b.stats.Finalize()
			return summary, err
		}

		res := b.processFile(ctx, file, params, log)
		summary.Results = append(summary.Results, res)
		if res.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		if b.hooks.OnResult != nil {
			b.hooks.OnResult(i, len(files), res)
		}
	}

	b.stats.Finalize()
	b.reporter.Complete()
	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Compression run completed")

	return summary, nil
}

// processFile compresses one file and accounts its result.
func (b *BatchCompressor) processFile(ctx context.Context, file scanner.ImageFile, params compressor.CompressionParams, log *logrus.Entry) compressor.CompressionResult {
	log.Debugf("Processing file: %s", file.Path)
	b.stats.IncrementFilesProcessed()
	b.stats.IncrementFileType(strings.ToUpper(strings.TrimPrefix(file.Extension, ".")))

	res := b.compressor.CompressFile(ctx, file.Path, params)

	if res.Success {
		resized := res.Width != res.OriginalWidth || res.Height != res.OriginalHeight
		b.stats.RecordSuccess(res.OriginalSize, res.CompressedSize, resized, res.Mode.NeedsConversion())
		logger.WithFile(log, file.Path).Infof("Compressed %s -> %s (%.2f%%)", file.Name, res.OutputPath, res.PercentageSaved)
	} else {
		operation := "compress"
		var se *compressor.StageError
		if errors.As(res.Error, &se) {
			operation = string(se.Stage)
		}
		b.stats.AddError(file.Path, operation, res.Error.Error())
		logger.WithFileOperation(log, file.Path, operation).Errorf("Could not compress file: %v", res.Error)
	}

	b.reporter.File(res)
	return res
}

// ensureDir creates dir and its parents if missing. It reports whether it
// had to create the directory.
func ensureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}
	return true, nil
}
