package compressor

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"
)

// ColorMode is the color representation an image was decoded with.
type ColorMode int

const (
	ModeOther ColorMode = iota
	ModeRGB
	ModeRGBA
	ModePalette
	ModeGray
	ModeCMYK
)

// String returns the conventional short name of the mode.
func (m ColorMode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModePalette:
		return "P"
	case ModeGray:
		return "L"
	case ModeCMYK:
		return "CMYK"
	default:
		return "other"
	}
}

// NeedsConversion reports whether the mode must be converted to RGB before
// JPEG encoding.
func (m ColorMode) NeedsConversion() bool {
	return m != ModeRGB
}

// DecodedImage is an in-memory image together with the mode and size it was decoded with.
type DecodedImage struct {
	Image  image.Image
	Mode   ColorMode
	Format string
	Width  int
	Height int
}

// EncodeOptions carries JPEG encoder parameters.
type EncodeOptions struct {
	Quality  int
	Optimize bool
}

// CompressionParams defines parameters for compressing one file.
type CompressionParams struct {
	TargetDir string
	Quality   int
	Optimize  bool
	MaxWidth  int
	MaxHeight int
}

// Stage names a step of the per-file pipeline.
type Stage string

const (
	StageStat      Stage = "stat"
	StageDecode    Stage = "decode"
	StageResize    Stage = "resize"
	StageNormalize Stage = "normalize"
	StageEncode    Stage = "encode"
	StageWrite     Stage = "write"
	StageCancelled Stage = "cancelled"
)

// StageError is a per-file failure tagged with the pipeline step that failed.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CompressionResult describes the result of compressing a single file.
// Exactly one of Success or Error is set.
type CompressionResult struct {
	InputPath       string
	OutputPath      string
	OriginalSize    int64
	CompressedSize  int64
	OriginalWidth   int
	OriginalHeight  int
	Width           int
	Height          int
	Mode            ColorMode
	PercentageSaved float64
	Success         bool
	StartedAt       time.Time
	FinishedAt      time.Time
	Error           error
}

// FileName returns the base name of the input file.
func (r CompressionResult) FileName() string {
	return filepath.Base(r.InputPath)
}

// OriginalMB returns the input size in mebibytes.
func (r CompressionResult) OriginalMB() float64 {
	return toMiB(r.OriginalSize)
}

// CompressedMB returns the output size in mebibytes.
func (r CompressionResult) CompressedMB() float64 {
	return toMiB(r.CompressedSize)
}

// Duration returns how long the file took to process.
func (r CompressionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Compressor defines the interface for image compression.
type Compressor interface {
	// CompressFile converts one input image into a JPEG inside params.TargetDir.
	// Failures are reported in the returned result, never as a panic.
	CompressFile(ctx context.Context, inputPath string, params CompressionParams) CompressionResult
}

// ReductionPercent returns ((original - compressed) / original) * 100, or 0
// for an empty original.
func ReductionPercent(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	return float64(original-compressed) * 100 / float64(original)
}

func toMiB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

// FitDimensions returns the size an image of w x h gets when fitted into
// maxWidth x maxHeight, using the same rounding as the resize step.
func FitDimensions(w, h, maxWidth, maxHeight int) (int, int) {
	if w <= 0 || h <= 0 || maxWidth <= 0 || maxHeight <= 0 {
		return 0, 0
	}
	if w <= maxWidth && h <= maxHeight {
		return w, h
	}
	srcAspect := float64(w) / float64(h)
	maxAspect := float64(maxWidth) / float64(maxHeight)
	if srcAspect > maxAspect {
		return maxWidth, int(float64(maxWidth)/srcAspect + 0.5)
	}
	return int(float64(maxHeight)*srcAspect + 0.5), maxHeight
}
