package compressor

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photo-compressor-go/internal/logger"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	// Register decoders beyond the JPEG/PNG/GIF/BMP/TIFF set imaging pulls in.
	_ "github.com/gen2brain/heic"
	_ "golang.org/x/image/webp"
)

// DefaultCompressor is the default implementation of the Compressor interface.
type DefaultCompressor struct {
	logger logrus.FieldLogger
}

// NewDefaultCompressor creates a new DefaultCompressor instance.
func NewDefaultCompressor(log logrus.FieldLogger) *DefaultCompressor {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &DefaultCompressor{logger: log}
}

// CompressFile runs decode, resize, normalize and encode for one file.
func (c *DefaultCompressor) CompressFile(ctx context.Context, inputPath string, params CompressionParams) CompressionResult {
	res := CompressionResult{
		InputPath: inputPath,
		StartedAt: time.Now(),
	}
	log := logger.WithFile(c.logger, inputPath)

	fail := func(stage Stage, err error) CompressionResult {
		res.Error = &StageError{Stage: stage, Path: inputPath, Err: err}
		res.FinishedAt = time.Now()
		logger.WithOperation(log, string(stage)).Errorf("Compression error: %v", err)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(StageCancelled, err)
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return fail(StageStat, err)
	}
	res.OriginalSize = info.Size()

	decoded, err := Decode(inputPath)
	if err != nil {
		return fail(StageDecode, err)
	}
	res.OriginalWidth = decoded.Width
	res.OriginalHeight = decoded.Height
	res.Mode = decoded.Mode
	log.Debugf("Decoded %s image %dx%d mode %s", decoded.Format, decoded.Width, decoded.Height, decoded.Mode)

	resized, err := Fit(decoded, params.MaxWidth, params.MaxHeight)
	if err != nil {
		return fail(StageResize, err)
	}

	normalized, err := Normalize(resized)
	if err != nil {
		return fail(StageNormalize, err)
	}
	b := normalized.Image.Bounds()
	res.Width = b.Dx()
	res.Height = b.Dy()

	outPath := OutputPath(params.TargetDir, inputPath)
	res.OutputPath = outPath

	written, err := WriteJPEG(outPath, normalized.Image, EncodeOptions{
		Quality:  params.Quality,
		Optimize: params.Optimize,
	})
	if err != nil {
		if se, ok := err.(*StageError); ok {
			return fail(se.Stage, se.Err)
		}
		return fail(StageWrite, err)
	}

	res.CompressedSize = written
	res.PercentageSaved = ReductionPercent(res.OriginalSize, res.CompressedSize)
	res.Success = true
	res.FinishedAt = time.Now()

	log.WithFields(logrus.Fields{
		"output":          outPath,
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
		"width":           res.Width,
		"height":          res.Height,
	}).Debug("Image compressed")

	return res
}

// Decode reads and decodes an image file with every registered decoder
// (JPEG, PNG, WEBP, HEIC and the rest imaging registers).
func Decode(path string) (*DecodedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	b := img.Bounds()
	return &DecodedImage{
		Image:  img,
		Mode:   ModeOf(img),
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// ModeOf classifies the decoded pixel buffer. A non-alpha PNG decodes to an
// opaque *image.RGBA and is reported as RGB.
func ModeOf(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.YCbCr:
		return ModeRGB
	case *image.RGBA:
		if m.Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA:
		return ModeRGBA
	case *image.RGBA64:
		if m.Opaque() {
			return ModeOther
		}
		return ModeRGBA
	case *image.Paletted:
		return ModePalette
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.CMYK:
		return ModeCMYK
	default:
		return ModeOther
	}
}

// Fit scales the image down to fit inside maxWidth x maxHeight with the
// Lanczos filter, keeping the aspect ratio. Images already inside the box are
// returned as is; nothing is ever upscaled.
func Fit(d *DecodedImage, maxWidth, maxHeight int) (*DecodedImage, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, fmt.Errorf("invalid bounding box %dx%d", maxWidth, maxHeight)
	}
	b := d.Image.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if b.Dx() <= maxWidth && b.Dy() <= maxHeight {
		return d, nil
	}

	w, h := FitDimensions(b.Dx(), b.Dy(), maxWidth, maxHeight)
	resized := imaging.Resize(d.Image, max(w, 1), max(h, 1), imaging.Lanczos)
	rb := resized.Bounds()
	return &DecodedImage{
		Image:  resized,
		Mode:   d.Mode,
		Format: d.Format,
		Width:  rb.Dx(),
		Height: rb.Dy(),
	}, nil
}

// Normalize converts alpha, palette, grayscale and other non-RGB images to an
// opaque RGB buffer. Alpha is dropped and the stored color values are kept.
// RGB images pass through unchanged.
func Normalize(d *DecodedImage) (*DecodedImage, error) {
	if !d.Mode.NeedsConversion() {
		return d, nil
	}
	rgb := imaging.Clone(d.Image)
	if rgb == nil || len(rgb.Pix) == 0 {
		return nil, fmt.Errorf("cannot convert %s image to RGB", d.Mode)
	}
	for i := 3; i < len(rgb.Pix); i += 4 {
		rgb.Pix[i] = 0xff
	}
	b := rgb.Bounds()
	return &DecodedImage{
		Image:  rgb,
		Mode:   ModeRGB,
		Format: d.Format,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

// OutputPath returns <dir>/<stem>.jpg for inputPath.
func OutputPath(dir, inputPath string) string {
	name := filepath.Base(inputPath)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(dir, stem+".jpg")
}

// WriteJPEG encodes img as JPEG into a temporary file next to outPath and
// renames it into place, so a failed write never leaves a partial output.
// It returns the size of the written file.
func WriteJPEG(outPath string, img image.Image, opts EncodeOptions) (int64, error) {
	dir := filepath.Dir(outPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*.tmp")
	if err != nil {
		return 0, &StageError{Stage: StageWrite, Path: outPath, Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	// image/jpeg always writes the standard Huffman tables; opts.Optimize has
	// no encoder knob to map to.
	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		cleanup()
		return 0, &StageError{Stage: StageEncode, Path: outPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, &StageError{Stage: StageWrite, Path: outPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, &StageError{Stage: StageWrite, Path: outPath, Err: err}
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return 0, &StageError{Stage: StageWrite, Path: outPath, Err: err}
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, &StageError{Stage: StageWrite, Path: outPath, Err: err}
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return 0, &StageError{Stage: StageWrite, Path: outPath, Err: err}
	}
	return info.Size(), nil
}
