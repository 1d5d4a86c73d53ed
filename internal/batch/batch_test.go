package batch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/report"
	"photo-compressor-go/internal/statistics"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.InputDirectory = filepath.Join(root, "in")
	cfg.OutputDirectory = filepath.Join(root, "public", "out")
	cfg.Logging.FilePath = ""
	require.NoError(t, cfg.Validate())
	require.NoError(t, os.MkdirAll(cfg.InputDirectory, 0755))
	return cfg
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: c.R + uint8(x%7), G: c.G + uint8(y%5), B: c.B, A: c.A})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

type runOutput struct {
	summary *Summary
	err     error
	stdout  string
	stderr  string
	stats   *statistics.Statistics
}

func run(t *testing.T, cfg *config.Config, ctx context.Context, hooks Hooks) runOutput {
	t.Helper()
	var out, errOut bytes.Buffer
	stats := statistics.NewStatistics()
	b := NewBatchCompressorWithHooks(cfg, quietLogger(), stats,
		compressor.NewDefaultCompressor(quietLogger()), report.New(&out, &errOut, false), hooks)
	summary, err := b.Run(ctx)
	return runOutput{summary: summary, err: err, stdout: out.String(), stderr: errOut.String(), stats: stats}
}

func outputNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_LargeRGBAPNG(t *testing.T) {
	if testing.Short() {
		t.Skip("decodes and resamples a 12 megapixel image")
	}
	cfg := testConfig(t)
	writePNG(t, filepath.Join(cfg.InputDirectory, "photo.png"), solid(4000, 3000, color.NRGBA{R: 10, G: 20, B: 30, A: 100}))

	got := run(t, cfg, context.Background(), Hooks{})
	require.NoError(t, got.err)
	require.Len(t, got.summary.Results, 1)

	res := got.summary.Results[0]
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, compressor.ModeRGBA, res.Mode)

	img, err := imaging.Open(filepath.Join(cfg.OutputDirectory, "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, 3000, img.Bounds().Dx())
	assert.Equal(t, 2250, img.Bounds().Dy())
}

func TestRun_HEICBecomesJPEG(t *testing.T) {
	cfg := testConfig(t)
	data, err := os.ReadFile(filepath.Join("..", "compressor", "testdata", "shot.HEIC"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDirectory, "shot.HEIC"), data, 0644))

	got := run(t, cfg, context.Background(), Hooks{})
	require.NoError(t, got.err)
	require.Len(t, got.summary.Results, 1)

	res := got.summary.Results[0]
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, compressor.ModeRGB, res.Mode)
	assert.Equal(t, []string{"shot.jpg"}, outputNames(t, cfg.OutputDirectory))

	f, err := os.Open(filepath.Join(cfg.OutputDirectory, "shot.jpg"))
	require.NoError(t, err)
	defer f.Close()
	imgCfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 512, imgCfg.Width)
	assert.Equal(t, 512, imgCfg.Height)
	assert.Contains(t, got.stdout, "✅ Processed: shot.HEIC")
}

func TestRun_ConvertsEveryEligibleFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxWidth, cfg.MaxHeight = 64, 64

	writePNG(t, filepath.Join(cfg.InputDirectory, "a.png"), solid(128, 96, color.NRGBA{A: 255}))
	require.NoError(t, imaging.Save(solid(40, 30, color.NRGBA{R: 90, A: 255}), filepath.Join(cfg.InputDirectory, "b.JPEG")))
	writePNG(t, filepath.Join(cfg.InputDirectory, "c.PNG"), image.NewGray(image.Rect(0, 0, 20, 20)))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDirectory, "notes.txt"), []byte("skip"), 0644))

	var started int
	var seen []string
	got := run(t, cfg, context.Background(), Hooks{
		OnStart: func(runID string, total int) {
			assert.NotEmpty(t, runID)
			started = total
		},
		OnResult: func(index, total int, res compressor.CompressionResult) {
			assert.Equal(t, len(seen), index)
			assert.Equal(t, 3, total)
			seen = append(seen, res.FileName())
		},
	})
	require.NoError(t, got.err)

	assert.True(t, got.summary.OutputDirCreated)
	assert.Equal(t, 3, got.summary.Found)
	assert.Equal(t, 3, got.summary.Succeeded)
	assert.Zero(t, got.summary.Failed)
	assert.Equal(t, 3, started)
	assert.Equal(t, []string{"a.png", "b.JPEG", "c.PNG"}, seen)
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg", "c.jpg"}, outputNames(t, cfg.OutputDirectory))

	a := got.summary.Results[0]
	assert.Equal(t, 64, a.Width)
	assert.Equal(t, 48, a.Height)

	assert.Contains(t, got.stdout, "Created output directory: "+cfg.OutputDirectory)
	assert.Contains(t, got.stdout, "Starting compression (Quality=85)")
	assert.Contains(t, got.stdout, "✅ Processed: b.JPEG")
	assert.Contains(t, got.stdout, "Compression complete!")
	assert.Empty(t, got.stderr)

	assert.Equal(t, int64(3), got.stats.FilesSucceeded)
	assert.Equal(t, int64(1), got.stats.FilesResized)
	assert.Equal(t, int64(1), got.stats.FilesConverted)
	assert.Equal(t, int64(1), got.stats.DirectoriesCreated)
}

func TestRun_EmptyInput(t *testing.T) {
	cfg := testConfig(t)

	got := run(t, cfg, context.Background(), Hooks{})
	require.NoError(t, got.err)

	assert.Zero(t, got.summary.Found)
	assert.DirExists(t, cfg.OutputDirectory)
	assert.Empty(t, outputNames(t, cfg.OutputDirectory))
	assert.Contains(t, got.stdout, "No images found in the input directory.")
	assert.NotContains(t, got.stdout, "Compression complete!")
}

func TestRun_MissingInput(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.RemoveAll(cfg.InputDirectory))

	got := run(t, cfg, context.Background(), Hooks{})
	require.ErrorIs(t, got.err, ErrInputNotFound)

	assert.Contains(t, got.stderr, "not found")
	assert.NotContains(t, got.stdout, "Starting compression")
	assert.Empty(t, got.summary.Results)
	assert.Empty(t, outputNames(t, cfg.OutputDirectory))
}

func TestRun_CorruptFileDoesNotStopBatch(t *testing.T) {
	cfg := testConfig(t)
	for _, name := range []string{"one.png", "two.png", "four.png", "five.png"} {
		writePNG(t, filepath.Join(cfg.InputDirectory, name), solid(32, 32, color.NRGBA{B: 200, A: 255}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDirectory, "three.jpg"), []byte("\xff\xd8\xff garbage"), 0644))

	got := run(t, cfg, context.Background(), Hooks{})
	require.NoError(t, got.err)

	assert.Equal(t, 5, got.summary.Found)
	assert.Equal(t, 4, got.summary.Succeeded)
	assert.Equal(t, 1, got.summary.Failed)
	assert.ElementsMatch(t, []string{"one.jpg", "two.jpg", "four.jpg", "five.jpg"}, outputNames(t, cfg.OutputDirectory))

	assert.Contains(t, got.stderr, "❌ Error compressing three.jpg: decode failed")
	assert.Contains(t, got.stdout, "Compression complete!")

	require.Len(t, got.stats.Errors, 1)
	assert.Equal(t, "decode", got.stats.Errors[0].Operation)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(cfg.InputDirectory, name), solid(8, 8, color.NRGBA{A: 255}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := run(t, cfg, ctx, Hooks{
		OnResult: func(index, total int, res compressor.CompressionResult) {
			if index == 0 {
				cancel()
			}
		},
	})
	require.ErrorIs(t, got.err, context.Canceled)
	assert.Len(t, got.summary.Results, 1)
	assert.Equal(t, []string{"a.jpg"}, outputNames(t, cfg.OutputDirectory))
}

func TestRun_NoUpscaleOnRerun(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxWidth, cfg.MaxHeight = 50, 50
	writePNG(t, filepath.Join(cfg.InputDirectory, "pic.png"), solid(100, 40, color.NRGBA{A: 255}))

	first := run(t, cfg, context.Background(), Hooks{})
	require.NoError(t, first.err)

	second := *cfg
	second.InputDirectory = cfg.OutputDirectory
	second.OutputDirectory = filepath.Join(t.TempDir(), "again")
	again := run(t, &second, context.Background(), Hooks{})
	require.NoError(t, again.err)
	require.Len(t, again.summary.Results, 1)

	r1 := first.summary.Results[0]
	r2 := again.summary.Results[0]
	assert.LessOrEqual(t, r2.Width, r1.Width)
	assert.LessOrEqual(t, r2.Height, r1.Height)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	created, err := ensureDir(dir)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = ensureDir(dir)
	require.NoError(t, err)
	assert.False(t, created)

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = ensureDir(file)
	assert.Error(t, err)
}
