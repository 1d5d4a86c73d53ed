package report

import (
	"bytes"
	"errors"
	"testing"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/statistics"

	"github.com/stretchr/testify/assert"
)

func TestFile_Success(t *testing.T) {
	var out, errOut bytes.Buffer
	r := New(&out, &errOut, false)

	r.File(compressor.CompressionResult{
		InputPath:       "/in/photo.png",
		OriginalSize:    4 * 1024 * 1024,
		CompressedSize:  1024 * 1024,
		PercentageSaved: 75,
		Success:         true,
	})

	assert.Equal(t, "✅ Processed: photo.png\n"+
		"   - Original Size: 4.00 MB\n"+
		"   - Compressed Size: 1.00 MB\n"+
		"   - Reduction: 75.00%\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestFile_Failure(t *testing.T) {
	var out, errOut bytes.Buffer
	r := New(&out, &errOut, true)

	r.File(compressor.CompressionResult{
		InputPath: "/in/broken.jpg",
		Error:     &compressor.StageError{Stage: compressor.StageDecode, Path: "/in/broken.jpg", Err: errors.New("unexpected EOF")},
	})

	assert.Empty(t, out.String())
	assert.Equal(t, "❌ Error compressing broken.jpg: decode failed: unexpected EOF\n", errOut.String())
}

func TestQuietSuppressesNotices(t *testing.T) {
	var out, errOut bytes.Buffer
	r := New(&out, &errOut, true)

	r.DirectoryCreated("out")
	r.Start(85, "in")
	r.NoImages()
	r.Complete()
	r.RunSummary(statistics.NewStatistics())
	r.File(compressor.CompressionResult{InputPath: "a.jpg", Success: true})
	assert.Empty(t, out.String())

	r.InputMissing("in")
	assert.Contains(t, errOut.String(), "Input directory 'in' not found")
}

func TestNotices(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, &out, false)

	r.DirectoryCreated("out")
	r.Start(85, "in")
	r.NoImages()
	r.Complete()

	s := out.String()
	assert.Contains(t, s, "Created output directory: out")
	assert.Contains(t, s, "Starting compression (Quality=85) in 'in'...")
	assert.Contains(t, s, "No images found in the input directory.")
	assert.Contains(t, s, "Compression complete!")
}

func TestRunSummary(t *testing.T) {
	stats := statistics.NewStatistics()
	stats.SetFilesFound(3)
	stats.IncrementFileType("PNG")
	stats.IncrementFileType("PNG")
	stats.IncrementFileType("HEIC")
	stats.RecordSuccess(4096, 1024, true, false)
	stats.RecordSuccess(2048, 1024, false, true)
	stats.Finalize()

	var out bytes.Buffer
	New(&out, &out, false).RunSummary(stats)

	s := out.String()
	assert.Contains(t, s, "Compression Summary:")
	assert.Contains(t, s, "File Type Breakdown:\n  HEIC: 1\n  PNG: 2\n")
	assert.NotContains(t, s, "Errors (")

	stats.AddError("/in/bad.jpg", "decode", "unexpected EOF")
	out.Reset()
	New(&out, &out, false).RunSummary(stats)
	assert.Contains(t, out.String(), "Errors (1 total):")
	assert.Contains(t, out.String(), "decode: /in/bad.jpg - unexpected EOF")
}
