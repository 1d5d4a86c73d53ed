// Package report prints the human-readable console output of a compression run.
package report

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/statistics"
)

// Reporter writes run notices and per-file lines. Quiet suppresses
// everything except failures and fatal notices.
type Reporter struct {
	out   io.Writer
	err   io.Writer
	quiet bool
}

// New returns a Reporter writing to out, with failures going to errOut.
func New(out, errOut io.Writer, quiet bool) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Reporter{out: out, err: errOut, quiet: quiet}
}

// DirectoryCreated announces that the output directory was created.
func (r *Reporter) DirectoryCreated(dir string) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.out, "Created output directory: %s\n", dir)
}

// InputMissing reports the fatal missing-input condition.
func (r *Reporter) InputMissing(dir string) {
	fmt.Fprintf(r.err, "🛑 Input directory '%s' not found. Please create it and add images.\n", dir)
}

// Start prints the start banner.
func (r *Reporter) Start(quality int, inputDir string) {
	if r.quiet {
		return
	}
	fmt.Fprintf(r.out, "Starting compression (Quality=%d) in '%s'...\n", quality, inputDir)
}

// NoImages reports an input directory without eligible files.
func (r *Reporter) NoImages() {
	if r.quiet {
		return
	}
	fmt.Fprintln(r.out, "No images found in the input directory.")
}

// File prints the outcome line(s) for one processed file.
func (r *Reporter) File(res compressor.CompressionResult) {
	if !res.Success {
		fmt.Fprintf(r.err, "❌ Error compressing %s: %v\n", res.FileName(), res.Error)
		return
	}
	if r.quiet {
		return
	}
	fmt.Fprintf(r.out, "✅ Processed: %s\n", res.FileName())
	fmt.Fprintf(r.out, "   - Original Size: %.2f MB\n", res.OriginalMB())
	fmt.Fprintf(r.out, "   - Compressed Size: %.2f MB\n", res.CompressedMB())
	fmt.Fprintf(r.out, "   - Reduction: %.2f%%\n", res.PercentageSaved)
}

// Complete prints the completion banner.
func (r *Reporter) Complete() {
	if r.quiet {
		return
	}
	fmt.Fprintln(r.out, "\n✨ Compression complete!")
}

// RunSummary prints the run statistics, the per-type breakdown and, when
// files failed, the error list.
func (r *Reporter) RunSummary(stats *statistics.Statistics) {
	if r.quiet || stats == nil {
		return
	}
	fmt.Fprintln(r.out, "\n"+stats.GetSummary())
	fmt.Fprintln(r.out, "\n"+stats.GetFileTypeBreakdown())
	if atomic.LoadInt64(&stats.FilesFailed) > 0 {
		fmt.Fprintln(r.out, stats.GetErrorSummary())
	}
}
