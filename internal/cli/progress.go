package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// Progress counts processed records on a terminal progress bar.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress creates a bar for total records. A nil writer disables output.
func NewProgress(w io.Writer, total int, description string) *Progress {
	if w == nil {
		w = io.Discard
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
	return &Progress{bar: bar}
}

// Increment advances the bar by one. Safe for concurrent use.
func (p *Progress) Increment() {
	if err := p.bar.Add(1); err != nil {
		slog.Debug("Failed to update progress bar", "error", err)
	}
}

// Finish fills the bar and prints the trailing newline.
func (p *Progress) Finish() {
	if err := p.bar.Finish(); err != nil {
		slog.Debug("Failed to finish progress bar", "error", err)
	}
}
