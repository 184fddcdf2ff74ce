// Package progressbar implements functionality of printing a progress
// bar to a terminal
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar implements a progress bar that must be manually managed.
// That is, Display must be called whenever an updated progress bar
// should be printed.
type ProgressBar struct {
	out             io.Writer
	width           float64
	maxProgress     float64
	currentProgress float64
	bar             strings.Builder
	startTime       time.Time
}

// New returns a new ProgressBar that is width characters wide, reaches
// 100% after total calls to Increment and prints to out
func New(out io.Writer, width, total int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		width:       float64(width),
		maxProgress: float64(max(total, 1)),
		startTime:   time.Now(),
	}
}

// Set sets the progress counter, clipped to the maximum progress
func (p *ProgressBar) Set(progress int) {
	p.currentProgress = min(float64(progress), p.maxProgress)
}

// Increment increments the internal progress counter
func (p *ProgressBar) Increment() {
	if p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// String returns the progress bar as it would be displayed
func (p *ProgressBar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	fraction := p.currentProgress / p.maxProgress
	filled := int(fraction * p.width)
	p.bar.WriteString(strings.Repeat("█", filled))
	p.bar.WriteString(strings.Repeat(" ", int(p.width)-filled))
	fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v]", fraction*100,
		time.Since(p.startTime).Truncate(time.Second))
	return p.bar.String()
}

// Display prints the progress bar over the previous line
func (p *ProgressBar) Display() {
	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", p.String())
}

// Close moves the output past the progress bar
func (p *ProgressBar) Close() {
	fmt.Fprintln(p.out)
}
