// Package cli implements the marketd command tree and its terminal output helpers.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
)

// Printer writes status lines, colored when the target is a terminal.
type Printer struct {
	w        io.Writer
	colorize bool
}

// NewPrinter returns a printer for w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, colorize: isTerminal(w)}
}

func (p *Printer) line(color, mark, message string) {
	if p.colorize {
		fmt.Fprintf(p.w, "%s%s%s %s\n", color, mark, ColorReset, message)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", mark, message)
}

func (p *Printer) Success(format string, args ...interface{}) {
	p.line(ColorGreen, "✓", fmt.Sprintf(format, args...))
}

func (p *Printer) Error(format string, args ...interface{}) {
	p.line(ColorRed, "✗", fmt.Sprintf(format, args...))
}

func (p *Printer) Warning(format string, args ...interface{}) {
	p.line(ColorYellow, "⚠", fmt.Sprintf(format, args...))
}

func (p *Printer) Info(format string, args ...interface{}) {
	p.line(ColorBlue, "ℹ", fmt.Sprintf(format, args...))
}

// ProgressBar renders seeding progress on a single line.
type ProgressBar struct {
	mu        sync.Mutex
	total     int
	current   int
	width     int
	prefix    string
	writer    io.Writer
	startTime time.Time
	colorize  bool
}

// NewProgressBar creates a progress bar writing to w.
func NewProgressBar(w io.Writer, total int, prefix string) *ProgressBar {
	return &ProgressBar{
		total:     total,
		width:     40,
		prefix:    prefix,
		writer:    w,
		startTime: time.Now(),
		colorize:  isTerminal(w),
	}
}

// Increment advances the bar by one step.
func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	if pb.current < pb.total {
		pb.current++
	}
	pb.render()
}

// Finish completes the bar and ends the line.
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.writer)
}

func (pb *ProgressBar) render() {
	percent := 1.0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total)
	}
	filled := int(float64(pb.width) * percent)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.width-filled)

	if pb.colorize {
		switch {
		case percent < 0.5:
			bar = ColorYellow + bar + ColorReset
		case percent < 1.0:
			bar = ColorCyan + bar + ColorReset
		default:
			bar = ColorGreen + bar + ColorReset
		}
	}

	fmt.Fprintf(pb.writer, "\r%s [%s] %d/%d %s", pb.prefix, bar, pb.current, pb.total,
		formatDuration(time.Since(pb.startTime)))
}

// isTerminal reports whether w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
