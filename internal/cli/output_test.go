package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrinterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Success("created %s", "genesis")
	p.Warning("memory store")

	assert.Equal(t, "✓ created genesis\n⚠ memory store\n", buf.String())
}

func TestProgressBarFinish(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, 3, "seeding")
	bar.Increment()
	bar.Increment()
	bar.Increment()
	bar.Increment()
	bar.Finish()

	out := buf.String()
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "3/3")
	assert.NotContains(t, out, "4/3")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "< 1s", formatDuration(500*time.Millisecond))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h1m", formatDuration(61*time.Minute))
}
