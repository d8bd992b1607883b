// Package progress reports plan completion on a terminal while a solve runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Indicator tracks scheduled and completed plans. In CI it prints one line
// per plan instead of redrawing a bar.
type Indicator struct {
	writer    io.Writer
	bar       *progressbar.ProgressBar
	isCI      bool
	startTime time.Time

	mu        sync.Mutex
	max       int
	scheduled int
	passed    int
	failed    int
	stopOnce  sync.Once
}

// Config holds configuration for progress indicator
type Config struct {
	Writer io.Writer
	IsCI   bool // Set to true in CI/CD environments to disable fancy output
}

// NewIndicator creates an indicator expecting about total plans. The total
// grows if more are scheduled.
func NewIndicator(cfg Config, total int) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	// Auto-detect CI environment
	if !cfg.IsCI {
		cfg.IsCI = os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
	}
	if total < 1 {
		total = 1
	}

	ind := &Indicator{
		writer:    cfg.Writer,
		isCI:      cfg.IsCI,
		startTime: time.Now(),
		max:       total,
	}
	if !cfg.IsCI {
		ind.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(cfg.Writer),
			progressbar.OptionFullWidth(),
			progressbar.OptionShowDescriptionAtLineEnd(),
			progressbar.OptionSetDescription("solving"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	return ind
}

// Scheduled records n more plans.
func (p *Indicator) Scheduled(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scheduled += n
	if p.scheduled > p.max {
		p.max = p.scheduled
		if p.bar != nil {
			p.bar.ChangeMax(p.max)
		}
	}
}

// Completed records one finished plan.
func (p *Indicator) Completed(title string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ok {
		p.passed++
	} else {
		p.failed++
	}

	if p.isCI {
		symbol := "✓"
		if !ok {
			symbol = "✗"
		}
		fmt.Fprintf(p.writer, "%s %s [%d/%d]\n", symbol, title, p.passed+p.failed, p.max)
		return
	}
	p.bar.Describe(fmt.Sprintf("checked %s", title))
	_ = p.bar.Add(1)
}

// Stop finishes the bar. Safe to call more than once.
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
	})
}

// PrintSummary prints plan counts and elapsed time.
func (p *Indicator) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "Checked %d plans (%d passed, %d failed) in %s\n",
		p.passed+p.failed, p.passed, p.failed, formatDuration(time.Since(p.startTime)))
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
