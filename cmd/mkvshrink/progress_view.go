package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"mkvshrink/internal/batch"
	"mkvshrink/internal/encoding"
)

const redrawInterval = 200 * time.Millisecond

// progressView renders batch events for a human. On a terminal the current
// job is redrawn in place; otherwise only job starts and outcomes are
// printed, one per line.
type progressView struct {
	w      io.Writer
	live   bool
	silent bool

	index        map[string]int
	total        int
	batchPercent float64
	lastDraw     time.Time
	drawn        bool
}

func newProgressView(w io.Writer, pairs []batch.Pair, silent bool) *progressView {
	index := make(map[string]int, len(pairs))
	for i, p := range pairs {
		index[p.Input] = i + 1
	}
	return &progressView{
		w:      w,
		live:   isTerminal(w),
		silent: silent,
		index:  index,
		total:  len(pairs),
	}
}

func (v *progressView) handle(ev batch.Event) {
	if v.silent {
		return
	}
	switch ev.Kind {
	case batch.EventProgress:
		v.batchPercent = ev.Percent
	case batch.EventJobState:
		if ev.Job.State == encoding.StateRunning && !v.live {
			fmt.Fprintf(v.w, "%s Compressing %s\n", v.counter(ev.Job.Input), filepath.Base(ev.Job.Input))
		}
	case batch.EventJobProgress:
		if !v.live || time.Since(v.lastDraw) < redrawInterval {
			return
		}
		v.lastDraw = time.Now()
		v.draw(ev.Job)
	case batch.EventEntry:
		if !ev.Entry.Outcome.Final() {
			return
		}
		v.clear()
		fmt.Fprintln(v.w, entryLine(v.counter(ev.Entry.Input), ev.Entry))
	}
}

func (v *progressView) draw(ev encoding.Event) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %5.1f%%", v.counter(ev.Input), filepath.Base(ev.Input), ev.Percent)
	if ev.Passes > 1 {
		fmt.Fprintf(&b, " pass %d/%d", ev.Pass, ev.Passes)
	}
	if ev.Progress.Speed > 0 {
		fmt.Fprintf(&b, " @ %.1fx", ev.Progress.Speed)
	}
	if ev.Progress.ETAKnown {
		if eta := formatETA(time.Duration(ev.Progress.ETA * float64(time.Second))); eta != "" {
			fmt.Fprintf(&b, " ETA %s", eta)
		}
	}
	if v.total > 1 {
		fmt.Fprintf(&b, " | batch %.0f%%", v.batchPercent)
	}
	fmt.Fprintf(v.w, "\r\033[K%s", b.String())
	v.drawn = true
}

func (v *progressView) clear() {
	if v.drawn {
		fmt.Fprint(v.w, "\r\033[K")
		v.drawn = false
	}
}

func (v *progressView) finish() {
	if !v.silent {
		v.clear()
	}
}

func (v *progressView) counter(input string) string {
	return fmt.Sprintf("[%d/%d]", v.index[input], v.total)
}

func entryLine(prefix string, e batch.Entry) string {
	name := filepath.Base(e.Input)
	switch e.Outcome {
	case batch.OutcomeSucceeded:
		return fmt.Sprintf("%s ✓ %s -> %s (%s -> %s, %s)", prefix, name, filepath.Base(e.Output),
			formatBytes(e.InputSize), formatBytes(e.OutputSize), formatRatio(e.Ratio()))
	case batch.OutcomeSkipped:
		return fmt.Sprintf("%s - %s skipped: %s", prefix, name, e.Reason)
	case batch.OutcomeCancelled:
		return fmt.Sprintf("%s ⊘ %s cancelled: %s", prefix, name, e.Reason)
	default:
		return fmt.Sprintf("%s ✗ %s failed (%s): %s", prefix, name, e.Kind, e.Reason)
	}
}
