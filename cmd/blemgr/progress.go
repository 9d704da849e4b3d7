package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a one-line countdown while a blocking call runs.
//
// The caller must call Stop to terminate the internal goroutine. Stop is safe
// to call more than once.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	duration time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// startProgress starts a countdown on w, or returns nil when w is not a terminal.
// A nil printer's Stop is a no-op.
func startProgress(w io.Writer, prefix string, duration time.Duration) *ProgressPrinter {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}

	p := &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		duration: duration,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.loop(time.Now())
	return p
}

func (p *ProgressPrinter) loop(start time.Time) {
	defer close(p.done)

	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	fmt.Fprintf(p.w, "\r%s...   ", p.prefix)
	for {
		select {
		case <-p.stop:
			fmt.Fprint(p.w, clearLineSequence)
			return
		case <-ticker.C:
			remaining := p.duration - time.Since(start)
			// Round to the nearest second, show 0s once the countdown completes
			seconds := 0
			if remaining > 0 {
				seconds = int(remaining.Seconds() + 0.5)
			}
			fmt.Fprintf(p.w, "\r%s (%ds)   ", p.prefix, seconds)
		}
	}
}

// Stop clears the progress line and waits for the goroutine to exit.
func (p *ProgressPrinter) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
	})
}
