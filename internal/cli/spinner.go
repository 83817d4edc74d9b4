// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// spinner.go - Waiting indicator shown until the first reply text arrives.

package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner animates frames on a single terminal line.
type Spinner struct {
	w      io.Writer
	label  string
	frames []string
	fps    time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// StartSpinner draws spinner.Dot frames followed by label until Stop.
func StartSpinner(w io.Writer, label string) *Spinner {
	s := &Spinner{
		w:      w,
		label:  label,
		frames: spinner.Dot.Frames,
		fps:    spinner.Dot.FPS,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Spinner) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.fps)
	defer ticker.Stop()

	for i := 0; ; i++ {
		fmt.Fprintf(s.w, "\r%s %s", s.frames[i%len(s.frames)], DimStyle.Render(s.label))
		select {
		case <-s.stop:
			// Erase the spinner line.
			fmt.Fprint(s.w, "\r\033[K")
			return
		case <-ticker.C:
		}
	}
}

// Stop clears the spinner line and waits for the animation to end. It is
// safe to call more than once and on a nil Spinner.
func (s *Spinner) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
