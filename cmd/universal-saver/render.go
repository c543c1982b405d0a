package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/universal-saver/internal/pubsub"
	"github.com/alanbriolat/universal-saver/internal/session"
)

const settleTimeout = 2 * time.Second

// renderer prints session events as they arrive. It never changes the session.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	newBar  func(max int64) *progressbar.ProgressBar
	bar     *progressbar.ProgressBar
	settled chan session.AttemptID
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out: out,
		newBar: func(max int64) *progressbar.ProgressBar {
			return newByteBar(out, max, "receiving")
		},
		settled: make(chan session.AttemptID, 16),
	}
}

// newByteBar is progressbar.DefaultBytes, but writing to out instead of stderr.
func newByteBar(out io.Writer, max int64, description string) *progressbar.ProgressBar {
	bar := progressbar.NewOptions64(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
	_ = bar.RenderBlank()
	return bar
}

func (r *renderer) run(events pubsub.ReceiverCloser[session.Event]) {
	logger := zap.S().Named("render")
	for event := range events.Receive() {
		logger.Debugf("event: %T", event)
		switch e := event.(type) {
		case session.StateChanged:
			r.stateChanged(e)
		case session.Progress:
			r.progress(e)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishBar()
}

func (r *renderer) stateChanged(e session.StateChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Old.State == e.New.State {
		return
	}
	switch e.New.State {
	case session.StateValidating:
		fmt.Fprintf(r.out, "Checking %s\n", strings.TrimSpace(e.New.Input))
	case session.StateRequesting:
		fmt.Fprintln(r.out, "Requesting download...")
	case session.StateReceiving:
		r.bar = r.newBar(-1)
	case session.StateSucceeded:
		r.finishBar()
		fmt.Fprintf(r.out, "%s\n  %s\n", e.New.Message.Text, e.New.SavedPath)
		r.settle(e.New.AttemptID)
	case session.StateFailed:
		r.finishBar()
		fmt.Fprintf(r.out, "Error: %s\n", e.New.Message.Text)
		r.settle(e.New.AttemptID)
	}
}

func (r *renderer) progress(e session.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return
	}
	if e.Expected >= 0 && r.bar.GetMax() != int(e.Expected) {
		r.bar.ChangeMax(int(e.Expected))
	}
	_ = r.bar.Set(int(e.Downloaded))
}

// finishBar must be called with r.mu held.
func (r *renderer) finishBar() {
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}

func (r *renderer) settle(attempt session.AttemptID) {
	select {
	case r.settled <- attempt:
	default:
	}
}

// waitSettled blocks until the final state of attempt has been printed, so that output doesn't interleave with the
// next prompt.
func (r *renderer) waitSettled(attempt session.AttemptID) {
	timeout := time.After(settleTimeout)
	for {
		select {
		case settled := <-r.settled:
			if settled == attempt {
				return
			}
		case <-timeout:
			return
		}
	}
}

func (r *renderer) notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, text)
}

func (r *renderer) prompt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, "> ")
}
