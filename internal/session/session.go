// Package session runs download attempts for a single user: one at a time, each through validation, request,
// identification and saving, with every state change published as an event.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/universal-saver"
	"github.com/alanbriolat/universal-saver/async"
	"github.com/alanbriolat/universal-saver/internal/clipboard"
	"github.com/alanbriolat/universal-saver/internal/fetch"
	"github.com/alanbriolat/universal-saver/internal/materialize"
	"github.com/alanbriolat/universal-saver/internal/media"
	"github.com/alanbriolat/universal-saver/internal/pubsub"
)

type Requester interface {
	Request(ctx context.Context, dr fetch.DownloadRequest, progress fetch.ProgressFunc) (*fetch.RawResponse, error)
}

type Materializer interface {
	Save(r media.Resolved) (string, error)
}

type Clipboard interface {
	Read(ctx context.Context) (string, error)
}

type Config struct {
	Platforms *universal_saver.PlatformRegistry
	// Required.
	Requester Requester
	// Defaults to saving in the current directory.
	Materializer Materializer
	// Defaults to the system clipboard.
	Clipboard Clipboard
	// How long a success is shown before returning to idle. Zero means it stays until the next submission.
	SuccessDisplay time.Duration
	// Minimum interval between Progress events.
	ProgressUpdateInterval time.Duration
}

var DefaultConfig = Config{
	Platforms:              &universal_saver.DefaultPlatformRegistry,
	SuccessDisplay:         universal_saver.DefaultSuccessDisplay,
	ProgressUpdateInterval: 200 * time.Millisecond,
}

type Session struct {
	config    Config
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger

	mu       sync.Mutex
	snapshot Snapshot
	// Incremented by every submission, so a stale reset timer can tell it has been overtaken.
	generation uint64
	resetTimer *time.Timer
	closed     bool
	events     pubsub.Publisher[Event]
}

func New(config Config, ctx context.Context) (*Session, error) {
	if config.Requester == nil {
		return nil, errors.New("session requires a Requester")
	}
	if config.Platforms == nil {
		config.Platforms = DefaultConfig.Platforms
	}
	if config.Materializer == nil {
		config.Materializer = materialize.New()
	}
	if config.Clipboard == nil {
		config.Clipboard = clipboard.NewReader()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		config:    config,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("session"),
		snapshot:  Snapshot{State: StateIdle},
		events:    pubsub.NewPublisher[Event](),
	}
	return s, nil
}

// Subscribe to every Event from this session. The subscription ends when the session is closed.
func (s *Session) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return s.events.Subscribe()
}

// SubscribeStates is like Subscribe but only receives StateChanged events.
func (s *Session) SubscribeStates() (pubsub.ReceiverCloser[Event], error) {
	return s.events.SubscribeFiltered(func(e Event) bool {
		_, ok := e.(StateChanged)
		return ok
	})
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Session) Input() string {
	return s.Snapshot().Input
}

// SetInput replaces the link to be submitted next. It is always allowed, even while an attempt is in flight, since the
// attempt has already taken its own copy.
func (s *Session) SetInput(input string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition(func(snap *Snapshot) {
		snap.Input = input
	})
}

// Paste replaces the input with the clipboard contents. If the clipboard can't be read the input is left alone and
// ErrClipboardUnavailable is returned.
func (s *Session) Paste(ctx context.Context) error {
	if s.Snapshot().State.IsBusy() {
		return ErrBusy
	}
	text, err := s.config.Clipboard.Read(ctx)
	if err != nil {
		s.log.Debugf("paste failed: %v", err)
		return fmt.Errorf("%w: %w", ErrClipboardUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	// An attempt may have started while the clipboard was being read
	if s.snapshot.State.IsBusy() {
		return ErrBusy
	}
	s.transition(func(snap *Snapshot) {
		snap.Input = text
	})
	return nil
}

// Submit starts a new attempt with the current input, returning a channel that receives its Outcome. If an attempt is
// already in flight, it returns ErrBusy and nothing changes.
func (s *Session) Submit(ctx context.Context) (<-chan Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.snapshot.State.IsBusy() {
		return nil, ErrBusy
	}
	s.cancelReset()
	s.generation++
	attempt := NewAttemptID()
	input := strings.TrimSpace(s.snapshot.Input)
	s.transition(func(snap *Snapshot) {
		snap.AttemptID = attempt
		snap.State = StateValidating
		snap.Message = UserMessage{}
		snap.SavedPath = ""
	})
	return async.Run(func() Outcome {
		ctx, cancel := s.attemptContext(ctx)
		defer cancel()
		return s.run(ctx, attempt, input)
	}), nil
}

// Close cancels any attempt in flight, stops the success timer and ends all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelReset()
	s.mu.Unlock()
	s.ctxCancel()
	s.events.Close()
}

// attemptContext returns a context that ends with either ctx or the session.
func (s *Session) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// transition applies f to the snapshot and publishes the change, if there was one. The caller must hold s.mu.
func (s *Session) transition(f func(snap *Snapshot)) {
	old := s.snapshot
	f(&s.snapshot)
	if s.snapshot == old {
		return
	}
	if changes, err := diff.Diff(old, s.snapshot); err != nil {
		s.log.Errorf("failed to diff old and new session state: %v", err)
	} else {
		for _, change := range changes {
			s.log.Debugw(fmt.Sprintf("%v: %#v -> %#v", strings.Join(change.Path, "."), change.From, change.To),
				"attempt_id", s.snapshot.AttemptID)
		}
	}
	s.events.Send(StateChanged{Old: old, New: s.snapshot})
}

// update is transition for use from an attempt, which is ignored if the session has moved on to another attempt.
func (s *Session) update(attempt AttemptID, f func(snap *Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.AttemptID != attempt || s.closed {
		return false
	}
	s.transition(f)
	return true
}

// cancelReset stops a pending return to idle. The caller must hold s.mu.
func (s *Session) cancelReset() {
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

// scheduleReset returns the session to idle after SuccessDisplay, unless another submission happens first. The caller
// must hold s.mu.
func (s *Session) scheduleReset() {
	if s.config.SuccessDisplay <= 0 {
		return
	}
	generation := s.generation
	s.resetTimer = time.AfterFunc(s.config.SuccessDisplay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.generation != generation || s.snapshot.State != StateSucceeded {
			return
		}
		s.resetTimer = nil
		s.transition(func(snap *Snapshot) {
			snap.State = StateIdle
			snap.Message = UserMessage{}
			snap.SavedPath = ""
		})
	})
}
