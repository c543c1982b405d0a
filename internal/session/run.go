package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanbriolat/universal-saver"
	"github.com/alanbriolat/universal-saver/internal/fetch"
	"github.com/alanbriolat/universal-saver/internal/media"
	"github.com/alanbriolat/universal-saver/internal/validate"
)

// run takes one attempt from validation to a terminal state. Each stage only starts once the previous one has
// finished, and Identify/Save only ever see a fully received response.
func (s *Session) run(ctx context.Context, attempt AttemptID, input string) Outcome {
	log := s.log.With("attempt_id", attempt)
	ctx = universal_saver.WithLogger(ctx, log.Desugar())

	if err := validate.URL(input, s.config.Platforms); err != nil {
		return s.fail(attempt, err)
	}

	s.update(attempt, func(snap *Snapshot) {
		snap.State = StateRequesting
	})
	log.Infof("requesting %v", input)
	progress := newProgressThrottle(s, attempt)
	raw, err := s.config.Requester.Request(ctx, fetch.DownloadRequest{SourceURL: input}, progress.report)
	if err != nil {
		return s.fail(attempt, err)
	}
	progress.flush(int64(len(raw.Body)))
	if err := checkResponse(raw); err != nil {
		return s.fail(attempt, err)
	}

	resolved := media.Identify(*raw)
	log.Debugf("identified %v", resolved)
	path, err := s.config.Materializer.Save(resolved)
	if err != nil {
		return s.fail(attempt, fmt.Errorf("%w: %w", ErrSaveFailed, err))
	}
	return s.succeed(attempt, path)
}

func (s *Session) fail(attempt AttemptID, err error) Outcome {
	message := errorMessage(MessageFor(err))
	s.log.With("attempt_id", attempt).Warnf("attempt failed: %v", err)
	s.update(attempt, func(snap *Snapshot) {
		snap.State = StateFailed
		snap.Message = message
	})
	return Outcome{AttemptID: attempt, State: StateFailed, Message: message, Err: err}
}

func (s *Session) succeed(attempt AttemptID, path string) Outcome {
	message := successMessage(MessageSucceeded)
	s.log.With("attempt_id", attempt).Infof("saved %v", path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot.AttemptID == attempt && !s.closed {
		s.transition(func(snap *Snapshot) {
			snap.State = StateSucceeded
			snap.Message = message
			snap.SavedPath = path
			snap.Input = ""
		})
		s.scheduleReset()
	}
	return Outcome{AttemptID: attempt, State: StateSucceeded, Message: message, SavedPath: path}
}

// progressThrottle turns transfer progress into the receiving state and rate-limited Progress events.
type progressThrottle struct {
	session  *Session
	attempt  AttemptID
	mu       sync.Mutex
	started  bool
	lastSent time.Time
	last     Progress
}

func newProgressThrottle(s *Session, attempt AttemptID) *progressThrottle {
	return &progressThrottle{
		session: s,
		attempt: attempt,
		last:    Progress{AttemptID: attempt, Downloaded: -1, Expected: -1},
	}
}

func (p *progressThrottle) report(downloaded int64, expected int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.started = true
		p.session.update(p.attempt, func(snap *Snapshot) {
			if snap.State == StateRequesting {
				snap.State = StateReceiving
			}
		})
	}
	p.last.Expected = expected
	now := time.Now()
	if now.Sub(p.lastSent) >= p.session.config.ProgressUpdateInterval || downloaded == expected {
		p.send(downloaded, now)
	}
}

// flush makes sure the final byte count has been sent.
func (p *progressThrottle) flush(downloaded int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last.Downloaded != downloaded {
		p.send(downloaded, time.Now())
	}
}

func (p *progressThrottle) send(downloaded int64, now time.Time) {
	if p.last.Downloaded == downloaded && !p.lastSent.IsZero() {
		return
	}
	p.last.Downloaded = downloaded
	p.lastSent = now
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	if p.session.snapshot.AttemptID == p.attempt && !p.session.closed {
		p.session.events.Send(p.last)
	}
}
