package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/alanbriolat/universal-saver/generic"
)

type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRequesting State = "requesting"
	StateReceiving  State = "receiving"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

var busyStates = generic.NewSet(
	StateValidating,
	StateRequesting,
	StateReceiving,
)

// IsBusy returns true while an attempt is in flight, when a new submission must be refused.
func (s State) IsBusy() bool {
	return busyStates.Contains(s)
}

type MessageKind string

const (
	MessageNone    MessageKind = ""
	MessageError   MessageKind = "error"
	MessageSuccess MessageKind = "success"
)

// UserMessage is the single line of feedback currently shown to the user, if any.
type UserMessage struct {
	Kind MessageKind
	Text string
}

func (m UserMessage) IsSet() bool {
	return m.Kind != MessageNone
}

func errorMessage(text string) UserMessage {
	return UserMessage{Kind: MessageError, Text: text}
}

func successMessage(text string) UserMessage {
	return UserMessage{Kind: MessageSuccess, Text: text}
}

type AttemptID string

func NewAttemptID() AttemptID {
	return AttemptID(generic.Unwrap(uuid.NewRandom()).String())
}

// Snapshot is everything needed to render the session.
type Snapshot struct {
	// The most recent submission, empty before the first one.
	AttemptID AttemptID
	State     State
	Input     string
	Message   UserMessage
	// Where the last successful download was saved, only set while State is StateSucceeded.
	SavedPath string
}

func (s Snapshot) String() string {
	return fmt.Sprintf("Snapshot{AttemptID:%q, State:%q, Input:%q, Message:%q}", s.AttemptID, s.State, s.Input, s.Message.Text)
}
