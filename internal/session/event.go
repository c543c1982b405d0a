package session

type Event interface {
	// The attempt this event relates to, empty if there hasn't been one yet.
	Attempt() AttemptID
}

// StateChanged is sent for every change to the session Snapshot, in the order the changes happened.
type StateChanged struct {
	Old Snapshot
	New Snapshot
}

func (e StateChanged) Attempt() AttemptID {
	return e.New.AttemptID
}

// Progress is sent while the response is being received. Expected is -1 if the size isn't known.
type Progress struct {
	AttemptID  AttemptID
	Downloaded int64
	Expected   int64
}

func (e Progress) Attempt() AttemptID {
	return e.AttemptID
}

// Outcome is the final result of a submission.
type Outcome struct {
	AttemptID AttemptID
	// Either StateSucceeded or StateFailed.
	State     State
	Message   UserMessage
	SavedPath string
	// Set if State is StateFailed.
	Err error
}
