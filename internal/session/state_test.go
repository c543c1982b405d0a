package session

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestState_IsBusy(t *testing.T) {
	assert := assert_.New(t)
	assert.False(StateIdle.IsBusy())
	assert.True(StateValidating.IsBusy())
	assert.True(StateRequesting.IsBusy())
	assert.True(StateReceiving.IsBusy())
	assert.False(StateSucceeded.IsBusy())
	assert.False(StateFailed.IsBusy())
}

func TestNewAttemptID(t *testing.T) {
	assert := assert_.New(t)
	a, b := NewAttemptID(), NewAttemptID()
	assert.Len(string(a), 36)
	assert.NotEqual(a, b)
}
