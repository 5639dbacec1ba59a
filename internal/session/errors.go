package session

import (
	"errors"
)

var (
	// ErrNotActive means the session has no step to act on.
	ErrNotActive = errors.New("session is not in a step")
	// ErrNoPreviousStep means retreat was requested on the first step.
	ErrNoPreviousStep = errors.New("already at the first step")
	// ErrSessionFailed means the lesson could not be loaded.
	ErrSessionFailed = errors.New("lesson could not be loaded")
	// ErrCompletionPending means the lesson is being completed and only a
	// completion retry is accepted.
	ErrCompletionPending = errors.New("lesson completion is pending")
	// ErrAlreadyCompleted means the lesson has been completed.
	ErrAlreadyCompleted = errors.New("lesson already completed")
	// ErrUnknownStep means the step id is not part of the lesson.
	ErrUnknownStep = errors.New("unknown step")
	// ErrWrongStep means the action targets a step other than the current one.
	ErrWrongStep = errors.New("step is not the current step")
	// ErrCompletionFailed means the completion record was not accepted.
	ErrCompletionFailed = errors.New("completion submission failed")
	// ErrAutosaveFailed means a progress snapshot was not accepted.
	ErrAutosaveFailed = errors.New("autosave failed")
	// ErrUnknownMediaEvent means the client reported an unsupported event kind.
	ErrUnknownMediaEvent = errors.New("unknown media event")
)

// Learner-facing messages for recoverable failures.
const (
	MsgSpeechFailed     = "Sorry, evaluation failed. Please try again."
	MsgMicrophoneDenied = "Error: Could not access microphone."
	MsgCompletionFailed = "Failed to save your progress. Please try again."
	MsgListening        = "Listening... Speak clearly!"
	MsgProcessing       = "Processing your pronunciation..."
)

// TransientError is a recoverable failure. The session state is unchanged and
// the triggering action may be retried.
type TransientError struct {
	Op      string
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// AsTransient extracts a TransientError from err.
func AsTransient(err error) (*TransientError, bool) {
	var te *TransientError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
