package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound is returned when the server does not know the quiz.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptWindowClosed is returned when the quiz no longer accepts attempts.
	ErrAttemptWindowClosed = errors.New("attempt window closed")
	// ErrAlreadyAttempted is returned when the student has used their attempt.
	ErrAlreadyAttempted = errors.New("quiz already attempted")
	// ErrQuestionNotFound indicates an answer for a question outside the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidAnswer indicates an answer that does not fit its question type.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrIndexOutOfRange is returned by navigation jumps outside the question list.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrContractViolation marks an operation issued in a state that forbids it.
	ErrContractViolation = errors.New("attempt contract violation")
	// ErrSubmissionExhausted is returned after every submission try failed.
	ErrSubmissionExhausted = errors.New("submission retries exhausted")
	// ErrGateClosed is returned when a confirmation gate is used a second time.
	ErrGateClosed = errors.New("confirmation gate already used")
	// ErrTimerStarted is returned when a countdown is started twice.
	ErrTimerStarted = errors.New("timer already started")
	// ErrCheckpointNotFound is returned by checkpoint stores on a miss.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrNothingToResume is returned for checkpoints of finished attempts.
	ErrNothingToResume = errors.New("attempt already completed")
)

// FetchError wraps a failure to start an attempt.
type FetchError struct {
	QuizID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("start quiz %s: %v", e.QuizID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RejectedError is a structured submission failure from the server. It is never retried.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("submission rejected (%d): %s", e.Status, e.Message)
}

// SubmissionError is returned once the pipeline gives up.
type SubmissionError struct {
	Attempts int
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%v after %d attempt(s): %v", ErrSubmissionExhausted, e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() []error { return []error{ErrSubmissionExhausted, e.Err} }

// ContractError describes an operation attempted in the wrong state.
type ContractError struct {
	Op    string
	State AttemptState
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%v: %s not allowed in state %s", ErrContractViolation, e.Op, e.State)
}

func (e *ContractError) Unwrap() error { return ErrContractViolation }
