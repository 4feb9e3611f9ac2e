package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"quiz-attempt/internal/domain"
)

// GateSummary is what the student sees before confirming a voluntary submission.
type GateSummary struct {
	Answered      int      `json:"answered"`
	Total         int      `json:"total"`
	Unanswered    int      `json:"unanswered"`
	UnansweredIDs []string `json:"unansweredIds,omitempty"`
}

// Warning reports whether some questions are still unanswered.
func (s GateSummary) Warning() bool { return s.Unanswered > 0 }

func (s GateSummary) String() string {
	if !s.Warning() {
		return fmt.Sprintf("%d of %d answered", s.Answered, s.Total)
	}
	return fmt.Sprintf("%d of %d answered, %d unanswered", s.Answered, s.Total, s.Unanswered)
}

// Gate is a one-shot confirmation checkpoint. Forced submissions never pass through it.
type Gate struct {
	controller *Controller
	summary    GateSummary
	used       atomic.Bool
}

func (g *Gate) Summary() GateSummary {
	s := g.summary
	s.UnansweredIDs = append([]string(nil), g.summary.UnansweredIDs...)
	return s
}

// Confirm submits manually. If the timer already claimed the submission, Confirm
// waits for that run and returns its outcome.
func (g *Gate) Confirm(ctx context.Context) (domain.SubmissionRecord, error) {
	if !g.used.CompareAndSwap(false, true) {
		return domain.SubmissionRecord{}, domain.ErrGateClosed
	}
	return g.controller.submit(ctx, domain.ReasonManual, "confirm")
}

// Dismiss closes the gate without submitting.
func (g *Gate) Dismiss() {
	g.used.Store(true)
}
