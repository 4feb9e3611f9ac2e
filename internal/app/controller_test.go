package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-attempt/internal/app"
	"quiz-attempt/internal/domain"
	"quiz-attempt/internal/infra/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func startedController(t *testing.T, api *fakeAPI, clock *fakeClock, opts ...app.Option) *app.Controller {
	t.Helper()
	c := newTestController(api, clock, opts...)
	require.NoError(t, c.Start(context.Background(), api.quiz.ID))
	t.Cleanup(c.Close)
	return c
}

func waitForState(t *testing.T, c *app.Controller, state domain.AttemptState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == state }, 2*time.Second, time.Millisecond,
		"expected state %s, still %s", state, c.State())
}

func TestExpirySubmitsAnsweredQuestionsOnly(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	clock := newFakeClock()
	c := startedController(t, api, clock)

	require.Equal(t, domain.StateInProgress, c.State())
	require.Equal(t, 60, c.Snapshot().RemainingSec)
	require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o2"}))
	require.NoError(t, c.SetAnswer("q2", domain.BoolAnswer{Value: true}))

	clock.AdvanceBy(60 * time.Second)
	waitForState(t, c, domain.StateCompleted)

	calls := api.requests()
	require.Len(t, calls, 1)
	require.Equal(t, domain.ReasonExpiry, calls[0].Reason)
	require.Equal(t, []domain.AnswerEntry{
		{QuestionID: "q1", Answer: "o2"},
		{QuestionID: "q2", Answer: "True"},
	}, calls[0].Answers)

	record, ok := c.Record()
	require.True(t, ok)
	require.Equal(t, domain.ReasonExpiry, record.Reason)
	require.Len(t, record.Answers, 2)
	require.Equal(t, 0, c.Snapshot().RemainingSec)
}

func TestManualSubmissionThroughGate(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	clock := newFakeClock()
	journal := memory.NewJournal()
	c := startedController(t, api, clock, app.WithJournal(journal))

	require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o1"}))
	require.NoError(t, c.SetAnswer("q2", domain.BoolAnswer{Value: false}))
	require.NoError(t, c.SetAnswer("q3", domain.TextAnswer{Text: "defer"}))

	require.NoError(t, c.JumpTo(2))
	res, err := c.Next()
	require.NoError(t, err)
	require.NotNil(t, res.Gate)
	summary := res.Gate.Summary()
	require.Equal(t, "3 of 3 answered", summary.String())
	require.False(t, summary.Warning())

	record, err := res.Gate.Confirm(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.ReasonManual, record.Reason)
	require.Len(t, record.Answers, 3)
	require.Equal(t, domain.StateCompleted, c.State())
	require.Len(t, api.requests(), 1)

	// the timer is stopped once submission begins
	clock.AdvanceBy(2 * time.Minute)
	require.Never(t, func() bool { return len(api.requests()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	entries, err := journal.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "att-quiz-1", entries[0].AttemptID)
}

func TestGateWarnsAboutUnanswered(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	c := startedController(t, api, newFakeClock())
	require.NoError(t, c.SetAnswer("q2", domain.BoolAnswer{Value: true}))

	gate, err := c.OpenGate()
	require.NoError(t, err)
	summary := gate.Summary()
	require.True(t, summary.Warning())
	require.Equal(t, "1 of 3 answered, 2 unanswered", summary.String())
	require.Equal(t, []string{"q1", "q3"}, summary.UnansweredIDs)

	gate.Dismiss()
	_, err = gate.Confirm(context.Background())
	require.ErrorIs(t, err, domain.ErrGateClosed)
	require.Equal(t, domain.StateInProgress, c.State())
	require.Empty(t, api.requests())
}

func TestGateConfirmIsOneShot(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	c := startedController(t, api, newFakeClock())

	gate, err := c.OpenGate()
	require.NoError(t, err)
	_, err = gate.Confirm(context.Background())
	require.NoError(t, err)
	_, err = gate.Confirm(context.Background())
	require.ErrorIs(t, err, domain.ErrGateClosed)

	_, err = c.OpenGate()
	var contractErr *domain.ContractError
	require.ErrorAs(t, err, &contractErr)
	require.Len(t, api.requests(), 1)
}

func TestTransientFailuresStayInSubmitting(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	api.setFailures(2, nil)
	c := newTestController(api, newFakeClock())

	var mu sync.Mutex
	var observed []domain.AttemptState
	api.observe = func(domain.SubmitRequest) {
		mu.Lock()
		observed = append(observed, c.State())
		mu.Unlock()
	}
	require.NoError(t, c.Start(context.Background(), "quiz-1"))
	defer c.Close()
	require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o2"}))

	gate, err := c.OpenGate()
	require.NoError(t, err)
	_, err = gate.Confirm(context.Background())
	require.NoError(t, err)

	require.Equal(t, domain.StateCompleted, c.State())
	require.Equal(t, 2, c.Snapshot().SubmitTries)
	mu.Lock()
	require.Equal(t, []domain.AttemptState{domain.StateSubmitting, domain.StateSubmitting, domain.StateSubmitting}, observed)
	mu.Unlock()

	calls := api.requests()
	require.Len(t, calls, 3)
	for _, call := range calls[1:] {
		require.Equal(t, calls[0].IdempotencyKey, call.IdempotencyKey)
		require.Equal(t, calls[0].Answers, call.Answers)
	}
}

func TestConfirmRacingExpirySubmitsOnce(t *testing.T) {
	for i := 0; i < 25; i++ {
		t.Run(fmt.Sprintf("run-%d", i), func(t *testing.T) {
			api := newFakeAPI(threeQuestionQuiz())
			clock := newFakeClock()
			c := startedController(t, api, clock)
			require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o1"}))
			clock.Advance(59 * time.Second)

			gate, err := c.OpenGate()
			require.NoError(t, err)

			var wg sync.WaitGroup
			var confirmErr error
			var record domain.SubmissionRecord
			wg.Add(2)
			go func() {
				defer wg.Done()
				record, confirmErr = gate.Confirm(context.Background())
			}()
			go func() {
				defer wg.Done()
				clock.Advance(time.Second)
			}()
			wg.Wait()

			require.NoError(t, confirmErr)
			waitForState(t, c, domain.StateCompleted)
			require.Len(t, api.requests(), 1)
			stored, ok := c.Record()
			require.True(t, ok)
			require.Equal(t, stored.Reason, record.Reason)
		})
	}
}

func TestAnswersFrozenOnceSubmissionBegins(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	release := api.holdSubmissions()
	defer release()
	c := startedController(t, api, newFakeClock())
	require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o1"}))

	gate, err := c.OpenGate()
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = gate.Confirm(context.Background())
	}()
	api.waitEntered()

	require.Equal(t, domain.StateSubmitting, c.State())
	err = c.SetAnswer("q2", domain.BoolAnswer{Value: true})
	require.ErrorIs(t, err, domain.ErrContractViolation)
	var contractErr *domain.ContractError
	require.ErrorAs(t, err, &contractErr)
	require.Equal(t, domain.StateSubmitting, contractErr.State)

	// navigation still works while waiting for the server
	require.NoError(t, c.JumpTo(1))

	release()
	<-done
	record, ok := c.Record()
	require.True(t, ok)
	require.Equal(t, []domain.AnswerEntry{{QuestionID: "q1", Answer: "o1"}}, record.Answers)
}

func TestExhaustedSubmissionCanBeRetried(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	api.setFailures(3, nil)
	clock := newFakeClock()
	c := startedController(t, api, clock)
	require.NoError(t, c.SetAnswer("q3", domain.TextAnswer{Text: "select"}))

	gate, err := c.OpenGate()
	require.NoError(t, err)
	_, err = gate.Confirm(context.Background())
	require.ErrorIs(t, err, domain.ErrSubmissionExhausted)
	require.Equal(t, domain.StateError, c.State())
	require.ErrorIs(t, c.Err(), domain.ErrSubmissionExhausted)
	require.NotEmpty(t, c.Snapshot().Error)

	// expiry cannot trigger a second submission from Error
	clock.AdvanceBy(2 * time.Minute)
	require.Never(t, func() bool { return len(api.requests()) > 3 }, 50*time.Millisecond, 5*time.Millisecond)
	require.ErrorIs(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o1"}), domain.ErrContractViolation)

	record, err := c.Retry(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, c.State())
	require.Equal(t, domain.ReasonManual, record.Reason)

	calls := api.requests()
	require.Len(t, calls, 4)
	for _, call := range calls {
		require.Equal(t, calls[0].IdempotencyKey, call.IdempotencyKey)
		require.Equal(t, []domain.AnswerEntry{{QuestionID: "q3", Answer: "select"}}, call.Answers)
	}
}

func TestRejectedSubmissionIsNotRetried(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	api.setFailures(1, &domain.RejectedError{Status: 409, Message: "already submitted"})
	c := startedController(t, api, newFakeClock())

	gate, err := c.OpenGate()
	require.NoError(t, err)
	_, err = gate.Confirm(context.Background())
	var rejected *domain.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, domain.StateError, c.State())
	require.Len(t, api.requests(), 1)
}

func TestRetryOutsideErrorIsContractViolation(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	c := startedController(t, api, newFakeClock())
	_, err := c.Retry(context.Background())
	require.ErrorIs(t, err, domain.ErrContractViolation)
}

func TestStartFailureStaysNotStarted(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	c := newTestController(api, newFakeClock())
	defer c.Close()

	err := c.Start(context.Background(), "missing")
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
	require.Equal(t, domain.StateNotStarted, c.State())

	require.ErrorIs(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o1"}), domain.ErrContractViolation)
	_, err = c.OpenGate()
	require.ErrorIs(t, err, domain.ErrContractViolation)

	require.NoError(t, c.Start(context.Background(), "quiz-1"))
	require.ErrorIs(t, c.Start(context.Background(), "quiz-1"), domain.ErrContractViolation)
}

func TestSetAnswerValidation(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	c := startedController(t, api, newFakeClock())

	require.ErrorIs(t, c.SetAnswer("nope", domain.TextAnswer{Text: "x"}), domain.ErrQuestionNotFound)
	require.ErrorIs(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o9"}), domain.ErrInvalidAnswer)
	require.ErrorIs(t, c.SetAnswer("q1", domain.BoolAnswer{Value: true}), domain.ErrInvalidAnswer)
	require.ErrorIs(t, c.SetAnswer("q3", domain.TextAnswer{Text: "   "}), domain.ErrInvalidAnswer)

	require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o1"}))
	require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o2"}))
	view, err := c.Current()
	require.NoError(t, err)
	require.Equal(t, "o2", view.Answer.Wire())
	require.Equal(t, 33, c.Snapshot().Progress.Percent)
}

func TestNavigationThroughController(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	c := startedController(t, api, newFakeClock())

	idx, err := c.Previous()
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	res, err := c.Next()
	require.NoError(t, err)
	require.Equal(t, 1, res.Index)
	require.Nil(t, res.Gate)

	require.ErrorIs(t, c.JumpTo(3), domain.ErrIndexOutOfRange)
	view, err := c.Current()
	require.NoError(t, err)
	require.Equal(t, "q2", view.Question.ID)
	require.Equal(t, 3, view.Total)
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	clock := newFakeClock()
	c := startedController(t, api, clock)

	updates, cancel := c.Subscribe()
	defer cancel()
	first := <-updates
	require.Equal(t, domain.StateInProgress, first.State)

	require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o1"}))
	require.Eventually(t, func() bool {
		for {
			select {
			case snap := <-updates:
				if snap.Progress.Answered == 1 {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, time.Millisecond)
}

func TestResumeInProgressKeepsDeadline(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	clock := newFakeClock()
	first := startedController(t, api, clock)
	require.NoError(t, first.SetAnswer("q1", domain.OptionAnswer{OptionID: "o2"}))
	require.NoError(t, first.JumpTo(2))
	clock.Advance(20 * time.Second)
	cp := first.Checkpoint()
	first.Close()

	clock.Advance(10 * time.Second)
	second := newTestController(api, clock)
	defer second.Close()
	require.NoError(t, second.Resume(cp))
	require.Equal(t, domain.StateInProgress, second.State())
	require.Equal(t, 30, second.Snapshot().RemainingSec)
	require.Equal(t, 2, second.Snapshot().CurrentIndex)

	clock.AdvanceBy(30 * time.Second)
	waitForState(t, second, domain.StateCompleted)
	calls := api.requests()
	require.Len(t, calls, 1)
	require.Equal(t, domain.ReasonExpiry, calls[0].Reason)
	require.Equal(t, []domain.AnswerEntry{{QuestionID: "q1", Answer: "o2"}}, calls[0].Answers)
}

func TestResumePastDeadlineSubmitsImmediately(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	clock := newFakeClock()
	first := startedController(t, api, clock)
	require.NoError(t, first.SetAnswer("q2", domain.BoolAnswer{Value: true}))
	cp := first.Checkpoint()
	first.Close()

	clock.Advance(2 * time.Minute)
	require.True(t, cp.Deadline.Before(clock.Now()))

	second := newTestController(api, clock)
	defer second.Close()
	require.NoError(t, second.Resume(cp))
	waitForState(t, second, domain.StateCompleted)

	calls := api.requests()
	require.Len(t, calls, 1)
	require.Equal(t, domain.ReasonExpiry, calls[0].Reason)
	require.Equal(t, []domain.AnswerEntry{{QuestionID: "q2", Answer: "True"}}, calls[0].Answers)
}

func TestResumeWithCorruptCursorStartsAtFirstQuestion(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	clock := newFakeClock()
	first := startedController(t, api, clock)
	cp := first.Checkpoint()
	first.Close()
	cp.CurrentIndex = 7

	core, logs := observer.New(zapcore.WarnLevel)
	second := newTestController(api, clock, app.WithLogger(zap.New(core)))
	defer second.Close()
	require.NoError(t, second.Resume(cp))
	require.Equal(t, 0, second.Snapshot().CurrentIndex)

	warnings := logs.FilterMessage("checkpoint cursor out of range, starting at first question").All()
	require.Len(t, warnings, 1)
	require.Equal(t, int64(7), warnings[0].ContextMap()["index"])
}

func TestResumeInterruptedSubmissionReusesFrozenPayload(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	api.setFailures(3, nil)
	var keys atomic.Int32
	keyGen := app.WithIdempotencyKeys(func() string { return fmt.Sprintf("key-%d", keys.Add(1)) })
	first := startedController(t, api, newFakeClock(), keyGen)
	require.NoError(t, first.SetAnswer("q2", domain.BoolAnswer{Value: false}))
	gate, err := first.OpenGate()
	require.NoError(t, err)
	_, err = gate.Confirm(context.Background())
	require.Error(t, err)

	cp := first.Checkpoint()
	require.Equal(t, domain.StateError, cp.State)
	require.NotNil(t, cp.Frozen)
	first.Close()

	second := newTestController(api, newFakeClock(), keyGen)
	defer second.Close()
	require.NoError(t, second.Resume(cp))
	require.Equal(t, domain.StateError, second.State())

	_, err = second.Retry(context.Background())
	require.NoError(t, err)
	calls := api.requests()
	require.Len(t, calls, 4)
	require.Equal(t, "key-1", calls[3].IdempotencyKey)
	require.Equal(t, calls[0].Answers, calls[3].Answers)
}

func TestResumeCompletedIsRefused(t *testing.T) {
	c := newTestController(newFakeAPI(threeQuestionQuiz()), newFakeClock())
	defer c.Close()
	err := c.Resume(domain.Checkpoint{AttemptID: "att-1", State: domain.StateCompleted})
	require.True(t, errors.Is(err, domain.ErrNothingToResume))
}

func TestCheckpointerMirrorsAndClears(t *testing.T) {
	api := newFakeAPI(threeQuestionQuiz())
	store := memory.NewCheckpointStore()
	c := startedController(t, api, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.NewCheckpointer(store, 0, nil).Run(ctx, c) }()

	require.NoError(t, c.SetAnswer("q1", domain.OptionAnswer{OptionID: "o1"}))
	require.Eventually(t, func() bool {
		cp, err := store.Load(context.Background(), "att-quiz-1")
		return err == nil && len(cp.Answers) == 1
	}, time.Second, time.Millisecond)

	gate, err := c.OpenGate()
	require.NoError(t, err)
	_, err = gate.Confirm(context.Background())
	require.NoError(t, err)

	require.NoError(t, <-done)
	_, err = store.Load(context.Background(), "att-quiz-1")
	require.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}
