package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"quiz-attempt/internal/app"
	"quiz-attempt/internal/domain"

	"github.com/cenkalti/backoff/v4"
)

// fakeClock only moves when Advance is called. Ticks are delivered like time.Ticker:
// a full buffer drops the tick, and the timer reads Now() when it wakes up.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) app.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		if t.stopped.Load() {
			continue
		}
		select {
		case t.ch <- now:
		default:
		}
	}
}

// AdvanceBy steps one second at a time.
func (c *fakeClock) AdvanceBy(total time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += time.Second {
		c.Advance(time.Second)
	}
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

var errNetwork = errors.New("connection reset by peer")

// fakeAPI answers StartAttempt from a fixed quiz and fails the first `failures`
// submissions with failWith (errNetwork by default).
type fakeAPI struct {
	quiz domain.Quiz

	mu       sync.Mutex
	failures int
	failWith error
	calls    []domain.SubmitRequest
	observe  func(domain.SubmitRequest)
	hold     chan struct{}
	entered  chan struct{}
}

func newFakeAPI(quiz domain.Quiz) *fakeAPI {
	return &fakeAPI{quiz: quiz}
}

func (f *fakeAPI) StartAttempt(_ context.Context, quizID string) (domain.StartResponse, error) {
	if quizID != f.quiz.ID {
		return domain.StartResponse{}, &domain.FetchError{QuizID: quizID, Err: domain.ErrQuizNotFound}
	}
	return domain.StartResponse{AttemptID: "att-" + quizID, Quiz: f.quiz}, nil
}

func (f *fakeAPI) SubmitAttempt(_ context.Context, req domain.SubmitRequest) (domain.SubmitResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	hold, entered, observe := f.hold, f.entered, f.observe
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	failWith := f.failWith
	f.mu.Unlock()

	if observe != nil {
		observe(req)
	}
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if hold != nil {
		<-hold
	}
	if fail {
		if failWith == nil {
			failWith = errNetwork
		}
		return domain.SubmitResponse{}, failWith
	}
	score := len(req.Answers)
	return domain.SubmitResponse{
		Status:      domain.GradingGraded,
		Score:       &score,
		TotalMarks:  f.quiz.TotalMarks,
		SubmittedAt: time.Date(2026, 10, 14, 9, 5, 0, 0, time.UTC),
	}, nil
}

func (f *fakeAPI) setFailures(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.failWith = err
}

func (f *fakeAPI) holdSubmissions() (release func()) {
	f.mu.Lock()
	f.hold = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	hold := f.hold
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

func (f *fakeAPI) waitEntered() {
	f.mu.Lock()
	entered := f.entered
	f.mu.Unlock()
	<-entered
}

func (f *fakeAPI) requests() []domain.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SubmitRequest(nil), f.calls...)
}

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

func newTestController(api *fakeAPI, clock *fakeClock, opts ...app.Option) *app.Controller {
	pipeline := app.NewPipeline(api, app.WithBackOff(noWait))
	opts = append([]app.Option{app.WithClock(clock)}, opts...)
	return app.NewController(api, pipeline, opts...)
}

// threeQuestionQuiz lasts one minute.
func threeQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		Title:           "Warm-up",
		DurationMinutes: 1,
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Type: domain.QuestionSingleChoice,
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4"},
				},
				Marks: 1,
			},
			{ID: "q2", Text: "Go has generics", Type: domain.QuestionTrueFalse, Marks: 1},
			{ID: "q3", Text: "Name a Go keyword", Type: domain.QuestionFreeText, Marks: 2},
		},
		TotalMarks: 4,
	}
}
