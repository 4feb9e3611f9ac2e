package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quiz-attempt/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttemptAPI is the server contract consumed by the controller.
type AttemptAPI interface {
	StartAttempt(ctx context.Context, quizID string) (domain.StartResponse, error)
	Submitter
}

// SubmissionJournal durably records completed submissions.
type SubmissionJournal interface {
	Record(ctx context.Context, rec domain.SubmissionRecord) error
}

var errSubmissionInterrupted = errors.New("submission interrupted before a result was received")

// Snapshot is a read-only copy of the observable attempt state.
type Snapshot struct {
	AttemptID    string                   `json:"attemptId"`
	QuizID       string                   `json:"quizId"`
	Title        string                   `json:"title"`
	State        domain.AttemptState      `json:"state"`
	Remaining    time.Duration            `json:"-"`
	RemainingSec int                      `json:"remainingSeconds"`
	Progress     Progress                 `json:"progress"`
	CurrentIndex int                      `json:"currentIndex"`
	SubmitTries  int                      `json:"submitTries"`
	Record       *domain.SubmissionRecord `json:"record,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Revision     uint64                   `json:"revision"`
}

// QuestionView is the question under the navigator cursor and its current answer.
type QuestionView struct {
	Index    int
	Total    int
	Question domain.Question
	Answer   domain.Answer
}

// NavResult is returned by Next. Gate is set when Next was called on the last question
// of an attempt still in progress.
type NavResult struct {
	Index int
	Gate  *Gate
}

type submissionRun struct {
	done   chan struct{}
	record domain.SubmissionRecord
	err    error
}

func (r *submissionRun) wait(ctx context.Context) (domain.SubmissionRecord, error) {
	select {
	case <-r.done:
		if r.err != nil {
			return domain.SubmissionRecord{}, r.err
		}
		return r.record.Clone(), nil
	case <-ctx.Done():
		return domain.SubmissionRecord{}, ctx.Err()
	}
}

// Controller owns one attempt session and its state machine:
// NotStarted -> InProgress -> Submitting -> Completed, with Submitting <-> Error.
type Controller struct {
	api      AttemptAPI
	pipeline *Pipeline
	clock    Clock
	tick     time.Duration
	journal  SubmissionJournal
	logger   *zap.Logger
	newKey   func() string

	mu          sync.Mutex
	state       domain.AttemptState
	starting    bool
	attemptID   string
	quiz        domain.Quiz
	answers     *AnswerStore
	nav         *Navigator
	timer       *Timer
	claimed     bool
	frozen      *domain.FrozenSubmission
	run         *submissionRun
	record      *domain.SubmissionRecord
	lastErr     error
	tries       int
	revision    uint64
	subscribers map[chan Snapshot]struct{}
}

// Option customizes a Controller.
type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithTickInterval sets how often the countdown re-evaluates.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

func WithJournal(j SubmissionJournal) Option {
	return func(c *Controller) { c.journal = j }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithIdempotencyKeys replaces the uuid key generator.
func WithIdempotencyKeys(fn func() string) Option {
	return func(c *Controller) { c.newKey = fn }
}

// NewController builds a controller in NotStarted. A nil pipeline submits through api
// with default retry settings.
func NewController(api AttemptAPI, pipeline *Pipeline, opts ...Option) *Controller {
	c := &Controller{
		api:         api,
		pipeline:    pipeline,
		clock:       SystemClock{},
		tick:        time.Second,
		logger:      zap.NewNop(),
		newKey:      uuid.NewString,
		state:       domain.StateNotStarted,
		answers:     NewAnswerStore(),
		nav:         NewNavigator(0),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipeline == nil {
		c.pipeline = NewPipeline(api, WithPipelineLogger(c.logger))
	}
	return c
}

// Start fetches the quiz and enters InProgress. Fetch failures leave the controller in
// NotStarted so Start can be retried.
func (c *Controller) Start(ctx context.Context, quizID string) error {
	c.mu.Lock()
	if c.state != domain.StateNotStarted || c.starting {
		state := c.state
		c.mu.Unlock()
		return &domain.ContractError{Op: "start", State: state}
	}
	c.starting = true
	c.mu.Unlock()

	resp, err := c.api.StartAttempt(ctx, quizID)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			err = &domain.FetchError{QuizID: quizID, Err: err}
		}
		c.logger.Error("start attempt failed", zap.String("quiz_id", quizID), zap.Error(err))
		return err
	}
	quiz := resp.Quiz.Clone()
	c.loadLocked(resp.AttemptID, quiz, NewAnswerStore())
	deadline := c.clock.Now().Add(quiz.Duration())
	c.setStateLocked(domain.StateInProgress)
	c.startTimerLocked(deadline)
	c.mu.Unlock()

	c.logger.Info("attempt started",
		zap.String("attempt_id", resp.AttemptID),
		zap.String("quiz_id", quiz.ID),
		zap.Int("questions", len(quiz.Questions)),
		zap.Time("deadline", deadline),
	)
	c.broadcast()
	return nil
}

// Resume restores a session from a checkpoint. In-progress sessions continue against
// the stored deadline; interrupted submissions land in Error with their frozen payload.
func (c *Controller) Resume(cp domain.Checkpoint) error {
	if cp.State == domain.StateCompleted {
		return domain.ErrNothingToResume
	}
	quiz := cp.Quiz.Clone()
	answers := NewAnswerStore()
	for _, entry := range cp.Answers {
		q, ok := quiz.Question(entry.QuestionID)
		if !ok {
			return fmt.Errorf("resume: %w: %s", domain.ErrQuestionNotFound, entry.QuestionID)
		}
		answer, err := domain.DecodeAnswer(q, entry.Answer)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		answers.Set(q.ID, answer)
	}

	c.mu.Lock()
	if c.state != domain.StateNotStarted || c.starting {
		state := c.state
		c.mu.Unlock()
		return &domain.ContractError{Op: "resume", State: state}
	}
	switch cp.State {
	case domain.StateInProgress:
		c.loadLocked(cp.AttemptID, quiz, answers)
		c.restoreCursorLocked(cp.AttemptID, cp.CurrentIndex)
		c.setStateLocked(domain.StateInProgress)
		c.startTimerLocked(cp.Deadline)
	case domain.StateSubmitting, domain.StateError:
		if cp.Frozen == nil {
			c.mu.Unlock()
			return fmt.Errorf("resume: checkpoint in state %s has no frozen submission", cp.State)
		}
		c.loadLocked(cp.AttemptID, quiz, answers)
		c.restoreCursorLocked(cp.AttemptID, cp.CurrentIndex)
		frozen := *cp.Frozen
		frozen.Answers = append([]domain.AnswerEntry(nil), cp.Frozen.Answers...)
		c.frozen = &frozen
		c.claimed = true
		c.lastErr = errSubmissionInterrupted
		c.setStateLocked(domain.StateError)
	default:
		c.mu.Unlock()
		return fmt.Errorf("resume: unexpected checkpoint state %q", cp.State)
	}
	if cp.Revision > c.revision {
		c.revision = cp.Revision
	}
	c.mu.Unlock()

	c.logger.Info("attempt resumed",
		zap.String("attempt_id", cp.AttemptID),
		zap.String("state", string(cp.State)),
		zap.Int("answers", answers.AnsweredCount()),
	)
	c.broadcast()
	return nil
}

// restoreCursorLocked moves to the checkpointed question, falling back to the
// first question when the stored index does not fit the quiz.
func (c *Controller) restoreCursorLocked(attemptID string, index int) {
	if err := c.nav.JumpTo(index); err != nil {
		c.logger.Warn("checkpoint cursor out of range, starting at first question",
			zap.String("attempt_id", attemptID),
			zap.Int("index", index),
			zap.Int("questions", len(c.quiz.Questions)),
		)
		_ = c.nav.JumpTo(0)
	}
}

// SetAnswer records an answer. It is only allowed while InProgress.
func (c *Controller) SetAnswer(questionID string, answer domain.Answer) error {
	c.mu.Lock()
	if c.state != domain.StateInProgress {
		state := c.state
		c.mu.Unlock()
		return &domain.ContractError{Op: "set answer", State: state}
	}
	q, ok := c.quiz.Question(questionID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	if err := domain.ValidateAnswer(q, answer); err != nil {
		c.mu.Unlock()
		return err
	}
	c.answers.Set(questionID, answer)
	c.revision++
	c.mu.Unlock()

	c.broadcast()
	return nil
}

// Current returns the question under the cursor.
func (c *Controller) Current() (QuestionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateNotStarted || len(c.quiz.Questions) == 0 {
		return QuestionView{}, &domain.ContractError{Op: "current question", State: c.state}
	}
	return c.viewLocked(), nil
}

// Next advances the cursor; on the last question it opens the confirmation gate instead.
func (c *Controller) Next() (NavResult, error) {
	c.mu.Lock()
	if c.state == domain.StateNotStarted {
		c.mu.Unlock()
		return NavResult{}, &domain.ContractError{Op: "next", State: c.state}
	}
	index, atEnd := c.nav.Next()
	if !atEnd {
		c.revision++
		c.mu.Unlock()
		c.broadcast()
		return NavResult{Index: index}, nil
	}
	var gate *Gate
	if c.state == domain.StateInProgress {
		gate = c.gateLocked()
	}
	c.mu.Unlock()
	return NavResult{Index: index, Gate: gate}, nil
}

// Previous moves the cursor back; a no-op on the first question.
func (c *Controller) Previous() (int, error) {
	c.mu.Lock()
	if c.state == domain.StateNotStarted {
		c.mu.Unlock()
		return 0, &domain.ContractError{Op: "previous", State: c.state}
	}
	before := c.nav.Current()
	index := c.nav.Previous()
	if index != before {
		c.revision++
	}
	c.mu.Unlock()
	c.broadcast()
	return index, nil
}

// JumpTo moves the cursor to index.
func (c *Controller) JumpTo(index int) error {
	c.mu.Lock()
	if c.state == domain.StateNotStarted {
		c.mu.Unlock()
		return &domain.ContractError{Op: "jump", State: c.state}
	}
	if err := c.nav.JumpTo(index); err != nil {
		c.mu.Unlock()
		return err
	}
	c.revision++
	c.mu.Unlock()
	c.broadcast()
	return nil
}

// OpenGate shows the confirmation checkpoint before a voluntary submission.
func (c *Controller) OpenGate() (*Gate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateInProgress {
		return nil, &domain.ContractError{Op: "open gate", State: c.state}
	}
	return c.gateLocked(), nil
}

// Retry re-submits the frozen payload after an exhausted or rejected submission.
// Calling it while a submission is running waits for that run instead.
func (c *Controller) Retry(ctx context.Context) (domain.SubmissionRecord, error) {
	c.mu.Lock()
	switch c.state {
	case domain.StateError:
		run := c.beginRunLocked()
		c.mu.Unlock()
		c.logger.Info("retrying submission", zap.String("attempt_id", c.attemptID))
		c.execute(ctx, run)
		return run.wait(ctx)
	case domain.StateSubmitting:
		run := c.run
		c.mu.Unlock()
		return run.wait(ctx)
	default:
		state := c.state
		c.mu.Unlock()
		return domain.SubmissionRecord{}, &domain.ContractError{Op: "retry", State: state}
	}
}

// State returns the lifecycle state.
func (c *Controller) State() domain.AttemptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Record returns a copy of the terminal Submission Record once Completed.
func (c *Controller) Record() (domain.SubmissionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return domain.SubmissionRecord{}, false
	}
	return c.record.Clone(), true
}

// Err returns the last submission failure while in Error.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Quiz returns a copy of the quiz definition.
func (c *Controller) Quiz() domain.Quiz {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quiz.Clone()
}

// Snapshot returns the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Checkpoint captures everything needed to resume the session.
func (c *Controller) Checkpoint() domain.Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := domain.Checkpoint{
		AttemptID:    c.attemptID,
		Quiz:         c.quiz.Clone(),
		Answers:      c.answers.Snapshot().Entries(c.quiz.Questions),
		CurrentIndex: c.nav.Current(),
		State:        c.state,
		Revision:     c.revision,
		SavedAt:      c.clock.Now(),
	}
	if c.timer != nil {
		cp.Deadline = c.timer.Deadline()
	}
	if c.frozen != nil {
		frozen := *c.frozen
		frozen.Answers = append([]domain.AnswerEntry(nil), c.frozen.Answers...)
		cp.Frozen = &frozen
	}
	return cp
}

// Subscribe returns a channel receiving snapshots on every change and timer tick.
// Slow readers lose intermediate snapshots, never the latest one. The caller must
// invoke the returned cancel function.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Close stops the countdown and releases subscribers without touching the attempt
// state, leaving any checkpoint resumable.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Cancel()
	}
	for ch := range c.subscribers {
		delete(c.subscribers, ch)
		close(ch)
	}
}

func (c *Controller) loadLocked(attemptID string, quiz domain.Quiz, answers *AnswerStore) {
	c.attemptID = attemptID
	c.quiz = quiz
	c.answers = answers
	c.nav = NewNavigator(len(quiz.Questions))
	c.revision++
}

func (c *Controller) startTimerLocked(deadline time.Time) {
	timer := NewTimer(c.clock, c.tick)
	timer.OnTick(func(time.Duration) { c.broadcast() })
	timer.OnExpire(c.expire)
	c.timer = timer
	_ = timer.StartAt(deadline)
}

func (c *Controller) setStateLocked(state domain.AttemptState) {
	if c.state == state {
		return
	}
	c.logger.Info("attempt state changed",
		zap.String("attempt_id", c.attemptID),
		zap.String("from", string(c.state)),
		zap.String("to", string(state)),
	)
	c.state = state
	c.revision++
}

func (c *Controller) gateLocked() *Gate {
	progress := ComputeProgress(c.answers.AnsweredCount(), len(c.quiz.Questions))
	summary := GateSummary{
		Answered:   progress.Answered,
		Total:      progress.Total,
		Unanswered: progress.Unanswered(),
	}
	for _, q := range c.quiz.Questions {
		if _, ok := c.answers.Get(q.ID); !ok {
			summary.UnansweredIDs = append(summary.UnansweredIDs, q.ID)
		}
	}
	return &Gate{controller: c, summary: summary}
}

func (c *Controller) viewLocked() QuestionView {
	index := c.nav.Current()
	q := c.quiz.Questions[index]
	answer, _ := c.answers.Get(q.ID)
	q.Options = append([]domain.Option(nil), q.Options...)
	return QuestionView{Index: index, Total: len(c.quiz.Questions), Question: q, Answer: answer}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		AttemptID:    c.attemptID,
		QuizID:       c.quiz.ID,
		Title:        c.quiz.Title,
		State:        c.state,
		Progress:     ComputeProgress(c.answers.AnsweredCount(), len(c.quiz.Questions)),
		CurrentIndex: c.nav.Current(),
		SubmitTries:  c.tries,
		Revision:     c.revision,
	}
	if c.timer != nil {
		s.Remaining = c.timer.Remaining()
		s.RemainingSec = int(s.Remaining / time.Second)
	}
	if c.record != nil {
		rec := c.record.Clone()
		s.Record = &rec
	}
	if c.lastErr != nil && c.state == domain.StateError {
		s.Error = c.lastErr.Error()
	}
	return s
}

func (c *Controller) broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

// claim is the submission guard. The first caller freezes the answers and moves the
// attempt to Submitting; later callers get the run already claimed.
func (c *Controller) claim(reason domain.SubmissionReason, op string) (*submissionRun, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed {
		return c.run, false, nil
	}
	if c.state != domain.StateInProgress {
		return nil, false, &domain.ContractError{Op: op, State: c.state}
	}
	c.claimed = true
	c.frozen = &domain.FrozenSubmission{
		IdempotencyKey: c.newKey(),
		Reason:         reason,
		Answers:        c.answers.Snapshot().Entries(c.quiz.Questions),
		FrozenAt:       c.clock.Now(),
	}
	return c.beginRunLocked(), true, nil
}

func (c *Controller) beginRunLocked() *submissionRun {
	if c.timer != nil {
		c.timer.Cancel()
	}
	c.tries = 0
	c.lastErr = nil
	c.run = &submissionRun{done: make(chan struct{})}
	c.setStateLocked(domain.StateSubmitting)
	return c.run
}

func (c *Controller) submit(ctx context.Context, reason domain.SubmissionReason, op string) (domain.SubmissionRecord, error) {
	run, leader, err := c.claim(reason, op)
	if err != nil {
		return domain.SubmissionRecord{}, err
	}
	if !leader {
		c.logger.Debug("duplicate submission suppressed",
			zap.String("attempt_id", c.attemptID),
			zap.String("reason", string(reason)),
		)
		if run == nil {
			return domain.SubmissionRecord{}, &domain.ContractError{Op: op, State: c.State()}
		}
		return run.wait(ctx)
	}
	c.execute(ctx, run)
	return run.wait(ctx)
}

func (c *Controller) expire() {
	run, leader, err := c.claim(domain.ReasonExpiry, "expire")
	if err != nil || !leader {
		return
	}
	c.logger.Info("time expired, forcing submission", zap.String("attempt_id", c.attemptID))
	c.execute(context.Background(), run)
}

func (c *Controller) execute(ctx context.Context, run *submissionRun) {
	c.mu.Lock()
	attemptID := c.attemptID
	quizID := c.quiz.ID
	frozen := *c.frozen
	c.mu.Unlock()
	c.broadcast()

	record, err := c.pipeline.Submit(ctx, attemptID, quizID, frozen, func(try int, _ error) {
		c.mu.Lock()
		c.tries = try
		c.mu.Unlock()
		c.broadcast()
	})

	if err == nil && c.journal != nil {
		if jerr := c.journal.Record(context.WithoutCancel(ctx), record); jerr != nil {
			c.logger.Warn("journal write failed", zap.String("attempt_id", attemptID), zap.Error(jerr))
		}
	}

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Cancel()
	}
	if err == nil {
		rec := record.Clone()
		c.record = &rec
		c.setStateLocked(domain.StateCompleted)
	} else {
		c.lastErr = err
		c.setStateLocked(domain.StateError)
	}
	run.record = record
	run.err = err
	close(run.done)
	c.mu.Unlock()

	c.broadcast()
}
