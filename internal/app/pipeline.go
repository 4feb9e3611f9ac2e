package app

import (
	"context"
	"errors"
	"time"

	"quiz-attempt/internal/domain"
	"quiz-attempt/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Submitter performs one submission network call.
type Submitter interface {
	SubmitAttempt(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResponse, error)
}

// DefaultMaxAttempts bounds submission tries per run.
const DefaultMaxAttempts = 3

// Pipeline turns a frozen submission into a Submission Record, retrying transient
// failures with backoff. Concurrent runs for the same attempt share one call sequence.
type Pipeline struct {
	api         Submitter
	maxAttempts int
	newBackOff  func() backoff.BackOff
	logger      *zap.Logger
	metrics     *metrics.Submissions
	now         func() time.Time
	sf          singleflight.Group
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithMaxAttempts sets the number of network tries per run.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithExponentialBackOff configures the delay between tries.
func WithExponentialBackOff(initial, max time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			b.MaxElapsedTime = 0
			return b
		}
	}
}

// WithBackOff replaces the backoff policy, mostly for tests.
func WithBackOff(fn func() backoff.BackOff) PipelineOption {
	return func(p *Pipeline) { p.newBackOff = fn }
}

func WithPipelineLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithPipelineMetrics(m *metrics.Submissions) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(api Submitter, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		api:         api,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	WithExponentialBackOff(500*time.Millisecond, 5*time.Second)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RetryFunc is told about every failed try that will be retried.
type RetryFunc func(try int, err error)

// Submit sends frozen for attemptID. The call is not cancellable once issued: ctx
// contributes values only. Rejections are returned as-is; other failures become a
// *domain.SubmissionError once the try budget is spent.
func (p *Pipeline) Submit(ctx context.Context, attemptID, quizID string, frozen domain.FrozenSubmission, onRetry RetryFunc) (domain.SubmissionRecord, error) {
	ctx = context.WithoutCancel(ctx)
	result, err, shared := p.sf.Do(attemptID, func() (interface{}, error) {
		return p.run(ctx, attemptID, quizID, frozen, onRetry)
	})
	if shared {
		p.logger.Debug("joined in-flight submission", zap.String("attempt_id", attemptID))
	}
	if err != nil {
		return domain.SubmissionRecord{}, err
	}
	return result.(domain.SubmissionRecord).Clone(), nil
}

func (p *Pipeline) run(ctx context.Context, attemptID, quizID string, frozen domain.FrozenSubmission, onRetry RetryFunc) (domain.SubmissionRecord, error) {
	started := p.now()
	req := domain.SubmitRequest{
		AttemptID:      attemptID,
		IdempotencyKey: frozen.IdempotencyKey,
		Reason:         frozen.Reason,
		Answers:        append([]domain.AnswerEntry(nil), frozen.Answers...),
	}

	tries := 0
	var resp domain.SubmitResponse
	op := func() error {
		tries++
		var err error
		resp, err = p.api.SubmitAttempt(ctx, req)
		if err == nil {
			p.metrics.Call("ok")
			return nil
		}
		var rejected *domain.RejectedError
		if errors.As(err, &rejected) {
			p.metrics.Call("rejected")
			return backoff.Permanent(err)
		}
		p.metrics.Call("transient")
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("submission failed, retrying",
			zap.String("attempt_id", attemptID),
			zap.Int("try", tries),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if onRetry != nil {
			onRetry(tries, err)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, notify)
	elapsed := p.now().Sub(started)
	if err != nil {
		var rejected *domain.RejectedError
		if errors.As(err, &rejected) {
			p.metrics.Finished(string(frozen.Reason), "rejected", elapsed)
			p.logger.Error("submission rejected", zap.String("attempt_id", attemptID), zap.Error(err))
			return domain.SubmissionRecord{}, err
		}
		p.metrics.Finished(string(frozen.Reason), "exhausted", elapsed)
		p.logger.Error("submission retries exhausted",
			zap.String("attempt_id", attemptID),
			zap.Int("tries", tries),
			zap.Error(err),
		)
		return domain.SubmissionRecord{}, &domain.SubmissionError{Attempts: tries, Err: err}
	}

	p.metrics.Finished(string(frozen.Reason), "completed", elapsed)
	submittedAt := resp.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = p.now()
	}
	record := domain.SubmissionRecord{
		AttemptID:   attemptID,
		QuizID:      quizID,
		Reason:      frozen.Reason,
		Answers:     req.Answers,
		Status:      resp.Status,
		Score:       resp.Score,
		TotalMarks:  resp.TotalMarks,
		SubmittedAt: submittedAt,
	}
	if record.Status == "" {
		record.Status = domain.GradingPending
	}
	return record, nil
}
