package app

import (
	"context"
	"time"

	"quiz-attempt/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CheckpointStore persists attempt checkpoints (in-memory, Redis, etc).
type CheckpointStore interface {
	Save(ctx context.Context, cp domain.Checkpoint) error
	Load(ctx context.Context, attemptID string) (domain.Checkpoint, error)
	Delete(ctx context.Context, attemptID string) error
}

// Checkpointer mirrors a controller into a CheckpointStore so answered work survives
// a crash. Writes happen only when the revision moves and at most once per interval.
type Checkpointer struct {
	store   CheckpointStore
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewCheckpointer builds a checkpointer; interval <= 0 disables throttling.
func NewCheckpointer(store CheckpointStore, interval time.Duration, logger *zap.Logger) *Checkpointer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkpointer{
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Run follows c until ctx ends, the controller is closed or the attempt completes.
// A completed attempt has its checkpoint removed.
func (k *Checkpointer) Run(ctx context.Context, c *Controller) error {
	updates, cancel := c.Subscribe()
	defer cancel()

	var saved uint64
	for {
		select {
		case <-ctx.Done():
			k.flush(c, saved)
			return nil
		case snap, ok := <-updates:
			if !ok {
				k.flush(c, saved)
				return nil
			}
			if snap.State == domain.StateCompleted {
				k.remove(snap.AttemptID)
				return nil
			}
			if snap.State == domain.StateNotStarted || snap.Revision == saved {
				continue
			}
			if err := k.limiter.Wait(ctx); err != nil {
				k.flush(c, saved)
				return nil
			}
			cp := c.Checkpoint()
			if cp.State == domain.StateCompleted {
				k.remove(cp.AttemptID)
				return nil
			}
			if err := k.store.Save(ctx, cp); err != nil {
				k.logger.Warn("checkpoint save failed", zap.String("attempt_id", cp.AttemptID), zap.Error(err))
				continue
			}
			saved = cp.Revision
		}
	}
}

func (k *Checkpointer) flush(c *Controller, saved uint64) {
	cp := c.Checkpoint()
	if cp.AttemptID == "" || cp.Revision == saved {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cp.State == domain.StateCompleted {
		k.remove(cp.AttemptID)
		return
	}
	if err := k.store.Save(ctx, cp); err != nil {
		k.logger.Warn("final checkpoint save failed", zap.String("attempt_id", cp.AttemptID), zap.Error(err))
	}
}

func (k *Checkpointer) remove(attemptID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := k.store.Delete(ctx, attemptID); err != nil {
		k.logger.Warn("checkpoint delete failed", zap.String("attempt_id", attemptID), zap.Error(err))
	}
}
