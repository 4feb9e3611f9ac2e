package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-attempt/internal/domain"

	"github.com/redis/go-redis/v9"
)

// saveScript writes the checkpoint only when its revision is not older than the stored one.
// HSET quiz:attempt:{attemptID}:checkpoint data {json} rev {revision}
var saveScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'rev') or '-1')
if current > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'rev', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// CheckpointStore keeps attempt checkpoints in Redis so a session survives the process.
type CheckpointStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCheckpointStore(client *redis.Client, ttl time.Duration) *CheckpointStore {
	return &CheckpointStore{client: client, ttl: ttl}
}

func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	err = saveScript.Run(ctx, s.client, []string{s.key(cp.AttemptID)},
		string(data), cp.Revision, s.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Load(ctx context.Context, attemptID string) (domain.Checkpoint, error) {
	raw, err := s.client.HGet(ctx, s.key(attemptID), "data").Result()
	if errors.Is(err, redis.Nil) {
		return domain.Checkpoint{}, domain.ErrCheckpointNotFound
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

func (s *CheckpointStore) Delete(ctx context.Context, attemptID string) error {
	if err := s.client.Del(ctx, s.key(attemptID)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) key(attemptID string) string {
	return "quiz:attempt:" + attemptID + ":checkpoint"
}
