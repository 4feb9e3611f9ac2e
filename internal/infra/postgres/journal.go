package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-attempt/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Journal appends Submission Records to the submissions table, one row per attempt.
type Journal struct {
	pool *pgxpool.Pool
}

func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Record inserts rec; a second record for the same attempt is ignored.
func (j *Journal) Record(ctx context.Context, rec domain.SubmissionRecord) error {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = j.pool.Exec(ctx, `
		INSERT INTO submissions (attempt_id, quiz_id, reason, status, score, total_marks, answers, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (attempt_id) DO NOTHING`,
		rec.AttemptID, rec.QuizID, string(rec.Reason), string(rec.Status), rec.Score, rec.TotalMarks,
		string(answers), rec.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// List returns the newest records first, at most limit rows (all when limit <= 0).
func (j *Journal) List(ctx context.Context, limit int) ([]domain.SubmissionRecord, error) {
	query := `
		SELECT attempt_id, quiz_id, reason, status, score, total_marks, answers, submitted_at
		FROM submissions ORDER BY submitted_at DESC, attempt_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []domain.SubmissionRecord
	for rows.Next() {
		var (
			rec            domain.SubmissionRecord
			reason, status string
			raw            []byte
		)
		if err := rows.Scan(&rec.AttemptID, &rec.QuizID, &reason, &status, &rec.Score, &rec.TotalMarks, &raw, &rec.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		rec.Reason = domain.SubmissionReason(reason)
		rec.Status = domain.GradingStatus(status)
		if err := json.Unmarshal(raw, &rec.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
