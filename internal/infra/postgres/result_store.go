package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"traffic-quiz-service/internal/domain"
)

// ResultStore keeps result metadata in the test_results table. The
// question/answer payload is never stored server-side.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) ListByUser(ctx context.Context, userID int64) ([]domain.TestResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, topic_id, total_questions, correct_answers, answered, percentage, time_spent, created_at
		FROM test_results
		WHERE user_id=$1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.TestResult
	for rows.Next() {
		var (
			r          domain.ResultSummary
			percentage *int32
			total      int32
			correct    int32
			answered   int32
			spent      int32
			created    time.Time
		)
		if err := rows.Scan(&r.ID, &r.TopicID, &total, &correct, &answered, &percentage, &spent, &created); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Total, r.Correct, r.Answered, r.TimeSpent = int(total), int(correct), int(answered), int(spent)
		var stored *int
		if percentage != nil {
			p := int(*percentage)
			stored = &p
		}
		r.Percentage = domain.ResolvePercentage(stored, r.Correct, r.Total)
		r.DateTime = created.UTC()
		out = append(out, domain.TestResult{ResultSummary: r})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}

func (s *ResultStore) Insert(ctx context.Context, userID int64, result domain.TestResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO test_results (id, user_id, topic_id, total_questions, correct_answers, answered, percentage, time_spent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, id) DO NOTHING`,
		result.ID, userID, domain.TopicKey(result.TopicID), result.Total, result.Correct,
		result.Answered, result.Percentage, result.TimeSpent, result.DateTime)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}
