package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"traffic-quiz-service/internal/domain"
)

// QuestionLoader loads question JSONB from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, topicID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions WHERE topic_id=$1 ORDER BY id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.ErrTopicNotFound
	}
	return out, nil
}

// UpsertQuestions writes imported questions in one transaction.
func (l *QuestionLoader) UpsertQuestions(ctx context.Context, questions []domain.Question) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range questions {
		q.TopicID = domain.TopicKey(q.TopicID)
		raw, err := json.Marshal(q)
		if err != nil {
			return 0, fmt.Errorf("marshal question %s: %w", q.ID, err)
		}
		batch.Queue(`INSERT INTO questions (id, topic_id, data) VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (id) DO UPDATE SET topic_id=EXCLUDED.topic_id, data=EXCLUDED.data, updated_at=now()`,
			q.ID, q.TopicID, string(raw))
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for range questions {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("upsert question: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("upsert questions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(questions), nil
}
