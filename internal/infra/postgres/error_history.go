package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"traffic-quiz-service/internal/domain"
)

// ErrorHistory keeps per-question miss counters in question_errors.
type ErrorHistory struct {
	pool *pgxpool.Pool
}

func NewErrorHistory(pool *pgxpool.Pool) *ErrorHistory {
	return &ErrorHistory{pool: pool}
}

func (h *ErrorHistory) ListMissed(ctx context.Context, userID int64, topicID string) ([]string, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT question_id FROM question_errors
		WHERE user_id=$1 AND topic_id=$2
		ORDER BY last_missed_at DESC, question_id`, userID, domain.TopicKey(topicID))
	if err != nil {
		return nil, fmt.Errorf("list missed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan missed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (h *ErrorHistory) RecordMisses(ctx context.Context, userID int64, topicID string, questionIDs []string) error {
	if len(questionIDs) == 0 {
		return nil
	}
	topic := domain.TopicKey(topicID)
	batch := &pgx.Batch{}
	for _, id := range questionIDs {
		batch.Queue(`
			INSERT INTO question_errors (user_id, topic_id, question_id) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, topic_id, question_id)
			DO UPDATE SET misses = question_errors.misses + 1, last_missed_at = now()`,
			userID, topic, id)
	}
	br := h.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range questionIDs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("record misses: %w", err)
		}
	}
	return nil
}
