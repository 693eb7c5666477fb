package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"traffic-quiz-service/internal/domain"
)

// ProfileStore persists subscription state and the AI usage counter.
// Rows are created lazily on first access.
type ProfileStore struct {
	pool     *pgxpool.Pool
	adminIDs map[int64]bool
}

func NewProfileStore(pool *pgxpool.Pool, adminIDs []int64) *ProfileStore {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &ProfileStore{pool: pool, adminIDs: admins}
}

const profileColumns = `user_id, ai_queries_count, ai_limit_total, is_admin, tier, subscription_end, quota_period_end, trial_used`

func (s *ProfileStore) GetProfile(ctx context.Context, userID int64) (domain.Profile, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return domain.Profile{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID)
	p, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// IncrementAIQueries bumps the counter in a single statement so concurrent
// calls never lose an update.
func (s *ProfileStore) IncrementAIQueries(ctx context.Context, userID int64) (int, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return 0, err
	}
	var used int32
	err := s.pool.QueryRow(ctx,
		`UPDATE profiles SET ai_queries_count = ai_queries_count + 1 WHERE user_id=$1 RETURNING ai_queries_count`,
		userID).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("increment ai queries: %w", err)
	}
	return int(used), nil
}

func (s *ProfileStore) SetAIQuota(ctx context.Context, userID int64, used, total int) error {
	if err := s.ensure(ctx, userID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `UPDATE profiles SET ai_queries_count=$2, ai_limit_total=$3 WHERE user_id=$1`, userID, used, total)
	if err != nil {
		return fmt.Errorf("set ai quota: %w", err)
	}
	return nil
}

func (s *ProfileStore) UpdateSubscription(ctx context.Context, userID int64, tier domain.Tier, end, periodEnd time.Time, trialUsed bool) error {
	if err := s.ensure(ctx, userID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE profiles SET tier=$2, subscription_end=$3, quota_period_end=$4, trial_used=$5 WHERE user_id=$1`,
		userID, string(tier), nullTime(end), nullTime(periodEnd), trialUsed)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

func (s *ProfileStore) ListSubscribers(ctx context.Context) ([]domain.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE tier <> 'free' ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *ProfileStore) ensure(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, is_admin) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, s.adminIDs[userID])
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var (
		p                domain.Profile
		used, total      int32
		tier             string
		subEnd, cycleEnd *time.Time
	)
	if err := row.Scan(&p.UserID, &used, &total, &p.IsAdmin, &tier, &subEnd, &cycleEnd, &p.TrialUsed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, domain.ErrProfileNotFound
		}
		return domain.Profile{}, err
	}
	p.AIQueriesCount, p.AILimitTotal = int(used), int(total)
	p.Tier = domain.Tier(tier)
	if subEnd != nil {
		p.SubscriptionEnd = subEnd.UTC()
	}
	if cycleEnd != nil {
		p.QuotaPeriodEnd = cycleEnd.UTC()
	}
	return p, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
