package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SubscriptionStore = (*SubscriptionRepo)(nil)

// SubscriptionRepo is the SQLite implementation of the SubscriptionStore port interface.
type SubscriptionRepo struct {
	db *DB
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given DB.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// Subscribe inserts the (user, repository) pair unless it already exists.
func (r *SubscriptionRepo) Subscribe(ctx context.Context, userID, repoID int64) (bool, error) {
	const query = `INSERT INTO subscriptions (user_id, repository_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, repository_id) DO NOTHING`

	now := nowUTC()
	result, err := r.db.Writer.ExecContext(ctx, query, userID, repoID, now, now)
	if err != nil {
		return false, fmt.Errorf("subscribe user %d to repository %d: %w", userID, repoID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// Unsubscribe deletes the (user, repository) pair if present.
func (r *SubscriptionRepo) Unsubscribe(ctx context.Context, userID, repoID int64) (bool, error) {
	const query = `DELETE FROM subscriptions WHERE user_id = ? AND repository_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, userID, repoID)
	if err != nil {
		return false, fmt.Errorf("unsubscribe user %d from repository %d: %w", userID, repoID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// RemoveAll deletes every subscription owned by the user.
func (r *SubscriptionRepo) RemoveAll(ctx context.Context, userID int64) (int64, error) {
	const query = `DELETE FROM subscriptions WHERE user_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("remove subscriptions of user %d: %w", userID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return rows, nil
}

// ListSubscribers returns the users subscribed to the repository.
func (r *SubscriptionRepo) ListSubscribers(ctx context.Context, repoID int64) ([]model.User, error) {
	const query = `SELECT u.id, u.external_id, u.created_at, u.updated_at
		FROM users u
		JOIN subscriptions s ON s.user_id = u.id
		WHERE s.repository_id = ?
		ORDER BY s.id`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers of repository %d: %w", repoID, err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}

	return users, nil
}

// ListByUser returns the repositories the user is subscribed to.
func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID int64) ([]model.Repository, error) {
	const query = `SELECT r.id, r.url, r.short_name, r.latest_tag, r.created_at, r.updated_at
		FROM repositories r
		JOIN subscriptions s ON s.repository_id = r.id
		WHERE s.user_id = ?
		ORDER BY s.id`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of user %d: %w", userID, err)
	}
	defer rows.Close()

	return collectRepositories(rows)
}

// CountByRepository returns subscriber counts keyed by repository id.
func (r *SubscriptionRepo) CountByRepository(ctx context.Context) (map[int64]int, error) {
	const query = `SELECT repository_id, COUNT(*) FROM subscriptions GROUP BY repository_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count subscribers: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var repoID int64
		var n int
		if err := rows.Scan(&repoID, &n); err != nil {
			return nil, fmt.Errorf("scan subscriber count: %w", err)
		}
		counts[repoID] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber counts: %w", err)
	}

	return counts, nil
}
