package driven

import (
	"context"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
)

// SubscriptionStore defines the driven port for the user/repository join.
// Subscribe is idempotent; Unsubscribe of a missing pair is a no-op.
type SubscriptionStore interface {
	// Subscribe reports whether a new subscription row was created.
	Subscribe(ctx context.Context, userID, repoID int64) (bool, error)
	// Unsubscribe reports whether a subscription row was removed.
	Unsubscribe(ctx context.Context, userID, repoID int64) (bool, error)
	// RemoveAll deletes every subscription of the user and returns how many were removed.
	RemoveAll(ctx context.Context, userID int64) (int64, error)
	// ListSubscribers returns the users subscribed to a repository, in subscription order.
	ListSubscribers(ctx context.Context, repoID int64) ([]model.User, error)
	// ListByUser returns the repositories a user is subscribed to, in subscription order.
	ListByUser(ctx context.Context, userID int64) ([]model.Repository, error)
	// CountByRepository maps repository id to its subscriber count. Repositories
	// without subscribers are absent from the map.
	CountByRepository(ctx context.Context) (map[int64]int, error)
}
