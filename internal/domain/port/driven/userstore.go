package driven

import (
	"context"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
)

// UserStore defines the driven port for notification recipients.
type UserStore interface {
	// GetOrCreate returns the user with the given Telegram id, creating it lazily.
	GetOrCreate(ctx context.Context, externalID int64) (model.User, error)
	// GetByExternalID returns nil, nil if the user does not exist.
	GetByExternalID(ctx context.Context, externalID int64) (*model.User, error)
}
