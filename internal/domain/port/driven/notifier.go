package driven

import (
	"context"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
)

// Notifier delivers a chat message to a user identified by their messaging-platform id.
type Notifier interface {
	SendMessage(ctx context.Context, externalID int64, text string, mode model.ParseMode) error
}
