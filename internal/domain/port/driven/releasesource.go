package driven

import (
	"context"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
)

// ReleaseSource looks up the latest release of a repository.
// It returns nil, nil when no release or tag information could be obtained;
// that is a valid outcome, not an error. Errors are reserved for context
// cancellation and deadlines.
type ReleaseSource interface {
	LatestRelease(ctx context.Context, owner, project string) (*model.Release, error)
}
