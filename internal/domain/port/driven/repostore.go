// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
)

// ErrRepoNotFound indicates the requested repository does not exist.
var ErrRepoNotFound = errors.New("repository not found")

// RepoStore defines the driven port for tracked repository persistence.
// Every method is its own unit of work and commits before returning.
type RepoStore interface {
	// Ensure returns the repository with the given URL, creating it first if it
	// does not exist. Calling it twice for the same URL yields the same row.
	Ensure(ctx context.Context, url, shortName string) (model.Repository, error)
	// GetByURL returns nil, nil if no repository has the given URL.
	GetByURL(ctx context.Context, url string) (*model.Repository, error)
	// ListAll returns every tracked repository in storage order.
	ListAll(ctx context.Context) ([]model.Repository, error)
	// UpdateLatestTag stores the last observed release tag.
	// Returns ErrRepoNotFound if the repository does not exist.
	UpdateLatestTag(ctx context.Context, repoID int64, tag string) error
}
