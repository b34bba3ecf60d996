package model

import (
	"errors"
	"regexp"
	"time"
)

// ErrInvalidRepoURL is returned when a URL is not a canonical GitHub repository URL.
var ErrInvalidRepoURL = errors.New("invalid github repository url")

// repoURLPattern matches https://github.com/{owner}/{project} and nothing else.
var repoURLPattern = regexp.MustCompile(`^https://github\.com/([\w-]+)/([\w-]+)$`)

// Repository is a GitHub project tracked for new release tags.
type Repository struct {
	ID        int64
	URL       string
	ShortName string // owner/project
	LatestTag *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredTag returns the last observed tag, or "" if the repository has never
// been polled successfully.
func (r Repository) StoredTag() string {
	if r.LatestTag == nil {
		return ""
	}
	return *r.LatestTag
}

// RepoRef is the owner/project pair extracted from a canonical repository URL.
type RepoRef struct {
	Owner   string
	Project string
}

// ShortName returns "owner/project".
func (r RepoRef) ShortName() string {
	return r.Owner + "/" + r.Project
}

// ParseRepoURL validates a canonical repository URL and extracts owner and project.
// The same pattern guards subscribe input and identifies repositories at poll time.
func ParseRepoURL(rawURL string) (RepoRef, error) {
	m := repoURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return RepoRef{}, ErrInvalidRepoURL
	}
	return RepoRef{Owner: m[1], Project: m[2]}, nil
}
