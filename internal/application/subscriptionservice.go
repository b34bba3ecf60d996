package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// SubscribeResult lists what happened to each URL passed to Subscribe.
type SubscribeResult struct {
	Subscribed        []string
	AlreadySubscribed []string
	Invalid           []string
}

// UnsubscribeResult lists what happened to each URL passed to Unsubscribe.
type UnsubscribeResult struct {
	Unsubscribed  []string
	NotSubscribed []string
	Invalid       []string
}

// RepoStatus is a tracked repository with its current subscriber count.
type RepoStatus struct {
	Repository  model.Repository
	Subscribers int
}

// SubscriptionService manages users and their repository subscriptions.
// It is shared by the chat front-end and the HTTP API.
type SubscriptionService struct {
	users driven.UserStore
	repos driven.RepoStore
	subs  driven.SubscriptionStore
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(users driven.UserStore, repos driven.RepoStore, subs driven.SubscriptionStore) *SubscriptionService {
	return &SubscriptionService{
		users: users,
		repos: repos,
		subs:  subs,
	}
}

// EnsureUser returns the user with the given Telegram id, creating it if needed.
func (s *SubscriptionService) EnsureUser(ctx context.Context, externalID int64) (model.User, error) {
	user, err := s.users.GetOrCreate(ctx, externalID)
	if err != nil {
		return model.User{}, fmt.Errorf("ensure user %d: %w", externalID, err)
	}
	return user, nil
}

// Subscribe subscribes the user to every valid repository URL. Repositories
// are created on first use. Invalid URLs are logged and skipped.
func (s *SubscriptionService) Subscribe(ctx context.Context, externalID int64, urls []string) (SubscribeResult, error) {
	var result SubscribeResult

	user, err := s.EnsureUser(ctx, externalID)
	if err != nil {
		return result, err
	}

	for _, url := range urls {
		ref, err := model.ParseRepoURL(url)
		if err != nil {
			slog.Warn("skipping invalid repository url", "external_id", externalID, "url", url)
			result.Invalid = append(result.Invalid, url)
			continue
		}

		repo, err := s.repos.Ensure(ctx, url, ref.ShortName())
		if err != nil {
			return result, fmt.Errorf("ensure repository %s: %w", url, err)
		}

		created, err := s.subs.Subscribe(ctx, user.ID, repo.ID)
		if err != nil {
			return result, fmt.Errorf("subscribe to %s: %w", url, err)
		}

		if created {
			slog.Info("subscribed", "external_id", externalID, "repo", url)
			result.Subscribed = append(result.Subscribed, url)
		} else {
			result.AlreadySubscribed = append(result.AlreadySubscribed, url)
		}
	}

	return result, nil
}

// Unsubscribe removes the user's subscription to each URL. Unknown repositories
// and missing subscriptions are not errors.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, externalID int64, urls []string) (UnsubscribeResult, error) {
	var result UnsubscribeResult

	user, err := s.EnsureUser(ctx, externalID)
	if err != nil {
		return result, err
	}

	for _, url := range urls {
		if _, err := model.ParseRepoURL(url); err != nil {
			slog.Warn("skipping invalid repository url", "external_id", externalID, "url", url)
			result.Invalid = append(result.Invalid, url)
			continue
		}

		repo, err := s.repos.GetByURL(ctx, url)
		if err != nil {
			return result, fmt.Errorf("look up repository %s: %w", url, err)
		}
		if repo == nil {
			result.NotSubscribed = append(result.NotSubscribed, url)
			continue
		}

		removed, err := s.subs.Unsubscribe(ctx, user.ID, repo.ID)
		if err != nil {
			return result, fmt.Errorf("unsubscribe from %s: %w", url, err)
		}

		if removed {
			slog.Info("unsubscribed", "external_id", externalID, "repo", url)
			result.Unsubscribed = append(result.Unsubscribed, url)
		} else {
			result.NotSubscribed = append(result.NotSubscribed, url)
		}
	}

	return result, nil
}

// RemoveAll drops every subscription of the user and returns how many were removed.
func (s *SubscriptionService) RemoveAll(ctx context.Context, externalID int64) (int64, error) {
	user, err := s.EnsureUser(ctx, externalID)
	if err != nil {
		return 0, err
	}

	n, err := s.subs.RemoveAll(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("remove subscriptions of %d: %w", externalID, err)
	}

	slog.Info("removed all subscriptions", "external_id", externalID, "count", n)
	return n, nil
}

// ListSubscriptions returns the repositories the user is subscribed to.
// A user that has never interacted gets an empty list rather than being created.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, externalID int64) ([]model.Repository, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("look up user %d: %w", externalID, err)
	}
	if user == nil {
		return []model.Repository{}, nil
	}

	repos, err := s.subs.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of %d: %w", externalID, err)
	}
	return repos, nil
}

// ListRepositories returns every tracked repository with its subscriber count.
func (s *SubscriptionService) ListRepositories(ctx context.Context) ([]RepoStatus, error) {
	repos, err := s.repos.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	counts, err := s.subs.CountByRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("count subscribers: %w", err)
	}

	out := make([]RepoStatus, 0, len(repos))
	for _, r := range repos {
		out = append(out, RepoStatus{Repository: r, Subscribers: counts[r.ID]})
	}
	return out, nil
}
