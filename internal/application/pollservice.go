// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// releaseMessageFormat is the notification sent to subscribers, in Telegram HTML.
const releaseMessageFormat = "<b>Release tag</b>: %s"

// FormatReleaseMessage builds the subscriber notification for a release URL.
func FormatReleaseMessage(url string) string {
	return fmt.Sprintf(releaseMessageFormat, url)
}

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	url  string
	done chan error
}

// CycleStats summarizes one full pass over the tracked repositories.
type CycleStats struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Repositories int
	Changed      int
	Failed       int
}

// PollService runs the release monitor: it walks every tracked repository,
// detects new release tags and notifies subscribers.
type PollService struct {
	source         driven.ReleaseSource
	repoStore      driven.RepoStore
	subStore       driven.SubscriptionStore
	notifier       driven.Notifier
	surveyInterval time.Duration
	stepInterval   time.Duration
	refreshCh      chan refreshRequest

	mu        sync.RWMutex
	lastCycle *CycleStats
}

// NewPollService creates a new PollService with all required dependencies.
// surveyInterval is the rest between full cycles; stepInterval is the pause
// after every repository, which keeps the loop under the GitHub rate limit.
func NewPollService(
	source driven.ReleaseSource,
	repoStore driven.RepoStore,
	subStore driven.SubscriptionStore,
	notifier driven.Notifier,
	surveyInterval time.Duration,
	stepInterval time.Duration,
) *PollService {
	return &PollService{
		source:         source,
		repoStore:      repoStore,
		subStore:       subStore,
		notifier:       notifier,
		surveyInterval: surveyInterval,
		stepInterval:   stepInterval,
		refreshCh:      make(chan refreshRequest),
	}
}

// Start runs cycles forever: a cycle, then the survey interval, then the next
// cycle. A failed or panicking cycle is logged and followed by the same sleep.
// Start returns only when ctx is canceled.
func (s *PollService) Start(ctx context.Context) {
	slog.Info("release monitor started",
		"survey_interval", s.surveyInterval,
		"step_interval", s.stepInterval,
	)

	for {
		err := s.runCycle(ctx)
		if classifyError(ctx, err) == classShutdown {
			break
		}
		logFailure(ctx, slog.Default(), "release check cycle failed", err)

		if err := s.wait(ctx, s.surveyInterval); err != nil {
			break
		}
	}

	slog.Info("release monitor stopped")
}

// RefreshRepo asks the running loop to check one repository right away instead
// of waiting for its turn. It blocks until the check completes or ctx is done.
// The request is served while the loop is sleeping.
func (s *PollService) RefreshRepo(ctx context.Context, url string) error {
	done := make(chan error, 1)
	req := refreshRequest{url: url, done: done}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastCycle returns the statistics of the most recently finished cycle.
func (s *PollService) LastCycle() (CycleStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastCycle == nil {
		return CycleStats{}, false
	}
	return *s.lastCycle, true
}

// runCycle is RunOnce with panics turned into errors.
func (s *PollService) runCycle(ctx context.Context) (err error) {
	defer recoverAsError(&err)
	return s.RunOnce(ctx)
}

// RunOnce performs one full cycle over a snapshot of all tracked repositories.
// Repositories are processed one at a time in storage order; a failure in one
// never stops the others. Every repository is followed by the step interval.
func (s *PollService) RunOnce(ctx context.Context) error {
	stats := CycleStats{ID: uuid.NewString(), StartedAt: time.Now()}
	logger := slog.With("cycle_id", stats.ID)
	logger.Info("release check cycle started")

	repos, err := s.repoStore.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}
	stats.Repositories = len(repos)

	for _, repo := range repos {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		changed, err := s.checkRepoSafely(ctx, logger, repo)
		if classifyError(ctx, err) == classShutdown {
			return err
		}
		if err != nil {
			logFailure(ctx, logger, "repository check failed", err, "repo", repo.URL)
			stats.Failed++
		}
		if changed {
			stats.Changed++
		}

		if err := s.wait(ctx, s.stepInterval); err != nil {
			return err
		}
	}

	stats.FinishedAt = time.Now()
	s.mu.Lock()
	s.lastCycle = &stats
	s.mu.Unlock()

	logger.Info("release check cycle complete",
		"repos", stats.Repositories,
		"changed", stats.Changed,
		"errors", stats.Failed,
		"duration", stats.FinishedAt.Sub(stats.StartedAt).Round(time.Millisecond),
	)

	return nil
}

// checkRepoSafely is checkRepo with panics turned into errors.
func (s *PollService) checkRepoSafely(ctx context.Context, logger *slog.Logger, repo model.Repository) (changed bool, err error) {
	defer recoverAsError(&err)
	return s.checkRepo(ctx, logger, repo)
}

// checkRepo fetches the latest release of one repository and, when its tag
// differs from the stored one, stores it and notifies every subscriber.
// A first observation (no stored tag) counts as a change.
func (s *PollService) checkRepo(ctx context.Context, logger *slog.Logger, repo model.Repository) (bool, error) {
	ref, err := model.ParseRepoURL(repo.URL)
	if err != nil {
		return false, fmt.Errorf("identify repository %q: %w", repo.URL, err)
	}

	release, err := s.source.LatestRelease(ctx, ref.Owner, ref.Project)
	if err != nil {
		return false, fmt.Errorf("fetch latest release of %s: %w", ref.ShortName(), err)
	}

	if release == nil {
		logger.Warn("no release data", "repo", repo.URL)
		return false, nil
	}

	if repo.LatestTag != nil && *repo.LatestTag == release.Tag {
		logger.Info("tag exists", "repo", repo.URL, "tag", release.Tag)
		return false, nil
	}

	if err := s.repoStore.UpdateLatestTag(ctx, repo.ID, release.Tag); err != nil {
		return false, err
	}
	logger.Info("new tag", "repo", repo.URL, "previous_tag", repo.StoredTag(), "tag", release.Tag)

	return true, s.notifySubscribers(ctx, logger, repo, release)
}

// notifySubscribers sends the release message to every current subscriber.
// A failed send does not stop the remaining ones; all failures are returned joined.
func (s *PollService) notifySubscribers(ctx context.Context, logger *slog.Logger, repo model.Repository, release *model.Release) error {
	users, err := s.subStore.ListSubscribers(ctx, repo.ID)
	if err != nil {
		return fmt.Errorf("list subscribers of %s: %w", repo.URL, err)
	}

	text := FormatReleaseMessage(release.URL)

	var errs []error
	for _, user := range users {
		if err := s.notifier.SendMessage(ctx, user.ExternalID, text, model.ParseModeHTML); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("release notification failed", "repo", repo.URL, "external_id", user.ExternalID, "error", err)
			errs = append(errs, fmt.Errorf("notify %d: %w", user.ExternalID, err))
			continue
		}
		logger.Info("release notification sent", "repo", repo.URL, "external_id", user.ExternalID)
	}

	return errors.Join(errs...)
}

// wait sleeps for d while serving manual refresh requests. It returns ctx.Err()
// if the context ends first.
func (s *PollService) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case req := <-s.refreshCh:
			req.done <- s.handleRefresh(ctx, req)
		}
	}
}

// handleRefresh checks the single repository named by a refresh request.
func (s *PollService) handleRefresh(ctx context.Context, req refreshRequest) error {
	repo, err := s.repoStore.GetByURL(ctx, req.url)
	if err != nil {
		return err
	}
	if repo == nil {
		return fmt.Errorf("refresh %s: %w", req.url, driven.ErrRepoNotFound)
	}

	logger := slog.With("refresh", true)
	logger.Info("manual refresh requested", "repo", req.url)

	_, err = s.checkRepoSafely(ctx, logger, *repo)
	return err
}
