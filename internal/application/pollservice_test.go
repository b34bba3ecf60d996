package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/releasewatch/internal/application"
	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// --- Mock implementations ---

type fakeSource struct {
	mu       sync.Mutex
	releases map[string]*model.Release
	errs     map[string]error
	panics   map[string]bool
	calls    []string
}

func (f *fakeSource) LatestRelease(_ context.Context, owner, project string) (*model.Release, error) {
	key := owner + "/" + project

	f.mu.Lock()
	f.calls = append(f.calls, key)
	rel, err, boom := f.releases[key], f.errs[key], f.panics[key]
	f.mu.Unlock()

	if boom {
		panic("source exploded for " + key)
	}
	return rel, err
}

func (f *fakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeRepoStore struct {
	mu       sync.Mutex
	repos    []model.Repository
	listErrs []error
	// listPanics makes that many ListAll calls panic before any listErrs apply.
	listPanics int
	updates    []string
}

func (f *fakeRepoStore) Ensure(_ context.Context, url, shortName string) (model.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.URL == url {
			return r, nil
		}
	}
	r := model.Repository{ID: int64(len(f.repos) + 1), URL: url, ShortName: shortName}
	f.repos = append(f.repos, r)
	return r, nil
}

func (f *fakeRepoStore) GetByURL(_ context.Context, url string) (*model.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.URL == url {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listPanics > 0 {
		f.listPanics--
		panic("cycle blew up")
	}
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return append([]model.Repository(nil), f.repos...), nil
}

func (f *fakeRepoStore) UpdateLatestTag(_ context.Context, repoID int64, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.repos {
		if f.repos[i].ID == repoID {
			f.repos[i].LatestTag = &tag
			f.updates = append(f.updates, tag)
			return nil
		}
	}
	return driven.ErrRepoNotFound
}

func (f *fakeRepoStore) Tag(repoID int64) *string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.ID == repoID {
			return r.LatestTag
		}
	}
	return nil
}

func (f *fakeRepoStore) Updates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updates...)
}

type fakeSubStore struct {
	mu          sync.Mutex
	subscribers map[int64][]model.User
}

func (f *fakeSubStore) Subscribe(_ context.Context, _, _ int64) (bool, error)   { return true, nil }
func (f *fakeSubStore) Unsubscribe(_ context.Context, _, _ int64) (bool, error) { return true, nil }
func (f *fakeSubStore) RemoveAll(_ context.Context, _ int64) (int64, error)     { return 0, nil }
func (f *fakeSubStore) ListByUser(_ context.Context, _ int64) ([]model.Repository, error) {
	return nil, nil
}
func (f *fakeSubStore) CountByRepository(_ context.Context) (map[int64]int, error) {
	return map[int64]int{}, nil
}

func (f *fakeSubStore) ListSubscribers(_ context.Context, repoID int64) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.User(nil), f.subscribers[repoID]...), nil
}

type sentMessage struct {
	ExternalID int64
	Text       string
	Mode       model.ParseMode
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[int64]error
}

func (f *fakeNotifier) SendMessage(_ context.Context, externalID int64, text string, mode model.ParseMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[externalID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{ExternalID: externalID, Text: text, Mode: mode})
	return nil
}

func (f *fakeNotifier) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// --- Helpers ---

func strPtr(s string) *string { return &s }

func repo(id int64, owner, project string, tag *string) model.Repository {
	return model.Repository{
		ID:        id,
		URL:       "https://github.com/" + owner + "/" + project,
		ShortName: owner + "/" + project,
		LatestTag: tag,
	}
}

func release(owner, project, tag string) *model.Release {
	return &model.Release{
		Tag: tag,
		URL: "https://github.com/" + owner + "/" + project + "/releases/tag/" + tag,
	}
}

type pollFixture struct {
	source   *fakeSource
	repos    *fakeRepoStore
	subs     *fakeSubStore
	notifier *fakeNotifier
	svc      *application.PollService
}

func newPollFixture(survey, step time.Duration, repos ...model.Repository) *pollFixture {
	f := &pollFixture{
		source: &fakeSource{
			releases: map[string]*model.Release{},
			errs:     map[string]error{},
			panics:   map[string]bool{},
		},
		repos:    &fakeRepoStore{repos: repos},
		subs:     &fakeSubStore{subscribers: map[int64][]model.User{}},
		notifier: &fakeNotifier{fail: map[int64]error{}},
	}
	f.svc = application.NewPollService(f.source, f.repos, f.subs, f.notifier, survey, step)
	return f
}

// startLoop runs Start in the background and returns a stop function that
// cancels it and waits for it to return.
func startLoop(t *testing.T, svc *application.PollService) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("poll loop did not stop after cancellation")
		}
	}
}

// --- Tests ---

func TestFormatReleaseMessage(t *testing.T) {
	assert.Equal(t,
		"<b>Release tag</b>: https://github.com/a/b/releases/tag/v1",
		application.FormatReleaseMessage("https://github.com/a/b/releases/tag/v1"),
	)
}

func TestRunOnce_FirstObservationNotifiesSubscribers(t *testing.T) {
	f := newPollFixture(time.Hour, 0, repo(1, "octo", "cat", nil))
	f.source.releases["octo/cat"] = release("octo", "cat", "v1.0.0")
	f.subs.subscribers[1] = []model.User{{ID: 1, ExternalID: 100}, {ID: 2, ExternalID: 200}}

	require.NoError(t, f.svc.RunOnce(context.Background()))

	require.NotNil(t, f.repos.Tag(1))
	assert.Equal(t, "v1.0.0", *f.repos.Tag(1))

	want := "<b>Release tag</b>: https://github.com/octo/cat/releases/tag/v1.0.0"
	assert.Equal(t, []sentMessage{
		{ExternalID: 100, Text: want, Mode: model.ParseModeHTML},
		{ExternalID: 200, Text: want, Mode: model.ParseModeHTML},
	}, f.notifier.Sent())
}

func TestRunOnce_UnchangedTagIsSilent(t *testing.T) {
	f := newPollFixture(time.Hour, 0, repo(1, "octo", "cat", strPtr("v1.0.0")))
	f.source.releases["octo/cat"] = release("octo", "cat", "v1.0.0")
	f.subs.subscribers[1] = []model.User{{ID: 1, ExternalID: 100}}

	require.NoError(t, f.svc.RunOnce(context.Background()))

	assert.Empty(t, f.repos.Updates())
	assert.Empty(t, f.notifier.Sent())
}

func TestRunOnce_ChangedTagUpdatesOnceAndNotifies(t *testing.T) {
	f := newPollFixture(time.Hour, 0, repo(1, "octo", "cat", strPtr("v1.0.0")))
	f.source.releases["octo/cat"] = release("octo", "cat", "v1.1.0")
	f.subs.subscribers[1] = []model.User{{ID: 1, ExternalID: 100}}

	require.NoError(t, f.svc.RunOnce(context.Background()))
	// Second cycle sees the stored tag and stays silent.
	require.NoError(t, f.svc.RunOnce(context.Background()))

	assert.Equal(t, []string{"v1.1.0"}, f.repos.Updates())
	require.Len(t, f.notifier.Sent(), 1)
	assert.Contains(t, f.notifier.Sent()[0].Text, "v1.1.0")
}

func TestRunOnce_NilReleaseKeepsStoredTag(t *testing.T) {
	f := newPollFixture(time.Hour, 0, repo(1, "octo", "cat", strPtr("v1.0.0")))
	f.subs.subscribers[1] = []model.User{{ID: 1, ExternalID: 100}}

	require.NoError(t, f.svc.RunOnce(context.Background()))

	assert.Equal(t, "v1.0.0", *f.repos.Tag(1))
	assert.Empty(t, f.notifier.Sent())
}

func TestRunOnce_NoSubscribersStillTracksTag(t *testing.T) {
	f := newPollFixture(time.Hour, 0, repo(1, "octo", "cat", nil))
	f.source.releases["octo/cat"] = release("octo", "cat", "v2")

	require.NoError(t, f.svc.RunOnce(context.Background()))

	assert.Equal(t, "v2", *f.repos.Tag(1))
	assert.Empty(t, f.notifier.Sent())
}

func TestRunOnce_FailingRepositoryDoesNotStopOthers(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *pollFixture)
	}{
		{
			name:  "source error",
			setup: func(f *pollFixture) { f.source.errs["broken/one"] = errors.New("boom") },
		},
		{
			name:  "source panic",
			setup: func(f *pollFixture) { f.source.panics["broken/one"] = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPollFixture(time.Hour, 0,
				repo(1, "broken", "one", nil),
				repo(2, "octo", "cat", nil),
			)
			f.source.releases["octo/cat"] = release("octo", "cat", "v1")
			f.subs.subscribers[2] = []model.User{{ID: 1, ExternalID: 100}}
			tt.setup(f)

			require.NoError(t, f.svc.RunOnce(context.Background()))

			assert.Equal(t, []string{"broken/one", "octo/cat"}, f.source.Calls())
			assert.Nil(t, f.repos.Tag(1))
			assert.Equal(t, "v1", *f.repos.Tag(2))
			assert.Len(t, f.notifier.Sent(), 1)

			stats, ok := f.svc.LastCycle()
			require.True(t, ok)
			assert.Equal(t, 2, stats.Repositories)
			assert.Equal(t, 1, stats.Changed)
			assert.Equal(t, 1, stats.Failed)
		})
	}
}

func TestRunOnce_StepIntervalFollowsFailedRepository(t *testing.T) {
	const step = 50 * time.Millisecond

	f := newPollFixture(time.Hour, step,
		repo(1, "broken", "one", nil),
		repo(2, "broken", "two", nil),
	)
	f.source.errs["broken/one"] = errors.New("boom")
	f.source.errs["broken/two"] = errors.New("boom")

	start := time.Now()
	require.NoError(t, f.svc.RunOnce(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 2*step)
	stats, ok := f.svc.LastCycle()
	require.True(t, ok)
	assert.Equal(t, 2, stats.Failed)
}

func TestRunOnce_InvalidStoredURLIsSkipped(t *testing.T) {
	f := newPollFixture(time.Hour, 0,
		model.Repository{ID: 1, URL: "https://gitlab.com/a/b"},
		repo(2, "octo", "cat", nil),
	)
	f.source.releases["octo/cat"] = release("octo", "cat", "v1")

	require.NoError(t, f.svc.RunOnce(context.Background()))

	assert.Equal(t, []string{"octo/cat"}, f.source.Calls())
	stats, ok := f.svc.LastCycle()
	require.True(t, ok)
	assert.Equal(t, 1, stats.Failed)
}

func TestRunOnce_FailedSendDoesNotStopOtherSubscribers(t *testing.T) {
	f := newPollFixture(time.Hour, 0, repo(1, "octo", "cat", nil))
	f.source.releases["octo/cat"] = release("octo", "cat", "v1")
	f.subs.subscribers[1] = []model.User{
		{ID: 1, ExternalID: 100},
		{ID: 2, ExternalID: 200},
		{ID: 3, ExternalID: 300},
	}
	f.notifier.fail[200] = errors.New("bot was blocked by the user")

	require.NoError(t, f.svc.RunOnce(context.Background()))

	sent := f.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, int64(100), sent[0].ExternalID)
	assert.Equal(t, int64(300), sent[1].ExternalID)
	// The tag is stored even though one delivery failed.
	assert.Equal(t, "v1", *f.repos.Tag(1))
}

func TestRunOnce_ListError(t *testing.T) {
	f := newPollFixture(time.Hour, 0)
	f.repos.listErrs = []error{errors.New("database is locked")}

	err := f.svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list repositories")

	_, ok := f.svc.LastCycle()
	assert.False(t, ok)
}

func TestRunOnce_CancelledDuringStepReturnsContextError(t *testing.T) {
	f := newPollFixture(time.Hour, time.Hour,
		repo(1, "octo", "cat", nil),
		repo(2, "octo", "dog", nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.RunOnce(ctx) }()

	require.Eventually(t, func() bool { return len(f.source.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunOnce did not return after cancellation")
	}
	assert.Equal(t, []string{"octo/cat"}, f.source.Calls())
}

func TestStart_ContinuesAfterFailedCycle(t *testing.T) {
	f := newPollFixture(10*time.Millisecond, 0, repo(1, "octo", "cat", nil))
	f.repos.listErrs = []error{errors.New("transient")}
	f.source.releases["octo/cat"] = release("octo", "cat", "v1")
	f.subs.subscribers[1] = []model.User{{ID: 1, ExternalID: 100}}

	stop := startLoop(t, f.svc)
	defer stop()

	require.Eventually(t, func() bool { return len(f.notifier.Sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestStart_ContinuesAfterPanickingCycle(t *testing.T) {
	f := newPollFixture(10*time.Millisecond, 0, repo(1, "octo", "cat", nil))
	f.repos.listPanics = 1
	f.source.releases["octo/cat"] = release("octo", "cat", "v1")
	f.subs.subscribers[1] = []model.User{{ID: 1, ExternalID: 100}}

	stop := startLoop(t, f.svc)
	defer stop()

	require.Eventually(t, func() bool { return len(f.notifier.Sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"octo/cat"}, f.source.Calls())
}

func TestStart_PicksUpNewRepositoriesNextCycle(t *testing.T) {
	f := newPollFixture(10*time.Millisecond, 0)
	f.source.releases["octo/cat"] = release("octo", "cat", "v1")

	stop := startLoop(t, f.svc)
	defer stop()

	_, err := f.repos.Ensure(context.Background(), "https://github.com/octo/cat", "octo/cat")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tag := f.repos.Tag(1)
		return tag != nil && *tag == "v1"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStart_StopsOnCancel(t *testing.T) {
	f := newPollFixture(time.Hour, time.Hour, repo(1, "octo", "cat", nil))

	stop := startLoop(t, f.svc)
	require.Eventually(t, func() bool { return len(f.source.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	stop()
}

func TestRefreshRepo(t *testing.T) {
	f := newPollFixture(time.Hour, 0, repo(1, "octo", "cat", strPtr("v1")))
	f.source.releases["octo/cat"] = release("octo", "cat", "v1")
	f.subs.subscribers[1] = []model.User{{ID: 1, ExternalID: 100}}

	stop := startLoop(t, f.svc)
	defer stop()

	require.Eventually(t, func() bool {
		_, ok := f.svc.LastCycle()
		return ok
	}, time.Second, 5*time.Millisecond)

	f.source.mu.Lock()
	f.source.releases["octo/cat"] = release("octo", "cat", "v2")
	f.source.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, f.svc.RefreshRepo(ctx, "https://github.com/octo/cat"))
	assert.Equal(t, "v2", *f.repos.Tag(1))
	assert.Len(t, f.notifier.Sent(), 1)

	err := f.svc.RefreshRepo(ctx, "https://github.com/octo/unknown")
	assert.ErrorIs(t, err, driven.ErrRepoNotFound)
}

func TestRefreshRepo_ContextDoneWithoutLoop(t *testing.T) {
	f := newPollFixture(time.Hour, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.svc.RefreshRepo(ctx, "https://github.com/octo/cat")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
