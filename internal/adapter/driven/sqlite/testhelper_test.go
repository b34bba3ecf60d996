package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared,
// and the test name keeps parallel tests isolated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	open := func(maxOpen int) *sql.DB {
		pool, err := sql.Open("sqlite", dsn)
		require.NoError(t, err)
		pool.SetMaxOpenConns(maxOpen)
		require.NoError(t, pool.PingContext(context.Background()))
		return pool
	}

	db := &DB{Writer: open(1), Reader: open(4)}
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db))

	return db
}

// seedSubscription creates a user and repository and subscribes one to the other.
func seedSubscription(t *testing.T, db *DB, externalID int64, repoURL, shortName string) (int64, int64) {
	t.Helper()
	ctx := context.Background()

	user, err := NewUserRepo(db).GetOrCreate(ctx, externalID)
	require.NoError(t, err)

	repo, err := NewRepoRepo(db).Ensure(ctx, repoURL, shortName)
	require.NoError(t, err)

	_, err = NewSubscriptionRepo(db).Subscribe(ctx, user.ID, repo.ID)
	require.NoError(t, err)

	return user.ID, repo.ID
}
