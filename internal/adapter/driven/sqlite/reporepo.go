package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

const repoColumns = `id, url, short_name, latest_tag, created_at, updated_at`

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Ensure inserts the repository if its URL is unknown and returns the stored row.
// Insert and read-back share one transaction on the writer.
func (r *RepoRepo) Ensure(ctx context.Context, url, shortName string) (model.Repository, error) {
	const insert = `INSERT INTO repositories (url, short_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`
	const selectByURL = `SELECT ` + repoColumns + ` FROM repositories WHERE url = ?`

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.Repository{}, fmt.Errorf("begin ensure repository %s: %w", url, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	result, err := tx.ExecContext(ctx, insert, url, shortName, now, now)
	if err != nil {
		return model.Repository{}, fmt.Errorf("insert repository %s: %w", url, err)
	}

	repo, err := scanRepository(tx.QueryRowContext(ctx, selectByURL, url))
	if err != nil {
		return model.Repository{}, fmt.Errorf("read back repository %s: %w", url, err)
	}

	if err := tx.Commit(); err != nil {
		return model.Repository{}, fmt.Errorf("commit ensure repository %s: %w", url, err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		slog.Info("repository created", "repo", url, "id", repo.ID)
	}

	return *repo, nil
}

// GetByURL retrieves a repository by its canonical URL. Returns nil, nil if
// the repository does not exist.
func (r *RepoRepo) GetByURL(ctx context.Context, url string) (*model.Repository, error) {
	const query = `SELECT ` + repoColumns + ` FROM repositories WHERE url = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", url, err)
	}

	return repo, nil
}

// ListAll returns all repositories in insertion order.
func (r *RepoRepo) ListAll(ctx context.Context) ([]model.Repository, error) {
	const query = `SELECT ` + repoColumns + ` FROM repositories ORDER BY id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	return collectRepositories(rows)
}

// UpdateLatestTag stores the last observed release tag and bumps updated_at.
func (r *RepoRepo) UpdateLatestTag(ctx context.Context, repoID int64, tag string) error {
	const query = `UPDATE repositories SET latest_tag = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, tag, nowUTC(), repoID)
	if err != nil {
		return fmt.Errorf("update latest tag for repository %d: %w", repoID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("update latest tag for repository %d: %w", repoID, driven.ErrRepoNotFound)
	}

	return nil
}

func collectRepositories(rows *sql.Rows) ([]model.Repository, error) {
	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var latestTag sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&repo.ID, &repo.URL, &repo.ShortName, &latestTag, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if latestTag.Valid {
		tag := latestTag.String
		repo.LatestTag = &tag
	}

	repo.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	repo.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &repo, nil
}
