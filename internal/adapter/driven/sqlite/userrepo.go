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
var _ driven.UserStore = (*UserRepo)(nil)

// UserRepo is the SQLite implementation of the UserStore port interface.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetOrCreate returns the user with the given external id, inserting it on first
// sight. The insert is a no-op when the user already exists.
func (r *UserRepo) GetOrCreate(ctx context.Context, externalID int64) (model.User, error) {
	const insert = `INSERT INTO users (external_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING`
	const selectByExternalID = `SELECT id, external_id, created_at, updated_at FROM users WHERE external_id = ?`

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, fmt.Errorf("begin get-or-create user %d: %w", externalID, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	result, err := tx.ExecContext(ctx, insert, externalID, now, now)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user %d: %w", externalID, err)
	}

	user, err := scanUser(tx.QueryRowContext(ctx, selectByExternalID, externalID))
	if err != nil {
		return model.User{}, fmt.Errorf("read back user %d: %w", externalID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.User{}, fmt.Errorf("commit get-or-create user %d: %w", externalID, err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		slog.Info("new user", "user_id", user.ID, "external_id", externalID)
	}

	return *user, nil
}

// GetByExternalID returns nil, nil if no user has the given external id.
func (r *UserRepo) GetByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	const query = `SELECT id, external_id, created_at, updated_at FROM users WHERE external_id = ?`

	user, err := scanUser(r.db.Reader.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", externalID, err)
	}

	return user, nil
}

func scanUser(s scanner) (*model.User, error) {
	var user model.User
	var createdAt, updatedAt string

	if err := s.Scan(&user.ID, &user.ExternalID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	user.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	user.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &user, nil
}
