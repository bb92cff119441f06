package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rythmix/auth-service/internal/model"
)

// RefreshTokenRepo persists refresh tokens. Rows are keyed by the
// non-secret selector; the verifier is stored only as a SHA-256 hash.
// Rows are deleted outright on logout or expiry, never flagged.
type RefreshTokenRepo struct{ DB *sql.DB }

func NewRefreshTokenRepo(db *sql.DB) *RefreshTokenRepo { return &RefreshTokenRepo{DB: db} }

// Store inserts a refresh token row.
func (r *RefreshTokenRepo) Store(ctx context.Context, t *model.RefreshToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, selector, verifier_hash, expires_at) VALUES (?,?,?,?)",
		t.UserID, t.Selector, t.VerifierHash, t.ExpiresAt)
	return err
}

// GetBySelector fetches a token row by its selector. Expiry is not
// checked here; the service decides what an expired row means.
func (r *RefreshTokenRepo) GetBySelector(ctx context.Context, selector string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,selector,verifier_hash,expires_at,created_at FROM refresh_tokens WHERE selector=? LIMIT 1",
		selector).Scan(&t.ID, &t.UserID, &t.Selector, &t.VerifierHash, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, ErrNotFound
	}
	return t, err
}

// DeleteBySelector removes a token row. Deleting a missing row is not
// an error, which keeps logout idempotent.
func (r *RefreshTokenRepo) DeleteBySelector(ctx context.Context, selector string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE selector=?", selector)
	return err
}

// DeleteAllForUser removes every refresh token belonging to a user
// ("log out everywhere").
func (r *RefreshTokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id=?", userID)
	return err
}

// DeleteExpired bulk-deletes rows whose expiry has passed and returns
// how many were removed.
func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < ?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
