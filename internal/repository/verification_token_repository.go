package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rythmix/auth-service/internal/model"
)

// VerificationTokenRepo persists email verification tokens. The shape
// mirrors RefreshTokenRepo; the invariant that at most one live token
// exists per user is enforced by the service calling DeleteAllForUser
// before Store.
type VerificationTokenRepo struct{ DB *sql.DB }

func NewVerificationTokenRepo(db *sql.DB) *VerificationTokenRepo {
	return &VerificationTokenRepo{DB: db}
}

// Store inserts a verification token row.
func (r *VerificationTokenRepo) Store(ctx context.Context, t *model.EmailVerificationToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO email_verification_tokens (user_id, selector, verifier_hash, expires_at) VALUES (?,?,?,?)",
		t.UserID, t.Selector, t.VerifierHash, t.ExpiresAt)
	return err
}

// GetBySelector fetches a token row by its selector.
func (r *VerificationTokenRepo) GetBySelector(ctx context.Context, selector string) (model.EmailVerificationToken, error) {
	var t model.EmailVerificationToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,selector,verifier_hash,expires_at,created_at FROM email_verification_tokens WHERE selector=? LIMIT 1",
		selector).Scan(&t.ID, &t.UserID, &t.Selector, &t.VerifierHash, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EmailVerificationToken{}, ErrNotFound
	}
	return t, err
}

// DeleteBySelector removes a token row; missing rows are not an error.
func (r *VerificationTokenRepo) DeleteBySelector(ctx context.Context, selector string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM email_verification_tokens WHERE selector=?", selector)
	return err
}

// DeleteAllForUser removes every verification token for a user, so a
// newly issued token supersedes all prior ones.
func (r *VerificationTokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM email_verification_tokens WHERE user_id=?", userID)
	return err
}

// DeleteExpired bulk-deletes rows whose expiry has passed and returns
// how many were removed.
func (r *VerificationTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM email_verification_tokens WHERE expires_at < ?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
