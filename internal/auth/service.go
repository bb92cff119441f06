// Package auth owns the session lifecycle: registration, credential
// verification, access/refresh token issuance, email verification and
// logout/revocation. All state lives in the injected stores; the
// service itself holds no mutable state and is safe for concurrent use.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rythmix/auth-service/internal/mailer"
	"github.com/rythmix/auth-service/internal/model"
	"github.com/rythmix/auth-service/internal/repository"
	"github.com/rythmix/auth-service/internal/token"
)

const (
	minUsernameLen = 3
	minPasswordLen = 8
)

// UserStore is the subset of the user repository the service needs.
type UserStore interface {
	Create(ctx context.Context, u *model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	MarkEmailVerified(ctx context.Context, id uint64, at time.Time) error
}

// RefreshTokenStore persists refresh tokens keyed by selector.
type RefreshTokenStore interface {
	Store(ctx context.Context, t *model.RefreshToken) error
	GetBySelector(ctx context.Context, selector string) (model.RefreshToken, error)
	DeleteBySelector(ctx context.Context, selector string) error
	DeleteAllForUser(ctx context.Context, userID uint64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// VerificationTokenStore persists email verification tokens.
type VerificationTokenStore interface {
	Store(ctx context.Context, t *model.EmailVerificationToken) error
	GetBySelector(ctx context.Context, selector string) (model.EmailVerificationToken, error)
	DeleteBySelector(ctx context.Context, selector string) error
	DeleteAllForUser(ctx context.Context, userID uint64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Deps bundles the service's collaborators. Everything is injected so
// tests can substitute fakes; there is no ambient global state.
type Deps struct {
	Users           UserStore
	RefreshTokens   RefreshTokenStore
	Verifications   VerificationTokenStore
	Issuer          token.Issuer
	Hasher          PasswordHasher
	Mailer          mailer.Mailer
	FrontendURL     string        // base URL for the verification link
	RefreshTTL      time.Duration // refresh token lifetime (7 days)
	VerificationTTL time.Duration // verification token lifetime (24 hours)
	Now             func() time.Time
	Log             *zap.Logger
}

// Service is the session lifecycle manager.
type Service struct {
	users         UserStore
	refreshTokens RefreshTokenStore
	verifications VerificationTokenStore
	issuer        token.Issuer
	hasher        PasswordHasher
	mailer        mailer.Mailer
	frontendURL   string
	refreshTTL    time.Duration
	verifyTTL     time.Duration
	now           func() time.Time
	log           *zap.Logger
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		users:         d.Users,
		refreshTokens: d.RefreshTokens,
		verifications: d.Verifications,
		issuer:        d.Issuer,
		hasher:        d.Hasher,
		mailer:        d.Mailer,
		frontendURL:   strings.TrimRight(d.FrontendURL, "/"),
		refreshTTL:    d.RefreshTTL,
		verifyTTL:     d.VerificationTTL,
		now:           d.Now,
		log:           d.Log,
	}
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Register validates the input, creates the user with a hashed password
// and triggers the verification email. New users start with role "user"
// and an unverified email. The returned User carries the stored record;
// the handler decides which fields leave the service (never the hash).
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)

	var verr ValidationError
	if _, err := mail.ParseAddress(in.Email); err != nil || in.Email == "" {
		verr.add("email", "must be a well-formed email address")
	}
	if len(in.Username) < minUsernameLen {
		verr.add("username", "must be at least 3 characters")
	}
	if len(in.Password) < minPasswordLen {
		verr.add("password", "must be at least 8 characters")
	}
	if len(verr.Fields) > 0 {
		return model.User{}, &verr
	}

	// Pre-checks give friendly errors; the storage constraints remain
	// the safety net if two registrations race.
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return model.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}
	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return model.User{}, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         model.RoleUser,
	}
	id, err := s.users.Create(ctx, &u)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return model.User{}, ErrEmailTaken
		case errors.Is(err, repository.ErrUsernameExists):
			return model.User{}, ErrUsernameTaken
		}
		return model.User{}, err
	}

	created, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	// Registration already succeeded; a mail failure is logged, not
	// surfaced. The user can request a resend.
	if err := s.SendVerificationEmail(ctx, created); err != nil {
		s.log.Error("verification email after registration failed",
			zap.Uint64("user_id", created.ID), zap.Error(err))
	}
	return created, nil
}

// LoginResult is what a successful login hands back to the transport
// layer: the user, a signed access token and the opaque refresh token
// string with its expiry.
type LoginResult struct {
	User       model.User
	Access     token.Access
	Refresh    string
	RefreshExp time.Time
}

// Login verifies credentials and mints a fresh access/refresh pair.
// Unknown email and wrong password return the same error so callers
// cannot enumerate accounts. Unverified users are rejected after the
// password check, so the verification hint is only given to someone
// holding valid credentials.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !u.Verified() {
		return LoginResult{}, ErrEmailNotVerified
	}

	access, err := s.issuer.Issue(u.ID, u.Role)
	if err != nil {
		return LoginResult{}, err
	}
	split, err := token.NewSplit()
	if err != nil {
		return LoginResult{}, err
	}
	exp := s.now().Add(s.refreshTTL)
	rec := model.RefreshToken{
		UserID:       u.ID,
		Selector:     split.Selector,
		VerifierHash: token.HashVerifier(split.Verifier),
		ExpiresAt:    exp,
	}
	if err := s.refreshTokens.Store(ctx, &rec); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: u, Access: access, Refresh: split.String(), RefreshExp: exp}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated: it stays valid until its own
// expiry, so renewing an access token never forces a re-login. An
// expired token is purged as part of the failing call, which means a
// second attempt with the same string reports it as invalid rather
// than expired.
func (s *Service) Refresh(ctx context.Context, raw string) (token.Access, error) {
	split, err := token.ParseSplit(raw)
	if err != nil {
		return token.Access{}, ErrInvalidRefreshToken
	}
	rec, err := s.refreshTokens.GetBySelector(ctx, split.Selector)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return token.Access{}, ErrInvalidRefreshToken
		}
		return token.Access{}, err
	}
	if rec.Expired(s.now()) {
		if err := s.refreshTokens.DeleteBySelector(ctx, rec.Selector); err != nil {
			s.log.Warn("purging expired refresh token failed",
				zap.String("selector", rec.Selector), zap.Error(err))
		}
		return token.Access{}, ErrRefreshTokenExpired
	}
	if !token.MatchVerifier(split.Verifier, rec.VerifierHash) {
		return token.Access{}, ErrInvalidRefreshToken
	}

	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Owner was (soft-)deleted since the token was minted.
			return token.Access{}, ErrInvalidRefreshToken
		}
		return token.Access{}, err
	}
	return s.issuer.Issue(u.ID, u.Role)
}

// Logout revokes the presented access token and, when a refresh token
// string is supplied and well-formed, deletes its stored record.
// Missing records are ignored so logout stays idempotent. Other
// sessions and devices are untouched.
func (s *Service) Logout(ctx context.Context, accessID string, accessExp time.Time, rawRefresh string) error {
	if err := s.issuer.Revoke(ctx, accessID, accessExp); err != nil {
		return err
	}
	if rawRefresh == "" {
		return nil
	}
	split, err := token.ParseSplit(rawRefresh)
	if err != nil {
		return nil // malformed refresh token has nothing to revoke
	}
	return s.refreshTokens.DeleteBySelector(ctx, split.Selector)
}

// SendVerificationEmail issues a fresh verification token for the user
// and dispatches the email. Any prior tokens are deleted first so at
// most one live token exists per user.
func (s *Service) SendVerificationEmail(ctx context.Context, u model.User) error {
	if err := s.verifications.DeleteAllForUser(ctx, u.ID); err != nil {
		return err
	}
	split, err := token.NewSplit()
	if err != nil {
		return err
	}
	rec := model.EmailVerificationToken{
		UserID:       u.ID,
		Selector:     split.Selector,
		VerifierHash: token.HashVerifier(split.Verifier),
		ExpiresAt:    s.now().Add(s.verifyTTL),
	}
	if err := s.verifications.Store(ctx, &rec); err != nil {
		return err
	}
	link := s.frontendURL + "/verify-email?token=" + url.QueryEscape(split.String())
	return s.mailer.SendVerification(ctx, u.Email, u.Username, link)
}

// ResendVerificationEmail re-issues the verification email for an
// unverified account. Unknown emails and already-verified accounts are
// silent no-ops: the caller observes the same success either way, so
// the endpoint leaks nothing about account existence.
func (s *Service) ResendVerificationEmail(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if u.Verified() {
		return nil
	}
	return s.SendVerificationEmail(ctx, u)
}

// VerifyEmail consumes a verification token and marks the owner's email
// as verified. The token is single-use: the row is deleted on success,
// so presenting the same string again fails as invalid. Expired tokens
// are purged on presentation.
func (s *Service) VerifyEmail(ctx context.Context, raw string) (model.User, error) {
	split, err := token.ParseSplit(raw)
	if err != nil {
		return model.User{}, ErrInvalidVerificationToken
	}
	rec, err := s.verifications.GetBySelector(ctx, split.Selector)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrInvalidVerificationToken
		}
		return model.User{}, err
	}
	now := s.now()
	if rec.Expired(now) {
		if err := s.verifications.DeleteBySelector(ctx, rec.Selector); err != nil {
			s.log.Warn("purging expired verification token failed",
				zap.String("selector", rec.Selector), zap.Error(err))
		}
		return model.User{}, ErrVerificationTokenExpired
	}
	if !token.MatchVerifier(split.Verifier, rec.VerifierHash) {
		return model.User{}, ErrInvalidVerificationToken
	}

	if err := s.users.MarkEmailVerified(ctx, rec.UserID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrInvalidVerificationToken
		}
		return model.User{}, err
	}
	if err := s.verifications.DeleteBySelector(ctx, rec.Selector); err != nil {
		s.log.Warn("deleting consumed verification token failed",
			zap.String("selector", rec.Selector), zap.Error(err))
	}
	return s.users.GetByID(ctx, rec.UserID)
}

// Profile loads the current user's record for the /me endpoint.
func (s *Service) Profile(ctx context.Context, userID uint64) (model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// RevokeAllRefreshTokens deletes every refresh token for a user
// ("log out everywhere").
func (s *Service) RevokeAllRefreshTokens(ctx context.Context, userID uint64) error {
	return s.refreshTokens.DeleteAllForUser(ctx, userID)
}

// CleanExpiredTokens sweeps expired refresh and verification token rows
// and returns how many were removed. It is invoked by an external
// scheduler, not self-scheduled, and is safe to run concurrently with
// normal traffic.
func (s *Service) CleanExpiredTokens(ctx context.Context) (int64, error) {
	now := s.now()
	nr, err := s.refreshTokens.DeleteExpired(ctx, now)
	if err != nil {
		return nr, err
	}
	nv, err := s.verifications.DeleteExpired(ctx, now)
	if err != nil {
		return nr + nv, err
	}
	return nr + nv, nil
}
