package auth

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rythmix/auth-service/internal/model"
	"github.com/rythmix/auth-service/internal/repository"
	"github.com/rythmix/auth-service/internal/token"
)

// --- fakes ---

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeUserStore struct {
	users  map[uint64]model.User
	nextID uint64
	clock  *fakeClock
}

func newFakeUserStore(clock *fakeClock) *fakeUserStore {
	return &fakeUserStore{users: map[uint64]model.User{}, nextID: 1, clock: clock}
}

func (f *fakeUserStore) Create(ctx context.Context, u *model.User) (uint64, error) {
	for _, ex := range f.users {
		if ex.DeletedAt == nil && ex.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
		if ex.DeletedAt == nil && ex.Username == u.Username {
			return 0, repository.ErrUsernameExists
		}
	}
	id := f.nextID
	f.nextID++
	rec := *u
	rec.ID = id
	rec.CreatedAt = f.clock.now()
	rec.UpdatedAt = f.clock.now()
	f.users[id] = rec
	return id, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	for _, u := range f.users {
		if u.DeletedAt == nil && u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUserStore) GetByUsername(ctx context.Context, username string) (model.User, error) {
	for _, u := range f.users {
		if u.DeletedAt == nil && u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, ok := f.users[id]
	if !ok || u.DeletedAt != nil {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) MarkEmailVerified(ctx context.Context, id uint64, at time.Time) error {
	u, ok := f.users[id]
	if !ok || u.DeletedAt != nil {
		return repository.ErrNotFound
	}
	u.EmailVerifiedAt = &at
	f.users[id] = u
	return nil
}

type fakeRefreshStore struct {
	rows map[string]model.RefreshToken
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{rows: map[string]model.RefreshToken{}}
}

func (f *fakeRefreshStore) Store(ctx context.Context, t *model.RefreshToken) error {
	f.rows[t.Selector] = *t
	return nil
}

func (f *fakeRefreshStore) GetBySelector(ctx context.Context, selector string) (model.RefreshToken, error) {
	r, ok := f.rows[selector]
	if !ok {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeRefreshStore) DeleteBySelector(ctx context.Context, selector string) error {
	delete(f.rows, selector)
	return nil
}

func (f *fakeRefreshStore) DeleteAllForUser(ctx context.Context, userID uint64) error {
	for sel, r := range f.rows {
		if r.UserID == userID {
			delete(f.rows, sel)
		}
	}
	return nil
}

func (f *fakeRefreshStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for sel, r := range f.rows {
		if now.After(r.ExpiresAt) {
			delete(f.rows, sel)
			n++
		}
	}
	return n, nil
}

type fakeVerificationStore struct {
	rows map[string]model.EmailVerificationToken
}

func newFakeVerificationStore() *fakeVerificationStore {
	return &fakeVerificationStore{rows: map[string]model.EmailVerificationToken{}}
}

func (f *fakeVerificationStore) Store(ctx context.Context, t *model.EmailVerificationToken) error {
	f.rows[t.Selector] = *t
	return nil
}

func (f *fakeVerificationStore) GetBySelector(ctx context.Context, selector string) (model.EmailVerificationToken, error) {
	r, ok := f.rows[selector]
	if !ok {
		return model.EmailVerificationToken{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeVerificationStore) DeleteBySelector(ctx context.Context, selector string) error {
	delete(f.rows, selector)
	return nil
}

func (f *fakeVerificationStore) DeleteAllForUser(ctx context.Context, userID uint64) error {
	for sel, r := range f.rows {
		if r.UserID == userID {
			delete(f.rows, sel)
		}
	}
	return nil
}

func (f *fakeVerificationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for sel, r := range f.rows {
		if now.After(r.ExpiresAt) {
			delete(f.rows, sel)
			n++
		}
	}
	return n, nil
}

type fakeIssuer struct {
	clock   *fakeClock
	n       int
	revoked map[string]bool
}

func newFakeIssuer(clock *fakeClock) *fakeIssuer {
	return &fakeIssuer{clock: clock, revoked: map[string]bool{}}
}

func (f *fakeIssuer) Issue(userID uint64, role string) (token.Access, error) {
	f.n++
	return token.Access{
		Token: fmt.Sprintf("access-%d-u%d-%s", f.n, userID, role),
		ID:    fmt.Sprintf("jti-%d", f.n),
		Exp:   f.clock.now().Add(15 * time.Minute),
	}, nil
}

func (f *fakeIssuer) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	f.revoked[tokenID] = true
	return nil
}

func (f *fakeIssuer) Revoked(ctx context.Context, tokenID string) (bool, error) {
	return f.revoked[tokenID], nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }
func (fakeHasher) Verify(hash, plain string) bool    { return hash == "hashed:"+plain }

type sentMail struct {
	to, username, verifyURL string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendVerification(ctx context.Context, toEmail, username, verifyURL string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: toEmail, username: username, verifyURL: verifyURL})
	return nil
}

// --- harness ---

type harness struct {
	svc    *Service
	clock  *fakeClock
	users  *fakeUserStore
	ref    *fakeRefreshStore
	ver    *fakeVerificationStore
	issuer *fakeIssuer
	mail   *fakeMailer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:  clock,
		users:  newFakeUserStore(clock),
		ref:    newFakeRefreshStore(),
		ver:    newFakeVerificationStore(),
		issuer: newFakeIssuer(clock),
		mail:   &fakeMailer{},
	}
	h.svc = NewService(Deps{
		Users:           h.users,
		RefreshTokens:   h.ref,
		Verifications:   h.ver,
		Issuer:          h.issuer,
		Hasher:          fakeHasher{},
		Mailer:          h.mail,
		FrontendURL:     "https://app.rythmix.io",
		RefreshTTL:      7 * 24 * time.Hour,
		VerificationTTL: 24 * time.Hour,
		Now:             clock.now,
	})
	return h
}

func (h *harness) register(t *testing.T) model.User {
	t.Helper()
	u, err := h.svc.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "Passw0rd!",
	})
	require.NoError(t, err)
	return u
}

// lastMailToken extracts the selector.verifier string from the most
// recently sent verification link.
func (h *harness) lastMailToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, h.mail.sent)
	link, err := url.Parse(h.mail.sent[len(h.mail.sent)-1].verifyURL)
	require.NoError(t, err)
	tok := link.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func (h *harness) verify(t *testing.T) model.User {
	t.Helper()
	u, err := h.svc.VerifyEmail(context.Background(), h.lastMailToken(t))
	require.NoError(t, err)
	return u
}

// --- registration ---

func TestRegisterCreatesUnverifiedUser(t *testing.T) {
	h := newHarness(t)
	u := h.register(t)

	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.Nil(t, u.EmailVerifiedAt, "new users start unverified")
	assert.Equal(t, "hashed:Passw0rd!", u.PasswordHash, "plaintext never reaches the store")
}

func TestRegisterNormalizesEmail(t *testing.T) {
	h := newHarness(t)
	u, err := h.svc.Register(context.Background(), RegisterInput{
		Email:    "  Alice@Example.COM ",
		Username: "alice",
		Password: "Passw0rd!",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
}

func TestRegisterSendsVerificationEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	require.Len(t, h.mail.sent, 1)
	m := h.mail.sent[0]
	assert.Equal(t, "alice@example.com", m.to)
	assert.Equal(t, "alice", m.username)
	assert.Contains(t, m.verifyURL, "https://app.rythmix.io/verify-email?token=")

	// The emailed token must correspond to a stored row: selector on
	// file, verifier stored only as a hash.
	tok := h.lastMailToken(t)
	split, err := token.ParseSplit(tok)
	require.NoError(t, err)
	rec, ok := h.ver.rows[split.Selector]
	require.True(t, ok)
	assert.Equal(t, token.HashVerifier(split.Verifier), rec.VerifierHash)
	assert.NotContains(t, rec.VerifierHash, split.Verifier)
	assert.Equal(t, h.clock.now().Add(24*time.Hour), rec.ExpiresAt)
}

func TestRegisterMailFailureDoesNotFailRegistration(t *testing.T) {
	h := newHarness(t)
	h.mail.err = fmt.Errorf("smtp down")

	u, err := h.svc.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "Passw0rd!",
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Register(context.Background(), RegisterInput{
		Email:    "not-an-email",
		Username: "ab",
		Password: "short",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["username"])
	assert.True(t, fields["password"])
}

func TestRegisterConflicts(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	_, err := h.svc.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Username: "other",
		Password: "Passw0rd!",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = h.svc.Register(context.Background(), RegisterInput{
		Email:    "other@example.com",
		Username: "alice",
		Password: "Passw0rd!",
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

// --- login ---

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.verify(t)

	_, errUnknown := h.svc.Login(context.Background(), "nobody@example.com", "Passw0rd!")
	_, errWrongPw := h.svc.Login(context.Background(), "alice@example.com", "wrong-password")

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
}

func TestLoginRejectsUnverifiedEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	_, err := h.svc.Login(context.Background(), "alice@example.com", "Passw0rd!")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.verify(t)

	res, err := h.svc.Login(context.Background(), "alice@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Access.Token)
	assert.Equal(t, h.clock.now().Add(7*24*time.Hour), res.RefreshExp)

	split, err := token.ParseSplit(res.Refresh)
	require.NoError(t, err)
	rec, ok := h.ref.rows[split.Selector]
	require.True(t, ok)
	assert.Equal(t, res.User.ID, rec.UserID)
	assert.Equal(t, token.HashVerifier(split.Verifier), rec.VerifierHash)
}

// --- refresh ---

func loginAlice(t *testing.T, h *harness) LoginResult {
	t.Helper()
	h.register(t)
	h.verify(t)
	res, err := h.svc.Login(context.Background(), "alice@example.com", "Passw0rd!")
	require.NoError(t, err)
	return res
}

func TestRefreshDoesNotRotate(t *testing.T) {
	h := newHarness(t)
	res := loginAlice(t, h)

	a1, err := h.svc.Refresh(context.Background(), res.Refresh)
	require.NoError(t, err)
	a2, err := h.svc.Refresh(context.Background(), res.Refresh)
	require.NoError(t, err)

	assert.NotEqual(t, a1.Token, a2.Token, "each refresh mints a fresh access token")
	assert.Len(t, h.ref.rows, 1, "the refresh token row is untouched")
}

func TestRefreshRejectsMalformedAndUnknownTokens(t *testing.T) {
	h := newHarness(t)
	loginAlice(t, h)

	_, err := h.svc.Refresh(context.Background(), "no-dot-here")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = h.svc.Refresh(context.Background(), "unknownselector.someverifier")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshRejectsTamperedVerifier(t *testing.T) {
	h := newHarness(t)
	res := loginAlice(t, h)

	split, err := token.ParseSplit(res.Refresh)
	require.NoError(t, err)
	_, err = h.svc.Refresh(context.Background(), split.Selector+".forgedverifier")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Len(t, h.ref.rows, 1, "a bad verifier does not destroy the token")
}

func TestExpiredRefreshTokenIsPurgedOnUse(t *testing.T) {
	h := newHarness(t)
	res := loginAlice(t, h)

	h.clock.advance(7*24*time.Hour + time.Minute)

	_, err := h.svc.Refresh(context.Background(), res.Refresh)
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)
	assert.Empty(t, h.ref.rows, "expired token deleted at point of detection")

	// Second attempt: the row is gone, so the failure downgrades to
	// plain invalid.
	_, err = h.svc.Refresh(context.Background(), res.Refresh)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

// --- logout ---

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	h := newHarness(t)
	res := loginAlice(t, h)

	err := h.svc.Logout(context.Background(), res.Access.ID, res.Access.Exp, res.Refresh)
	require.NoError(t, err)
	assert.True(t, h.issuer.revoked[res.Access.ID])
	assert.Empty(t, h.ref.rows)

	_, err = h.svc.Refresh(context.Background(), res.Refresh)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	res := loginAlice(t, h)

	require.NoError(t, h.svc.Logout(context.Background(), res.Access.ID, res.Access.Exp, res.Refresh))
	// Same call again: the refresh row is already gone.
	require.NoError(t, h.svc.Logout(context.Background(), res.Access.ID, res.Access.Exp, res.Refresh))
	// A malformed refresh string is ignored rather than rejected.
	require.NoError(t, h.svc.Logout(context.Background(), res.Access.ID, res.Access.Exp, "garbage"))
}

func TestLogoutLeavesOtherSessionsAlone(t *testing.T) {
	h := newHarness(t)
	res1 := loginAlice(t, h)
	res2, err := h.svc.Login(context.Background(), "alice@example.com", "Passw0rd!")
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(context.Background(), res1.Access.ID, res1.Access.Exp, res1.Refresh))

	_, err = h.svc.Refresh(context.Background(), res2.Refresh)
	assert.NoError(t, err, "the second session's refresh token still works")
}

// --- verification ---

func TestResendVerificationIsSilentForUnknownAndVerified(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.verify(t)
	sentBefore := len(h.mail.sent)

	require.NoError(t, h.svc.ResendVerificationEmail(context.Background(), "nobody@example.com"))
	require.NoError(t, h.svc.ResendVerificationEmail(context.Background(), "alice@example.com"))

	assert.Len(t, h.mail.sent, sentBefore, "neither case sends mail or errors")
}

func TestResendVerificationReissuesForUnverified(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	require.NoError(t, h.svc.ResendVerificationEmail(context.Background(), "alice@example.com"))
	assert.Len(t, h.mail.sent, 2)
}

func TestNewVerificationTokenSupersedesOld(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	first := h.lastMailToken(t)

	require.NoError(t, h.svc.ResendVerificationEmail(context.Background(), "alice@example.com"))
	second := h.lastMailToken(t)
	require.NotEqual(t, first, second)

	// The first token is dead even though its own expiry has not passed.
	_, err := h.svc.VerifyEmail(context.Background(), first)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)

	u, err := h.svc.VerifyEmail(context.Background(), second)
	require.NoError(t, err)
	assert.NotNil(t, u.EmailVerifiedAt)
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	tok := h.lastMailToken(t)

	u, err := h.svc.VerifyEmail(context.Background(), tok)
	require.NoError(t, err)
	require.NotNil(t, u.EmailVerifiedAt)
	assert.Equal(t, h.clock.now(), *u.EmailVerifiedAt)
	assert.Empty(t, h.ver.rows, "consumed token is deleted")

	_, err = h.svc.VerifyEmail(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
}

func TestVerifyEmailExpiredTokenPurged(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	tok := h.lastMailToken(t)

	h.clock.advance(24*time.Hour + time.Minute)

	_, err := h.svc.VerifyEmail(context.Background(), tok)
	assert.ErrorIs(t, err, ErrVerificationTokenExpired)
	assert.Empty(t, h.ver.rows)

	_, err = h.svc.VerifyEmail(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
}

func TestVerifyEmailRejectsMalformedToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.VerifyEmail(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
}

// --- maintenance ---

func TestRevokeAllRefreshTokens(t *testing.T) {
	h := newHarness(t)
	res := loginAlice(t, h)
	_, err := h.svc.Login(context.Background(), "alice@example.com", "Passw0rd!")
	require.NoError(t, err)
	require.Len(t, h.ref.rows, 2)

	require.NoError(t, h.svc.RevokeAllRefreshTokens(context.Background(), res.User.ID))
	assert.Empty(t, h.ref.rows)
}

func TestCleanExpiredTokens(t *testing.T) {
	h := newHarness(t)
	loginAlice(t, h)
	require.NoError(t, h.svc.ResendVerificationEmail(context.Background(), "bob@example.com")) // no-op

	// A second user with a pending verification token.
	_, err := h.svc.Register(context.Background(), RegisterInput{
		Email:    "bob@example.com",
		Username: "bobby",
		Password: "Passw0rd!",
	})
	require.NoError(t, err)

	h.clock.advance(8 * 24 * time.Hour)

	n, err := h.svc.CleanExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "one refresh + one verification token swept")
	assert.Empty(t, h.ref.rows)
	assert.Empty(t, h.ver.rows)
}

// --- end-to-end ---

func TestFullLifecycleScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Register.
	u, err := h.svc.Register(ctx, RegisterInput{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "Passw0rd!",
	})
	require.NoError(t, err)
	require.Nil(t, u.EmailVerifiedAt)

	// Login before verification is refused.
	_, err = h.svc.Login(ctx, "alice@example.com", "Passw0rd!")
	require.ErrorIs(t, err, ErrEmailNotVerified)

	// Verify with the emailed token.
	verified, err := h.svc.VerifyEmail(ctx, h.lastMailToken(t))
	require.NoError(t, err)
	require.NotNil(t, verified.EmailVerifiedAt)

	// Login now succeeds with both tokens.
	res, err := h.svc.Login(ctx, "alice@example.com", "Passw0rd!")
	require.NoError(t, err)
	require.NotEmpty(t, res.Access.Token)
	require.NotEmpty(t, res.Refresh)

	// Refresh mints a new access token.
	access, err := h.svc.Refresh(ctx, res.Refresh)
	require.NoError(t, err)
	require.NotEqual(t, res.Access.Token, access.Token)

	// Logout; the refresh token then fails as invalid.
	require.NoError(t, h.svc.Logout(ctx, res.Access.ID, res.Access.Exp, res.Refresh))
	_, err = h.svc.Refresh(ctx, res.Refresh)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}
