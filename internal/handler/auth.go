package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rythmix/auth-service/internal/auth"
	"github.com/rythmix/auth-service/internal/model"
	"github.com/rythmix/auth-service/internal/repository"
	"github.com/rythmix/auth-service/internal/token"
)

// dbTimeout bounds every store round-trip made from a handler.
const dbTimeout = 5 * time.Second

// AuthService is the slice of the session lifecycle manager the HTTP
// layer consumes. Tests substitute a stub.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (model.User, error)
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
	Refresh(ctx context.Context, raw string) (token.Access, error)
	Logout(ctx context.Context, accessID string, accessExp time.Time, rawRefresh string) error
	VerifyEmail(ctx context.Context, raw string) (model.User, error)
	ResendVerificationEmail(ctx context.Context, email string) error
	Profile(ctx context.Context, userID uint64) (model.User, error)
	RevokeAllRefreshTokens(ctx context.Context, userID uint64) error
	CleanExpiredTokens(ctx context.Context) (int64, error)
}

// AuthHandler exposes the session lifecycle over HTTP.
type AuthHandler struct {
	Auth AuthService
}

func NewAuthHandler(a AuthService) *AuthHandler { return &AuthHandler{Auth: a} }

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type verifyEmailReq struct {
	Token string `json:"token"`
}
type resendReq struct {
	Email string `json:"email"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID              uint64     `json:"id"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	FirstName       string     `json:"first_name,omitempty"`
	LastName        string     `json:"last_name,omitempty"`
	Role            string     `json:"role"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
}
type loginResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// publicUser projects a user record for responses. The password hash
// never appears here.
func publicUser(u model.User) userPart {
	return userPart{
		ID:              u.ID,
		Email:           u.Email,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Role:            u.Role,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
}

// Register creates an account and triggers the verification email.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Auth.Register(ctx, auth.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": publicUser(u)})
}

// Login verifies credentials and returns an access/refresh pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, loginResp{
		User:    publicUser(res.User),
		Access:  tokenPart{Token: res.Access.Token, Expires: res.Access.Exp},
		Refresh: tokenPart{Token: res.Refresh, Expires: res.RefreshExp},
	})
}

// Refresh mints a new access token from a refresh token. The refresh
// token is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	access, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes the presented access token and, when supplied, the
// refresh token from the body. Requires a valid bearer token.
func (h *AuthHandler) Logout(c echo.Context) error {
	tokenID, _ := c.Get("token_id").(string)
	tokenExp, _ := c.Get("token_exp").(time.Time)

	var req refreshReq
	_ = c.Bind(&req) // body is optional

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Auth.Logout(ctx, tokenID, tokenExp, strings.TrimSpace(req.RefreshToken)); err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// VerifyEmail consumes a verification token, from the query string on
// GET or the JSON body on POST.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		var req verifyEmailReq
		_ = c.Bind(&req)
		raw = req.Token
	}
	if strings.TrimSpace(raw) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid verification token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Auth.VerifyEmail(ctx, strings.TrimSpace(raw))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": publicUser(u)})
}

// ResendVerification re-sends the verification email. The response is
// identical whether or not the account exists or is already verified.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req resendReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Auth.ResendVerificationEmail(ctx, req.Email); err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "if the account exists, a verification email has been sent"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := c.Get("user_id").(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Auth.Profile(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": publicUser(u)})
}

// RevokeUserTokens deletes every refresh token of the target user
// ("log out everywhere"). Admin only.
func (h *AuthHandler) RevokeUserTokens(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Auth.RevokeAllRefreshTokens(ctx, id); err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "refresh tokens revoked"})
}

// CleanExpiredTokens sweeps expired refresh and verification tokens.
// Admin only; meant to be hit by a cron-style caller.
func (h *AuthHandler) CleanExpiredTokens(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	n, err := h.Auth.CleanExpiredTokens(ctx)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}

// mapError translates the auth package's closed error set into HTTP
// responses. Anything unrecognized is an opaque 500.
func (h *AuthHandler) mapError(c echo.Context, err error) error {
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	}
	switch {
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrUsernameTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, auth.ErrEmailNotVerified):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidRefreshToken), errors.Is(err, auth.ErrRefreshTokenExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidVerificationToken), errors.Is(err, auth.ErrVerificationTokenExpired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	c.Logger().Errorf("auth: internal error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
