// Package router wires HTTP routes to handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/rythmix/auth-service/internal/config"
	"github.com/rythmix/auth-service/internal/handler"
	"github.com/rythmix/auth-service/internal/middleware"
	"github.com/rythmix/auth-service/internal/model"
	"github.com/rythmix/auth-service/internal/token"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check, used by load balancers to
// verify the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session lifecycle routes under /v1/auth.
//
// The anonymous endpoints that can be abused for credential stuffing or
// account enumeration (register, login, resend-verification) sit behind
// the Redis token-bucket rate limiter. Logout and /me require a valid
// bearer token; refresh and verify-email authenticate through the token
// they carry. Administrative operations require the admin role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, cfg config.Config, rdb *redis.Client, issuer token.Issuer) {
	limited := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	authed := middleware.JWTAuth(cfg.JWTSecret, issuer)

	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limited)
	g.POST("/login", a.Login, limited)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, authed)
	// The verification link in the email is a GET; API clients may also
	// POST the token in a JSON body.
	g.GET("/verify-email", a.VerifyEmail)
	g.POST("/verify-email", a.VerifyEmail)
	g.POST("/resend-verification", a.ResendVerification, limited)
	g.GET("/me", a.Me, authed)

	// Administrative surface: bulk revocation and expired-token sweeps.
	admin := e.Group("/v1/auth", authed, middleware.RequireRole(model.RoleAdmin))
	admin.POST("/users/:id/revoke-tokens", a.RevokeUserTokens)
	admin.POST("/maintenance/clean-expired", a.CleanExpiredTokens)
}
