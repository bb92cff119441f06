// Package middleware contains reusable HTTP middleware: bearer-token
// authentication, role enforcement and Redis-backed rate limiting.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/rythmix/auth-service/internal/token"
)

// JWTAuth returns an Echo middleware that validates a Bearer access
// token and injects its claims into the request context. The issuer is
// consulted for the revocation denylist, so a token that was logged out
// stops working before its natural expiry. Handlers read the identity
// via c.Get("user_id"), c.Get("role"), c.Get("token_id") and
// c.Get("token_exp").
func JWTAuth(secret string, issuer token.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				// Reject tokens signed with anything but HMAC.
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			sub, ok := claims["sub"].(float64)
			if !ok || sub <= 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			jti, _ := claims["jti"].(string)
			exp, _ := claims["exp"].(float64)

			// A signed, unexpired token can still have been revoked by
			// logout. Redis errors fail closed here: better to force a
			// re-login than to honor a possibly revoked token.
			if jti != "" {
				revoked, err := issuer.Revoked(c.Request().Context(), jti)
				if err != nil || revoked {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
				}
			}

			c.Set("user_id", uint64(sub))
			c.Set("role", claims["role"])
			c.Set("token_id", jti)
			c.Set("token_exp", time.Unix(int64(exp), 0).UTC())
			return next(c)
		}
	}
}
