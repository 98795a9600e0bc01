package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/pkg/access"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	Role      access.Role
	Name      string
	Email     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWTMiddleware authenticates bearer tokens issued by issuer and rejects
// revoked ones. Requests for which skip returns true pass through untouched.
func JWTMiddleware(issuer *Issuer, revocations RevocationStore, skip func(echo.Context) bool, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := issuer.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			p := &Principal{
				UserID:    claims.Subject,
				Role:      claims.Role,
				Name:      claims.Name,
				Email:     claims.Email,
				TokenID:   claims.ID,
				IssuedAt:  claims.IssuedAt.Time,
				ExpiresAt: claims.ExpiresAt.Time,
			}

			ctx := c.Request().Context()
			revoked, err := revocations.IsRevoked(ctx, p.TokenID, p.UserID, p.IssuedAt)
			if err != nil {
				// Fail closed: a token that cannot be checked is not accepted.
				logger.Error().Err(err).Str("jti", p.TokenID).Msg("revocation check failed")
				return echo.NewHTTPError(http.StatusUnauthorized, "token could not be verified")
			}
			if revoked {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// RoleFromContext returns the caller's role, or "" for anonymous requests.
func RoleFromContext(ctx context.Context) access.Role {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Role
	}
	return ""
}
