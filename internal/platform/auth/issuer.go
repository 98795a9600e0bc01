package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

const issuerName = "his-server"

var (
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserRevoked is returned when a token cannot be issued past the
	// user's revocation cut-off.
	ErrUserRevoked = errors.New("tokens for this user are revoked")
)

// Claims are the JWT claims issued at login. Subject is the user id and ID is
// the jti used for revocation.
type Claims struct {
	jwt.RegisteredClaims
	Role  access.Role `json:"role"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	key  []byte
	ttl  time.Duration
	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: secret, ttl: ttl, now: time.Now, wait: sleep}
}

// Issue returns a signed token for the user along with its claims.
func (i *Issuer) Issue(u hisapi.User) (string, *Claims, error) {
	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   u.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role:  u.Role,
		Name:  u.Name,
		Email: u.Email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, claims, nil
}

// IssueUnrevoked issues a token that revocations accepts. A token stamped in
// the same second as a role-change cut-off is rejected, so issuance waits for
// the next second and signs again.
func (i *Issuer) IssueUnrevoked(ctx context.Context, revocations RevocationStore, u hisapi.User) (string, *Claims, error) {
	for attempt := 0; ; attempt++ {
		token, claims, err := i.Issue(u)
		if err != nil {
			return "", nil, err
		}
		revoked, err := revocations.IsRevoked(ctx, claims.ID, u.ID, claims.IssuedAt.Time)
		if err != nil {
			return "", nil, fmt.Errorf("check issued token: %w", err)
		}
		if !revoked {
			return token, claims, nil
		}
		if attempt > 0 {
			return "", nil, ErrUserRevoked
		}
		now := i.now()
		if err := i.wait(ctx, now.Truncate(time.Second).Add(time.Second).Sub(now)); err != nil {
			return "", nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Parse verifies a token's signature, issuer and expiry.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
