package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func testUser() hisapi.User {
	return hisapi.User{ID: "user-123", Name: "Ada Accountant", Email: "ada@example.org", Role: access.RoleAccountant}
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer(testSigningKey, time.Hour)

	token, issued, err := iss.Issue(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issued.ID == "" {
		t.Error("expected a jti")
	}

	claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("expected subject user-123, got %s", claims.Subject)
	}
	if claims.Role != access.RoleAccountant {
		t.Errorf("expected role accountant, got %s", claims.Role)
	}
	if claims.ID != issued.ID {
		t.Errorf("expected jti %s, got %s", issued.ID, claims.ID)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Errorf("expected 1h lifetime, got %s", got)
	}
}

func TestIssuer_RejectsExpired(t *testing.T) {
	iss := NewIssuer(testSigningKey, time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, _, err := iss.Issue(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	iss.now = time.Now
	if _, err := iss.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuer_RejectsForeignTokens(t *testing.T) {
	iss := NewIssuer(testSigningKey, time.Hour)

	other := NewIssuer([]byte("a-completely-different-secret-value"), time.Hour)
	token, _, _ := other.Issue(testUser())
	if _, err := iss.Parse(token); err == nil {
		t.Error("expected token signed with another key to be rejected")
	}

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   "user-123",
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: access.RoleSuperAdmin,
	})
	unsigned, _ := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := iss.Parse(unsigned); err == nil {
		t.Error("expected alg=none token to be rejected")
	}

	if _, err := iss.Parse("not-a-jwt"); err == nil {
		t.Error("expected garbage to be rejected")
	}
}

func TestIssuer_IssueUnrevoked_WaitsOutCutoffSecond(t *testing.T) {
	store := NewMemoryRevocationStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	clock := time.Unix(1_700_000_010, 600*int64(time.Millisecond))
	iss := NewIssuer(testSigningKey, time.Hour)
	iss.now = func() time.Time { return clock }
	var waited time.Duration
	iss.wait = func(_ context.Context, d time.Duration) error {
		waited += d
		clock = clock.Add(d)
		return nil
	}

	_, oldClaims, err := iss.Issue(testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Role change 200ms after the old token was signed.
	clock = clock.Add(200 * time.Millisecond)
	_ = store.RevokeUser(ctx, "user-123", clock)

	if revoked, _ := store.IsRevoked(ctx, oldClaims.ID, "user-123", oldClaims.IssuedAt.Time); !revoked {
		t.Fatal("token issued before the role change must be revoked")
	}

	token, claims, err := iss.IssueUnrevoked(ctx, store, testUser())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited != 200*time.Millisecond {
		t.Errorf("expected to wait 200ms for the next second, waited %s", waited)
	}
	if claims.IssuedAt.Unix() != 1_700_000_011 {
		t.Errorf("expected iat in the next second, got %d", claims.IssuedAt.Unix())
	}
	if revoked, _ := store.IsRevoked(ctx, claims.ID, "user-123", claims.IssuedAt.Time); revoked {
		t.Error("fresh token should not be revoked")
	}
	if _, err := iss.Parse(token); err != nil {
		t.Errorf("fresh token should parse: %v", err)
	}
}

func TestIssuer_IssueUnrevoked_NoWaitWithoutCutoff(t *testing.T) {
	store := NewMemoryRevocationStore(time.Hour)
	defer store.Close()

	iss := NewIssuer(testSigningKey, time.Hour)
	iss.wait = func(context.Context, time.Duration) error {
		t.Error("unexpected wait")
		return nil
	}
	if _, _, err := iss.IssueUnrevoked(context.Background(), store, testUser()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIssuer_IssueUnrevoked_FutureCutoff(t *testing.T) {
	store := NewMemoryRevocationStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	_ = store.RevokeUser(ctx, "user-123", time.Now().Add(time.Hour))
	iss := NewIssuer(testSigningKey, time.Hour)
	iss.wait = func(context.Context, time.Duration) error { return nil }

	if _, _, err := iss.IssueUnrevoked(ctx, store, testUser()); !errors.Is(err, ErrUserRevoked) {
		t.Errorf("expected ErrUserRevoked, got %v", err)
	}
}
