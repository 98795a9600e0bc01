package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last(t *testing.T) AuditEntry {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return m.entries[len(m.entries)-1]
}

func auditContext(method, path string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")
	return c, rec
}

func TestAudit_RecordsCallerAndResource(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := auditContext(http.MethodDelete, "/api/v1/announcements/abc-123",
		&auth.Principal{UserID: "u-1", Role: access.RoleAdmin})

	err := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := rec.last(t)
	if got.UserID != "u-1" || got.Role != "admin" {
		t.Errorf("unexpected caller %q/%q", got.UserID, got.Role)
	}
	if got.Resource != "announcements" || got.RecordID != "abc-123" {
		t.Errorf("unexpected target %q/%q", got.Resource, got.RecordID)
	}
	if got.Action != "delete" || got.StatusCode != http.StatusNoContent || got.RequestID != "req-1" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_StatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{echo.NewHTTPError(http.StatusForbidden, "no"), http.StatusForbidden},
		{&hisapi.ValidationError{Fields: []hisapi.FieldError{{Field: "name", Problem: "is required"}}}, http.StatusUnprocessableEntity},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := &mockRecorder{}
		c, _ := auditContext(http.MethodPost, "/api/v1/patients", nil)
		err := Audit(zerolog.Nop(), rec)(func(echo.Context) error { return tt.err })(c)
		if err != tt.err {
			t.Errorf("expected the handler error to pass through, got %v", err)
		}
		if got := rec.last(t); got.StatusCode != tt.want || got.Action != "create" {
			t.Errorf("%v: expected status %d create, got %d %s", tt.err, tt.want, got.StatusCode, got.Action)
		}
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := auditContext(http.MethodGet, "/health", nil)
	_ = Audit(zerolog.Nop(), rec)(func(echo.Context) error { return nil })(c)
	if len(rec.entries) != 0 {
		t.Errorf("expected no entries, got %d", len(rec.entries))
	}
}

func TestAudit_RecorderFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{err: errors.New("disk full")}
	c, _ := auditContext(http.MethodGet, "/api/v1/patients", nil)

	err := Audit(zerolog.New(&buf), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("recorder failure must not fail the request: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "record audit entry") || !strings.Contains(out, "api_access") {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestSplitAPIPath(t *testing.T) {
	tests := []struct {
		path, resource, id string
	}{
		{"/api/v1/patients", "patients", ""},
		{"/api/v1/patients/", "patients", ""},
		{"/api/v1/users/u-1/role", "users", "u-1"},
		{"/api/v1/auth/login", "auth", "login"},
	}
	for _, tt := range tests {
		r, id := splitAPIPath(tt.path)
		if r != tt.resource || id != tt.id {
			t.Errorf("splitAPIPath(%q) = (%q, %q), want (%q, %q)", tt.path, r, id, tt.resource, tt.id)
		}
	}
}
