package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/his/his/pkg/access"
)

func contextWithRole(role access.Role) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(WithPrincipal(req.Context(), &Principal{UserID: "u1", Role: role}))
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireModule(t *testing.T) {
	tests := []struct {
		role access.Role
		id   access.ModuleID
		want int
	}{
		{access.RoleAccountant, access.ModuleBilling, http.StatusOK},
		{access.RoleAccountant, access.ModulePatients, http.StatusForbidden},
		{access.RoleAdmin, access.ModuleSettings, http.StatusForbidden},
		{access.RoleSuperAdmin, access.ModuleSettings, http.StatusOK},
		{"", access.ModuleDashboard, http.StatusForbidden},
	}
	for _, tt := range tests {
		err := RequireModule(tt.id)(okHandler)(contextWithRole(tt.role))
		if tt.want == http.StatusOK {
			if err != nil {
				t.Errorf("%s/%s: unexpected error %v", tt.role, tt.id, err)
			}
			continue
		}
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != tt.want {
			t.Errorf("%s/%s: expected %d, got %v", tt.role, tt.id, tt.want, err)
		}
	}
}

func TestRequireModule_Message(t *testing.T) {
	err := RequireModule(access.ModulePatients)(okHandler)(contextWithRole(access.RoleAccountant))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	msg, _ := httpErr.Message.(string)
	if msg != "module patients is not available for role accountant" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestRequireAction(t *testing.T) {
	if err := RequireAction(access.ActionIssueInvoice)(okHandler)(contextWithRole(access.RoleAccountant)); err != nil {
		t.Errorf("accountant should issue invoices, got %v", err)
	}

	err := RequireAction(access.ActionDeleteAnnouncement)(okHandler)(contextWithRole(access.RoleDoctor))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if msg, _ := httpErr.Message.(string); !strings.Contains(msg, "announcement:delete") {
		t.Errorf("expected action in message, got %q", msg)
	}
}
