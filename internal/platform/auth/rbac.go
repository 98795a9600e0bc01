package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/his/his/pkg/access"
)

// RequireModule rejects callers whose role cannot open the module. It is the
// server side of the same permission table the console navigator reads.
func RequireModule(id access.ModuleID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if !access.IsModuleAllowed(role, id) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("module %s is not available for role %s", id, roleLabel(role)))
			}
			return next(c)
		}
	}
}

// RequireAction rejects callers whose role may not perform the action.
func RequireAction(a access.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if !access.CanPerform(role, a) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("action %s is not permitted for role %s", a, roleLabel(role)))
			}
			return next(c)
		}
	}
}

func roleLabel(r access.Role) string {
	if r == "" {
		return "(none)"
	}
	return string(r)
}
