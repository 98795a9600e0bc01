package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/pkg/hisapi"
)

// AuditEntry records who touched which collection and how it went.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	Role       string
	Resource   string
	RecordID   string
	Action     string
	Method     string
	Path       string
	RemoteIP   string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs one "api_access" line per /api/v1 request after the handler
// has run. It must sit behind the JWT middleware to see the caller.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Method:     req.Method,
				Path:       req.URL.Path,
				RemoteIP:   c.RealIP(),
				Action:     methodAction(req.Method),
				StatusCode: ResponseStatus(c, err),
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			if p := auth.PrincipalFromContext(req.Context()); p != nil {
				entry.UserID = p.UserID
				entry.Role = string(p.Role)
			}
			entry.Resource, entry.RecordID = splitAPIPath(req.URL.Path)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("record audit entry")
				}
			}

			evt := logger.Info()
			if entry.StatusCode == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("record_id", entry.RecordID).
				Str("action", entry.Action).
				Int("status", entry.StatusCode).
				Str("remote_ip", entry.RemoteIP).
				Msg("api_access")

			return err
		}
	}
}

// ResponseStatus is the status the client will see for a handler result.
// When err is set and nothing was written yet it predicts what ErrorHandler
// will send.
func ResponseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var verr *hisapi.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity
	}
	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		return herr.Code
	}
	return http.StatusInternalServerError
}

func methodAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}

// splitAPIPath turns /api/v1/patients/<id> into ("patients", "<id>").
func splitAPIPath(path string) (string, string) {
	rest := strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/")
	resource, id, _ := strings.Cut(rest, "/")
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}
	return resource, id
}
