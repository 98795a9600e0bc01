package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/pkg/hisapi"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	handler := func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(func(c echo.Context) error { return nil })(c)

	if c.Get("request_id") != "my-custom-id" {
		t.Errorf("expected my-custom-id, got %v", c.Get("request_id"))
	}
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("a", 500))
	c := e.NewContext(req, httptest.NewRecorder())

	_ = RequestID()(func(c echo.Context) error { return nil })(c)

	if rid, _ := c.Get("request_id").(string); len(rid) > maxRequestIDLen {
		t.Errorf("expected oversized id to be replaced, got %d chars", len(rid))
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-123")

	handler := func(c echo.Context) error {
		r := c.Request()
		c.SetRequest(r.WithContext(auth.WithPrincipal(r.Context(), &auth.Principal{UserID: "u1", Role: "nurse"})))
		return c.String(http.StatusOK, "ok")
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q", buf.String())
	}
	for key, want := range map[string]interface{}{
		"level":      "info",
		"request_id": "req-123",
		"path":       "/api/v1/patients",
		"status":     float64(200),
		"user_id":    "u1",
		"role":       "nurse",
	} {
		if entry[key] != want {
			t.Errorf("log %s = %v, want %v", key, entry[key], want)
		}
	}
}

func TestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), httptest.NewRecorder())

	_ = Logger(zerolog.New(&buf))(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "nope")
	})(c)

	var entry map[string]interface{}
	_ = json.Unmarshal(buf.Bytes(), &entry)
	if entry["level"] != "error" {
		t.Errorf("expected error level, got %v", entry["level"])
	}
	if entry["status"] != float64(http.StatusForbidden) {
		t.Errorf("expected status 403, got %v", entry["status"])
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("test panic")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
		wantFields int
	}{
		{"http error", echo.NewHTTPError(http.StatusNotFound, "patient not found"), http.StatusNotFound, "patient not found", 0},
		{"echo default", echo.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized", 0},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error", 0},
		{
			"validation",
			&hisapi.ValidationError{Fields: []hisapi.FieldError{{Field: "name", Problem: "is required"}}},
			http.StatusUnprocessableEntity, "name is required", 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body struct {
				Message string              `json:"message"`
				Fields  []hisapi.FieldError `json:"fields"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, body.Message)
			}
			if len(body.Fields) != tt.wantFields {
				t.Errorf("expected %d fields, got %d", tt.wantFields, len(body.Fields))
			}
		})
	}
}
