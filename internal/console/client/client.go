// Package client is the console's synchronization client: one typed contract
// for loading and mutating every server-held collection. Calls are never
// retried.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/his/his/pkg/hisapi"
	"github.com/his/his/pkg/pagination"
)

const apiPrefix = "/api/v1"

// TokenSource yields the bearer token of the current session, or "" when
// there is none.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

type Client struct {
	http           *resty.Client
	baseURL        string
	tokens         TokenSource
	logger         zerolog.Logger
	onUnauthorized func()
}

func New(cfg Config, tokens TokenSource) *Client {
	if tokens == nil {
		tokens = TokenFunc(func() string { return "" })
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &Client{
		http:    r,
		baseURL: cfg.BaseURL,
		tokens:  tokens,
		logger:  cfg.Logger,
	}
}

// OnUnauthorized registers fn to run whenever an authenticated call is
// rejected with 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// Login exchanges credentials for a session. It never triggers the
// unauthorized hook.
func (c *Client) Login(ctx context.Context, username, password string) (*hisapi.LoginResponse, error) {
	req := hisapi.LoginRequest{Username: username, Password: password}
	if err := hisapi.ValidateCreate(&req); err != nil {
		return nil, validationError(err)
	}
	var resp hisapi.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, &req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil, true)
}

func (c *Client) Me(ctx context.Context) (*hisapi.User, error) {
	var u hisapi.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Navigation(ctx context.Context) (*hisapi.Navigation, error) {
	var nav hisapi.Navigation
	if err := c.do(ctx, http.MethodGet, "/navigation", nil, nil, &nav, true); err != nil {
		return nil, err
	}
	return &nav, nil
}

func (c *Client) Dashboard(ctx context.Context) (*hisapi.DashboardSummary, error) {
	var sum hisapi.DashboardSummary
	if err := c.do(ctx, http.MethodGet, "/dashboard", nil, nil, &sum, true); err != nil {
		return nil, err
	}
	return &sum, nil
}

// Invite creates a user account.
func (c *Client) Invite(ctx context.Context, req hisapi.InviteRequest) ([]byte, error) {
	if err := hisapi.ValidateCreate(&req); err != nil {
		return nil, validationError(err)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/users", nil, &req, &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) ChangeRole(ctx context.Context, userID string, req hisapi.RoleChangeRequest) ([]byte, error) {
	if err := hisapi.ValidateCreate(&req); err != nil {
		return nil, validationError(err)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPatch, "/users/"+userID+"/role", nil, &req, &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

// do sends one request. body is JSON-encoded when non-nil; a 2xx response
// body is decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any, authed bool) error {
	req := c.http.R().SetContext(ctx)
	if authed {
		if tok := c.tokens.Token(); tok != "" {
			req.SetAuthToken(tok)
		}
	}
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, apiPrefix+path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return &Error{
			Kind:    KindNetwork,
			Message: fmt.Sprintf("cannot connect to server at %s", c.baseURL),
			cause:   err,
		}
	}

	status := resp.StatusCode()
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("latency", time.Since(start)).
		Msg("request")

	if status < 200 || status >= 300 {
		e := statusError(status, resp.Body())
		if authed && status == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return e
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &Error{
			Kind:    KindServer,
			Status:  status,
			Message: "unexpected response from server",
			cause:   fmt.Errorf("decode %s %s: %w", method, path, err),
		}
	}
	return nil
}

// pageSize is the page length requested when walking a collection.
const pageSize = 100

// Records is the collection half of the client. *Client implements it; the
// generic helpers below accept any implementation.
type Records interface {
	ListRecords(ctx context.Context, resource string) ([]json.RawMessage, error)
	GetRecord(ctx context.Context, resource, id string) (json.RawMessage, error)
	CreateRecord(ctx context.Context, resource string, payload any) (json.RawMessage, error)
	UpdateRecord(ctx context.Context, resource, id string, patch any) (json.RawMessage, error)
	Delete(ctx context.Context, resource, id string) (bool, error)
}

// ListRecords fetches every record of a collection, page by page.
func (c *Client) ListRecords(ctx context.Context, resource string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0)
	params := pagination.Params{Limit: pageSize}
	for {
		var page pagination.Page[json.RawMessage]
		if err := c.do(ctx, http.MethodGet, "/"+resource, params.Query(), nil, &page, true); err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		next, ok := page.Next()
		if !ok {
			return out, nil
		}
		if next.Limit <= 0 {
			next.Limit = pageSize
		}
		params = next
	}
}

func (c *Client) GetRecord(ctx context.Context, resource, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/"+resource+"/"+id, nil, nil, &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

// CreateRecord validates payload (a pointer to a typed payload struct) and
// posts it. Invalid payloads are rejected without a request.
func (c *Client) CreateRecord(ctx context.Context, resource string, payload any) (json.RawMessage, error) {
	if err := hisapi.ValidateCreate(payload); err != nil {
		return nil, validationError(err)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/"+resource, nil, payload, &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

// UpdateRecord sends the non-empty fields of patch as a partial update after
// validating just those fields.
func (c *Client) UpdateRecord(ctx context.Context, resource, id string, patch any) (json.RawMessage, error) {
	keys, err := hisapi.PatchKeys(patch)
	if err != nil {
		return nil, err
	}
	if err := hisapi.ValidatePatch(patch, keys); err != nil {
		return nil, validationError(err)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPatch, "/"+resource+"/"+id, nil, patch, &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

// Delete removes a record. It reports false, without error, when the record
// was already gone.
func (c *Client) Delete(ctx context.Context, resource, id string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, "/"+resource+"/"+id, nil, nil, nil, true)
	if IsKind(err, KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Load fetches a whole collection decoded as T.
func Load[T any](ctx context.Context, c Records, resource string) ([]T, error) {
	raws, err := c.ListRecords(ctx, resource)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, decodeError(resource, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// Get fetches one record decoded as T.
func Get[T any](ctx context.Context, c Records, resource, id string) (T, error) {
	var item T
	raw, err := c.GetRecord(ctx, resource, id)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, decodeError(resource, err)
	}
	return item, nil
}

// Create validates and posts payload, returning the stored entity. T must be
// a payload struct type, not a pointer.
func Create[T any](ctx context.Context, c Records, resource string, payload T) (T, error) {
	var created T
	raw, err := c.CreateRecord(ctx, resource, &payload)
	if err != nil {
		return created, err
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return created, decodeError(resource, err)
	}
	return created, nil
}

// Update sends the non-empty fields of patch and returns the stored entity.
func Update[T any](ctx context.Context, c Records, resource, id string, patch T) (T, error) {
	var updated T
	raw, err := c.UpdateRecord(ctx, resource, id, &patch)
	if err != nil {
		return updated, err
	}
	if err := json.Unmarshal(raw, &updated); err != nil {
		return updated, decodeError(resource, err)
	}
	return updated, nil
}

func decodeError(resource string, err error) error {
	return &Error{
		Kind:    KindServer,
		Message: "unexpected response from server",
		cause:   errors.Join(fmt.Errorf("decode %s", resource), err),
	}
}
