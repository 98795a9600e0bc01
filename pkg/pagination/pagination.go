// Package pagination parses limit/offset query parameters and wraps list
// responses in the envelope every collection endpoint returns.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps a paginated API response. Data is never null: an empty
// collection is rendered as [].
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// Page is the decoding side of Response.
type Page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Next returns the parameters of the following page and whether one exists.
func (p *Page[T]) Next() (Params, bool) {
	if !p.HasMore || len(p.Data) == 0 {
		return Params{}, false
	}
	return Params{Limit: p.Limit, Offset: p.Offset + len(p.Data)}, true
}

// Query renders the parameters as URL query values.
func (p Params) Query() map[string]string {
	return map[string]string{
		"limit":  strconv.Itoa(p.Limit),
		"offset": strconv.Itoa(p.Offset),
	}
}
