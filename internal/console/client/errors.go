package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/his/his/pkg/hisapi"
)

// Kind classifies a failed call so callers can choose between "retry" and
// "fix and resubmit".
type Kind string

const (
	KindNetwork      Kind = "network"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindServer       Kind = "server"
)

// Error is the single failure value returned by every client call.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  []hisapi.FieldError

	cause error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the same request may succeed unchanged later.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// IsKind reports whether err is a client Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 400 && status < 500:
		return KindValidation
	}
	return KindServer
}

func statusError(status int, body []byte) *Error {
	e := &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: messageFrom(status, body),
	}
	if gjson.ValidBytes(body) {
		gjson.GetBytes(body, "fields").ForEach(func(_, v gjson.Result) bool {
			e.Fields = append(e.Fields, hisapi.FieldError{
				Field:   v.Get("field").String(),
				Problem: v.Get("problem").String(),
			})
			return true
		})
	}
	return e
}

// messageFrom prefers a server-supplied message: the "message" or "error"
// key of a JSON body, else a short plain-text body.
func messageFrom(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"message", "error"} {
			if r := gjson.GetBytes(body, key); r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
				return r.Str
			}
		}
		return fallbackMessage(status)
	}
	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "<") || len(text) > 500 {
		return fallbackMessage(status)
	}
	return text
}

func fallbackMessage(status int) string {
	return fmt.Sprintf("Server Error: %d", status)
}

func validationError(err error) error {
	var verr *hisapi.ValidationError
	if errors.As(err, &verr) {
		return &Error{Kind: KindValidation, Message: verr.Error(), Fields: verr.Fields, cause: err}
	}
	return err
}
