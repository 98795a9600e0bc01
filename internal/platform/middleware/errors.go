package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/pkg/hisapi"
)

// validationBody is the 422 body: the joined message plus per-field detail.
type validationBody struct {
	Message string              `json:"message"`
	Fields  []hisapi.FieldError `json:"fields"`
}

// ErrorHandler renders every error as {"message": "..."}. Validation errors
// become 422 with field detail; unknown errors become 500 and are logged.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status = http.StatusInternalServerError
			body   interface{}
		)

		var verr *hisapi.ValidationError
		var herr *echo.HTTPError
		switch {
		case errors.As(err, &verr):
			status = http.StatusUnprocessableEntity
			body = validationBody{Message: verr.Error(), Fields: verr.Fields}
		case errors.As(err, &herr):
			status = herr.Code
			if inner, ok := herr.Internal.(*hisapi.ValidationError); ok {
				body = validationBody{Message: inner.Error(), Fields: inner.Fields}
				break
			}
			msg, ok := herr.Message.(string)
			if !ok {
				msg = http.StatusText(status)
			}
			body = hisapi.ErrorResponse{Message: msg}
		default:
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("unhandled error")
			body = hisapi.ErrorResponse{Message: "internal server error"}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
