package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suliportal/suliportal/core"
	"github.com/suliportal/suliportal/core/lunch"
	"github.com/suliportal/suliportal/core/user"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields []core.FieldError `json:"fields,omitempty"`
}

// newAppHTTPErrorHandler maps application errors to HTTP responses.
// Unexpected errors are logged and, if flagged for shutdown, stop the server.
func newAppHTTPErrorHandler(logger core.Logger, trans ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		if ctx.Response().Committed {
			return
		}

		var code int
		resp := errorResponse{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			code = origErr.Code
			resp.Error = http.StatusText(code)
			if msg, ok := origErr.Message.(string); ok {
				resp.Error = msg
			}
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			resp.Error = "validation error"
			for _, fErr := range origErr {
				resp.Fields = append(resp.Fields, core.FieldError{
					Field: core.CleanString(fErr.Field(), true),
					Error: fErr.Translate(trans),
				})
			}
		case *core.ValidationError:
			code = http.StatusBadRequest
			resp.Error = origErr.Error()
			resp.Fields = origErr.Fields
		default:
			switch origErr {
			case user.ErrNotFound, lunch.ErrMenuNotFound, lunch.ErrOrderNotFound:
				code = http.StatusNotFound
				resp.Error = origErr.Error()
			case lunch.ErrUnknownToken:
				code = http.StatusNotFound
				resp.Error = origErr.Error()
			case lunch.ErrMenuExists, lunch.ErrWindowClosed:
				code = http.StatusConflict
				resp.Error = origErr.Error()
			case lunch.ErrNotEligible, lunch.ErrBadgeBlocked:
				code = http.StatusForbidden
				resp.Error = origErr.Error()
			case lunch.ErrOutOfRange, lunch.ErrInvalidSelection:
				code = http.StatusBadRequest
				resp.Error = origErr.Error()
			case user.ErrEmailExists, user.ErrUsernameExists, user.ErrBadgeExists:
				code = http.StatusConflict
				resp.Error = origErr.Error()
			default:
				code = http.StatusInternalServerError
				resp.Error = http.StatusText(code)
				logger.Error(err.Error(), err)

				if core.IsShutdown(errors.Cause(err)) {
					defer signalShutdown()
				}
			}
		}

		var respErr error
		if ctx.Request().Method == http.MethodHead {
			respErr = ctx.NoContent(code)
		} else {
			respErr = ctx.JSON(code, resp)
		}
		if respErr != nil {
			logger.Error(respErr.Error(), respErr)
		}
	}
}
