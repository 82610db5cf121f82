package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/elimuconnect/elimu/core"
	"github.com/elimuconnect/elimu/core/user"
)

var (
	errUnauthorized           = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed   = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountPendingApproval = echo.NewHTTPError(http.StatusForbidden, "account pending approval")
	errAccountDeactivated     = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errAccountLocked          = echo.NewHTTPError(http.StatusForbidden, "account locked, try again later")
	errRefreshExpired         = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden          = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound           = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that folds every
// error into the response envelope.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code int
			msg  string
			data interface{}
		)

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				msg, _ = origErr.Message.(string)
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if m, ok := origErr.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			msg = "validation failed"
			data = fldErrs
		case *core.ValidationError:
			code = http.StatusBadRequest
			msg = origErr.Error()
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				msg = "validation failed"
				data = fldErrs
			}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg = http.StatusText(http.StatusInternalServerError)

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Name = claims.Name
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			msg = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, response{Success: false, Message: msg, Data: data})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
