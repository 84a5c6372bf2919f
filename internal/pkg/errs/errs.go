package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"quickchat/internal/pkg/logx"
)

// CustomError is the application error carried to clients.
// It pairs a business code with a user-facing message and the HTTP status used when the
// error travels over HTTP. Business errors without an explicit status are reported as 200,
// leaving the code field to carry the failure.
type CustomError struct {
	Code    int
	Message string
	Status  int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Is reports whether target is a CustomError with the same code, so callers can write
// errors.Is(err, errs.NewError(errs.ErrImageTooLarge)).
func (e *CustomError) Is(target error) bool {
	var other *CustomError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError builds a *CustomError from a registered code. details are printf arguments for
// templated messages; for ErrUnknown the first detail may be the underlying error, which is
// logged and never shown to the client. Unregistered codes fall back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)
		templateErr = errorMap[ErrUnknown]
	}

	customErr := templateErr
	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	switch {
	case len(details) == 0:
	case customErr.Code == ErrUnknown:
		if originalErr, ok := details[0].(error); ok {
			logx.Error(originalErr, "Handling ErrUnknown with underlying error")
		}
	case strings.Contains(customErr.Message, "%"):
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	default:
		logx.Warn("Details provided for error, but message template has no formatting placeholders. Details ignored.",
			"code", code)
	}

	return &customErr
}

// FromError returns err as a *CustomError when it is one, and a generic ErrUnknown otherwise.
func FromError(err error) *CustomError {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}
	return NewError(ErrUnknown, err)
}
