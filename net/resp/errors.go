package resp

import "github.com/ncobase/placesearch/ecode"

func newException(code int, message string, details []any) *Exception {
	e := &Exception{Status: ecode.ToHTTPStatus(code), Code: code, Message: message}
	if len(details) > 0 {
		e.Errors = details[0]
	}
	return e
}

// BadRequest indicates a bad request.
func BadRequest(message string, details ...any) *Exception {
	return newException(ecode.RequestErr, message, details)
}

// InvalidParams indicates request parameters failed validation.
func InvalidParams(message string, details ...any) *Exception {
	return newException(ecode.ParamErr, message, details)
}

// NotFound indicates that the requested resource is not found.
func NotFound(message string, details ...any) *Exception {
	return newException(ecode.NotFound, message, details)
}

// Forbidden indicates access is forbidden.
func Forbidden(message string, details ...any) *Exception {
	return newException(ecode.AccessDenied, message, details)
}

// InternalServer indicates a server error.
func InternalServer(message string, details ...any) *Exception {
	return newException(ecode.ServerErr, message, details)
}

// Unavailable indicates the service cannot take more work.
func Unavailable(message string, details ...any) *Exception {
	return newException(ecode.ServiceUnavailable, message, details)
}
