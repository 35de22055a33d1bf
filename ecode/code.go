package ecode

import "net/http"

// Common codes
const (
	OK                 = 0
	RequestErr         = -400
	ParamErr           = -401
	AccessDenied       = -403
	NotFound           = -404
	ServerErr          = -500
	ServiceUnavailable = -503
)

var codes = map[int]struct {
	text   string
	status int
}{
	OK:                 {"ok", http.StatusOK},
	RequestErr:         {"Invalid request", http.StatusBadRequest},
	ParamErr:           {"Invalid parameters", http.StatusBadRequest},
	AccessDenied:       {"Access denied", http.StatusForbidden},
	NotFound:           {"Resource not found", http.StatusNotFound},
	ServerErr:          {"Internal server error", http.StatusInternalServerError},
	ServiceUnavailable: {"Service unavailable", http.StatusServiceUnavailable},
}

// Text returns the text of a code
func Text(code int) string {
	if c, ok := codes[code]; ok {
		return c.text
	}
	return codes[ServerErr].text
}

// ToHTTPStatus maps a code to an HTTP status, defaulting to 500
func ToHTTPStatus(code int) int {
	if c, ok := codes[code]; ok {
		return c.status
	}
	return http.StatusInternalServerError
}

// FromHTTPStatus picks the generic code of an error status
func FromHTTPStatus(status int) int {
	switch {
	case status == http.StatusForbidden:
		return AccessDenied
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusServiceUnavailable:
		return ServiceUnavailable
	case status >= 400 && status < 500:
		return RequestErr
	default:
		return ServerErr
	}
}
