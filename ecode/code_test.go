package ecode

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, ToHTTPStatus(AccessDenied))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(-42))
	assert.Equal(t, "Resource not found", Text(NotFound))
	assert.Equal(t, Text(ServerErr), Text(-42))
}

func TestFromHTTPStatus(t *testing.T) {
	assert.Equal(t, NotFound, FromHTTPStatus(http.StatusNotFound))
	assert.Equal(t, RequestErr, FromHTTPStatus(http.StatusConflict))
	assert.Equal(t, ServiceUnavailable, FromHTTPStatus(http.StatusServiceUnavailable))
	assert.Equal(t, ServerErr, FromHTTPStatus(http.StatusBadGateway))
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "X-Session-ID is required", FieldIsRequired("X-Session-ID"))
	assert.Equal(t, "request does not exist", NotExist("request"))
	assert.Equal(t, "session does not match", Mismatch("session"))
}
