package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreWrapsSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Store("sadd", cause)

	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "sadd")
	assert.NoError(t, Store("sadd", nil))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "x"), http.StatusTeapot},
		{"channel not found", fmt.Errorf("lookup: %w", ErrChannelNotFound), http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"malformed entry", ErrMalformedLogEntry, http.StatusUnprocessableEntity},
		{"store failure", Store("hgetall", errors.New("eof")), http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrChannelNotFound, http.StatusNotFound, "channel %s", "#go")
	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.Equal(t, "channel not found: channel #go", err.Error())
}
