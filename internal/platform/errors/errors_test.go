package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNilReturnsNil(t *testing.T) {
	// The comparison must hold through the error interface, not just
	// under reflection: a typed-nil *Error would pass assert.Nil but
	// still read as a failure at every `if err != nil` call site.
	err := Wrap(nil, ErrCodeInternal, "query failed")
	assert.True(t, err == nil)
	assert.NoError(t, err)
}

func TestWrapNilThroughErrorReturn(t *testing.T) {
	// Mirrors the repository success path: a Scan that succeeded, its
	// nil result wrapped unconditionally and returned as error.
	create := func() error {
		var scanErr error
		return Wrap(scanErr, ErrCodeInternal, "failed to create approval workflow")
	}
	assert.NoError(t, create())
}

func TestCodeOfNilCodedError(t *testing.T) {
	var e *Error
	var err error = e
	assert.Equal(t, ErrCodeInternal, CodeOf(err))
}

func TestUnwrapChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "query failed")

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"coded error", NotFound("transaction", "tx-1"), ErrCodeNotFound},
		{"wrapped coded error", fmt.Errorf("outer: %w", Configuration("no thresholds")), ErrCodeConfiguration},
		{"plain error", stderrors.New("boom"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
			assert.True(t, IsCode(tt.err, tt.want))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{InvalidInput("amount", "must be non-negative"), http.StatusBadRequest},
		{NotFound("transaction", "tx-1"), http.StatusNotFound},
		{New(ErrCodeConflict, "already submitted"), http.StatusConflict},
		{New(ErrCodeUnauthorized, "not an eligible approver"), http.StatusUnauthorized},
		{Configuration("threshold gap"), http.StatusInternalServerError},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "error: %v", tt.err)
	}
}
