package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "odd"), http.StatusTeapot},
		{"wrapped app error", fmt.Errorf("handler: %w", Newf(ErrInternal, http.StatusBadGateway, "upstream %d", 3)), http.StatusBadGateway},
		{"parse", fmt.Errorf("query: %w", ErrParse), http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"missing index", ErrMissingIndex, http.StatusServiceUnavailable},
		{"not ready", ErrNotReady, http.StatusServiceUnavailable},
		{"corrupt index", Corruptf("line %d", 4), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "limit %q must be a positive integer", "x")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, `limit "x" must be a positive integer`, err.Message)
	assert.Equal(t, `invalid input: limit "x" must be a positive integer`, err.Error())
}

func TestCorruptf(t *testing.T) {
	err := Corruptf("%s: line %d", "index.txt", 2)
	assert.ErrorIs(t, err, ErrCorruptIndex)
	assert.Equal(t, "corrupt index: index.txt: line 2", err.Error())
}
