package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(KindRateLimited, "weekly limit reached")
	wrapped := fmt.Errorf("starting session: %w", base)

	assert.Equal(t, KindRateLimited, KindOf(wrapped))
	assert.Equal(t, "weekly limit reached", Message(wrapped))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(wrapped))
}

func TestUnclassifiedDefaults(t *testing.T) {
	err := errors.New("driver: bad connection")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", Message(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := Wrap(KindUpstreamUnavailable, "feedback generation unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
	assert.Equal(t, "feedback generation unavailable", Message(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestHTTPStatusTable(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthorized:        http.StatusUnauthorized,
		KindForbidden:           http.StatusForbidden,
		KindConflict:            http.StatusConflict,
		KindRateLimited:         http.StatusTooManyRequests,
		KindNotFound:            http.StatusNotFound,
		KindUpstreamUnavailable: http.StatusServiceUnavailable,
		KindStoreFailure:        http.StatusInternalServerError,
		KindValidation:          http.StatusBadRequest,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(New(kind, "x")), kind.String())
	}
}
