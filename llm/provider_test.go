package llm

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetworks/campaignflow/types"
)

func TestMapHTTPError(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		msg       string
		wantCode  types.ErrorCode
		wantRetry bool
	}{
		{"unauthorized", http.StatusUnauthorized, "bad key", types.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, "policy", types.ErrForbidden, false},
		{"rate limited", http.StatusTooManyRequests, "slow down", types.ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, "malformed", types.ErrInvalidRequest, false},
		{"quota via 400", http.StatusBadRequest, "insufficient credit balance", types.ErrQuotaExceeded, false},
		{"bad gateway", http.StatusBadGateway, "upstream", types.ErrUpstreamError, true},
		{"overloaded", 529, "overloaded", types.ErrModelOverloaded, true},
		{"server error", http.StatusInternalServerError, "oops", types.ErrUpstreamError, true},
		{"teapot", http.StatusTeapot, "short and stout", types.ErrUpstreamError, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := MapHTTPError(tc.status, tc.msg, "anthropic")
			assert.Equal(t, tc.wantCode, e.Code)
			assert.Equal(t, tc.wantRetry, e.Retryable)
			assert.Equal(t, tc.status, e.HTTPStatus)
			assert.Equal(t, "anthropic", e.Gateway)
		})
	}
}

func TestMapTransportError(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	e := MapTransportError(cause, "perplexity")
	assert.Equal(t, types.ErrGatewayUnavailable, e.Code)
	assert.True(t, e.Retryable)
	assert.Equal(t, cause, errors.Unwrap(e))
}
