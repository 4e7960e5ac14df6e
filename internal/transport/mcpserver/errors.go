package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/auth"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/pim"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/resilience/circuit"
	"github.com/semiprobono/unified-pim-mcp-sub003/internal/domain/resilience/ratelimit"
)

// Stable codes surfaced to MCP clients. Upstream bodies and token material
// stay server-side; clients get the code plus a short actionable message.
const (
	codeInvalidState  = "invalid_state"
	codeReauth        = "reauth_required"
	codeRateLimited   = "rate_limited"
	codeCircuitOpen   = "circuit_open"
	codeNotFound      = "not_found"
	codeUpstream      = "upstream_error"
	codeNetwork       = "network_unavailable"
	codeCancelled     = "cancelled"
	codeInternal      = "internal_error"
)

func classify(err error) (code, message string) {
	var limited *ratelimit.LimitedError
	var open *circuit.OpenError
	var upstream *pim.UpstreamError
	var network *pim.NetworkError

	switch {
	case errors.Is(err, auth.ErrInvalidState):
		return codeInvalidState, "authorization state unknown or already used; run auth_begin again"
	case errors.Is(err, auth.ErrReauthRequired):
		return codeReauth, "no valid token for this account; run auth_begin to reauthorize"
	case errors.As(err, &limited):
		return codeRateLimited, fmt.Sprintf("rate limit exceeded; retry after %s", limited.ResetAt.Format(time.RFC3339))
	case errors.As(err, &open):
		return codeCircuitOpen, fmt.Sprintf("%s is failing; retry in %s", open.Dependency, open.RetryAfter.Round(time.Second))
	case errors.As(err, &upstream):
		if upstream.Status == 404 {
			return codeNotFound, "the requested item does not exist"
		}
		return codeUpstream, fmt.Sprintf("%s returned status %d", upstream.Platform, upstream.Status)
	case errors.As(err, &network):
		return codeNetwork, fmt.Sprintf("%s is unreachable", network.Platform)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return codeCancelled, "the operation was cancelled"
	default:
		return codeInternal, "an internal error occurred"
	}
}
