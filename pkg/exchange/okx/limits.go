package okx

import (
	"time"

	"okxrest/internal/ratelimit"
	"okxrest/pkg/core"
)

type endpointLimit struct {
	requests int
	period   time.Duration
}

// endpointLimits are the documented OKX REST limits of the endpoints Client
// calls. Other endpoints use the configured default.
var endpointLimits = map[string]endpointLimit{
	core.APIPrefix + "/public/time":     {10, 2 * time.Second},
	core.APIPrefix + "/market/ticker":   {20, 2 * time.Second},
	core.APIPrefix + "/account/balance": {10, 2 * time.Second},
}

// applyEndpointLimits installs endpointLimits on limiter unless the
// configured default is already stricter.
func applyEndpointLimits(limiter *ratelimit.RateLimiter, config *core.Config) {
	configured := perSecond(config.RateLimitRequests, config.RateLimitPeriod)

	for endpoint, l := range endpointLimits {
		if perSecond(l.requests, l.period) >= configured {
			continue
		}
		limiter.SetEndpointLimit(endpoint, l.requests, l.period)
	}
}

func perSecond(requests int, period time.Duration) float64 {
	return float64(requests) / period.Seconds()
}
