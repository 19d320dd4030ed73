package session

import (
	"time"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
)

// RetryPolicy drives both retry tiers.
//
// ReconnectDelays is the inner tier: the wait before each reconnect attempt
// after an established connection dropped. Once it is used up the session
// counts as fully closed, waits CloseGrace and falls back to the outer tier,
// which retries the whole open sequence every RetryInterval until it works.
type RetryPolicy struct {
	ReconnectDelays []time.Duration
	RetryInterval   time.Duration
	CloseGrace      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ReconnectDelays: config.DefaultReconnectDelays(),
		RetryInterval:   3 * time.Second,
		CloseGrace:      5 * time.Second,
	}
}

// PolicyFromConfig picks the retry settings out of the client config.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.ReconnectDelays != nil {
		p.ReconnectDelays = append([]time.Duration(nil), cfg.ReconnectDelays...)
	}
	if cfg.RetryInterval > 0 {
		p.RetryInterval = cfg.RetryInterval
	}
	if cfg.CloseGrace >= 0 {
		p.CloseGrace = cfg.CloseGrace
	}
	return p
}

// innerDelay returns the wait before inner attempt n (1-based). ok is false
// when the inner tier is exhausted.
func (p RetryPolicy) innerDelay(n int) (time.Duration, bool) {
	if n < 1 || n > len(p.ReconnectDelays) {
		return 0, false
	}
	return p.ReconnectDelays[n-1], true
}
