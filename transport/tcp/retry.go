// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"errors"
	"time"

	"github.com/momentics/sockwire/api"
	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/transport"
)

// RetryPolicy is a fixed-interval reconnect schedule.
type RetryPolicy struct {
	Interval time.Duration
	// Attempts <= 0 retries until ctx is done.
	Attempts int
}

// DefaultRetryPolicy retries every five seconds without limit.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Interval: 5 * time.Second}
}

// DialRetry calls c.Connect until it succeeds, the policy runs out or ctx
// is done. Only connect and resolution failures are retried. Connect
// itself never retries; this is the opt-in caller-side loop.
func DialRetry(ctx context.Context, c *Connector, host string, port uint16, policy RetryPolicy) (*transport.Transport, error) {
	if c == nil {
		c = new(Connector)
	}
	log := logging.Logger().Component("connector")
	for attempt := 1; ; attempt++ {
		t, err := c.Connect(ctx, host, port)
		if err == nil {
			return t, nil
		}
		if !api.Retryable(err) && !errors.Is(err, api.ErrResolution) {
			return nil, err
		}
		if policy.Attempts > 0 && attempt >= policy.Attempts {
			return nil, err
		}
		log.WithError(err).WithFields(logging.LogFields{
			"host":     host,
			"port":     port,
			"attempt":  attempt,
			"retry_in": policy.Interval,
		}).Warn("cannot connect, retrying")

		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
