// Package startup waits for the media server to become reachable.
// Containerized deployments often start this process before Jellyfin
// finishes booting, so the first probe frequently fails.
package startup

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// WaitConfig configures the exponential backoff while probing.
type WaitConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultWaitConfig covers a typical server boot window.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		InitialDelay: 5 * time.Second,
		MaxDelay:     2 * time.Minute,
		MaxAttempts:  6,
	}
}

// isNetworkError reports whether an error looks like the server not being
// up yet, as opposed to a misconfiguration that retrying cannot fix.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"connection refused",
		"no such host",
		"timeout",
		"network is unreachable",
		"no route to host",
		"dial tcp",
		"i/o timeout",
		"connection reset",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

// WaitForServer runs probe until it succeeds, backing off between network
// failures. A non-network error fails immediately: retrying a bad API key
// never helps.
func WaitForServer(ctx context.Context, cfg WaitConfig, probe func(ctx context.Context) error, logger zerolog.Logger) error {
	log := logger.With().Str("component", "startup").Logger()
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := probe(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("server reachable")
			}
			return nil
		}
		lastErr = err

		if !isNetworkError(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", cfg.MaxAttempts).
			Dur("nextProbeIn", delay).
			Msg("server not reachable yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
