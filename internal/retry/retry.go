// Package retry wraps actor invocation with exponential backoff and
// classifies kernel errors as retryable or terminal, mirroring the
// backoff/classification shape used for outbound A2A calls elsewhere in
// the stack, adapted to the kernel's closed error-kind taxonomy.
package retry

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"time"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

// Config configures a with_retry invocation.
type Config struct {
	// MaxRetries is the number of retries after the first attempt; total
	// attempts made is MaxRetries+1.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay each retry: delay_n = initial*multiplier^n.
	Multiplier float64
	// Jitter, when true, perturbs each computed delay by ±25%.
	Jitter bool
	// NonRetryableKinds overrides the default non-retryable kind set. Nil
	// selects the default: validation, authentication, permission-denied,
	// not-found.
	NonRetryableKinds map[kernelerr.Kind]bool
}

// DefaultConfig returns the kernel's default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func defaultNonRetryableKinds() map[kernelerr.Kind]bool {
	return map[kernelerr.Kind]bool{
		kernelerr.Validation:      true,
		kernelerr.Authentication:  true,
		kernelerr.PermissionDenied: true,
		kernelerr.NotFound:        true,
	}
}

var nonRetryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)validation`),
	regexp.MustCompile(`(?i)invalid`),
	regexp.MustCompile(`(?i)unauthorized`),
	regexp.MustCompile(`(?i)forbidden`),
	regexp.MustCompile(`(?i)not found`),
	regexp.MustCompile(`(?i)permission`),
}

// IsRetryable classifies err per the kernel's retry policy: an error
// whose kind is in cfg's non-retryable set, or whose message matches a
// canonical non-retryable pattern, is not retried.
func IsRetryable(err error, cfg Config) bool {
	if err == nil {
		return false
	}
	nonRetryable := cfg.NonRetryableKinds
	if nonRetryable == nil {
		nonRetryable = defaultNonRetryableKinds()
	}
	if kind, ok := kernelerr.KindOf(err); ok && nonRetryable[kind] {
		return false
	}
	msg := err.Error()
	for _, p := range nonRetryablePatterns {
		if p.MatchString(msg) {
			return false
		}
	}
	return true
}

// Do runs fn, retrying on a retryable failure per cfg's exponential
// backoff until fn succeeds or MaxRetries+1 attempts have been made.
// Sleeps respect ctx cancellation.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	var lastErr error
	attempts := cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsRetryable(err, cfg) {
			return nil, err
		}
		if attempt == attempts-1 {
			break
		}
		delay := backoffDelay(cfg, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func backoffDelay(cfg Config, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 1
	}
	raw := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt))
	if cfg.MaxDelay > 0 && raw > float64(cfg.MaxDelay) {
		raw = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		perturb := raw * 0.25 * (rand.Float64()*2 - 1) //nolint:gosec // backoff jitter, not security sensitive
		raw += perturb
		if raw < 0 {
			raw = 0
		}
	}
	return time.Duration(raw)
}
