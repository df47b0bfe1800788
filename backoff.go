package gobayeux

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines the delay schedule applied between consecutive
// failed requests, on top of whatever interval the server advised.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultBackoffConfig returns the schedule used when none is configured.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// backoff tracks consecutive failures. Delays never shrink while failures
// keep coming, even with jitter, and reset on the first success.
type backoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
	last    time.Duration
}

func newBackoff(cfg BackoffConfig, rng *rand.Rand) *backoff {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &backoff{cfg: cfg, rng: rng}
}

// Next records a failure and returns how long to wait before the next
// attempt.
func (b *backoff) Next() time.Duration {
	b.attempt++
	delay := NextBackoffDelay(b.cfg, b.attempt, b.rng)
	if delay < b.last {
		delay = b.last
	}
	b.last = delay
	return delay
}

// Attempts is the number of consecutive failures recorded.
func (b *backoff) Attempts() int {
	return b.attempt
}

func (b *backoff) Reset() {
	b.attempt = 0
	b.last = 0
}
