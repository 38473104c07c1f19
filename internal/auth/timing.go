package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads failed logins so that "unknown account" and "wrong password"
// take about the same time to answer
type FailureDelay struct {
	base   time.Duration
	jitter time.Duration
}

// NewFailureDelay creates a FailureDelay; a zero base and jitter disables it
func NewFailureDelay(base, jitter time.Duration) *FailureDelay {
	return &FailureDelay{base: base, jitter: jitter}
}

// Enabled reports whether any padding is applied
func (d *FailureDelay) Enabled() bool {
	return d != nil && (d.base > 0 || d.jitter > 0)
}

// cryptoRandDuration returns a secure random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// Target returns the padded duration for one failure
func (d *FailureDelay) Target() time.Duration {
	if !d.Enabled() {
		return 0
	}
	return d.base + cryptoRandDuration(d.jitter)
}

// WaitFrom sleeps until at least Target() has elapsed since start, or ctx is done
func (d *FailureDelay) WaitFrom(ctx context.Context, start time.Time) {
	remaining := d.Target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
