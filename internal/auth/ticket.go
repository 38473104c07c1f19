package auth

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/models"
)

const (
	// TicketPrefix marks tickets issued by this service
	TicketPrefix = "TC-"

	ticketRandomBytes = 20
)

// TicketManager decides when a login ticket is issued, reused or renewed
type TicketManager struct {
	duration time.Duration
	random   io.Reader
	now      func() time.Time
}

// NewTicketManager creates a TicketManager issuing tickets valid for duration
func NewTicketManager(duration time.Duration) *TicketManager {
	return &TicketManager{
		duration: duration,
		random:   rand.Reader,
		now:      time.Now,
	}
}

// IssueOrReuse keeps the existing ticket while it is unexpired and issues a new one otherwise.
// The returned expiry is always now plus the ticket duration.
func (m *TicketManager) IssueOrReuse(existing string, expiry *time.Time) (string, time.Time, error) {
	now := m.now()
	newExpiry := now.Add(m.duration)

	if existing != "" && expiry != nil && expiry.After(now) {
		return existing, newExpiry, nil
	}

	ticket, err := m.generate()
	if err != nil {
		return "", time.Time{}, err
	}
	return ticket, newExpiry, nil
}

// Refresh returns the new expiry for a stored expiry that is still in the future.
// An absent or elapsed expiry yields models.ErrTicketExpired.
func (m *TicketManager) Refresh(storedExpiry *time.Time) (time.Time, error) {
	now := m.now()
	if storedExpiry == nil || !storedExpiry.After(now) {
		return time.Time{}, models.ErrTicketExpired
	}
	return now.Add(m.duration), nil
}

func (m *TicketManager) generate() (string, error) {
	buf := make([]byte, ticketRandomBytes)
	if _, err := io.ReadFull(m.random, buf); err != nil {
		return "", fmt.Errorf("failed to generate login ticket: %w", err)
	}
	return TicketPrefix + upperHex(buf), nil
}
