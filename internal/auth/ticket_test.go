package auth

import (
	"bytes"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func newTestTicketManager(now time.Time) *TicketManager {
	m := NewTicketManager(time.Hour)
	m.now = func() time.Time { return now }
	return m
}

func TestTicketManager_IssueOrReuse(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name      string
		existing  string
		expiry    *time.Time
		wantReuse bool
	}{
		{name: "no ticket", existing: "", expiry: nil},
		{name: "valid ticket", existing: "TC-OLD", expiry: &future, wantReuse: true},
		{name: "expired ticket", existing: "TC-OLD", expiry: &past},
		{name: "expiry equal to now", existing: "TC-OLD", expiry: &now},
		{name: "ticket without expiry", existing: "TC-OLD", expiry: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestTicketManager(now)

			ticket, expiry, err := m.IssueOrReuse(tt.existing, tt.expiry)
			require.NoError(t, err)

			if tt.wantReuse {
				assert.Equal(t, tt.existing, ticket)
			} else {
				assert.NotEqual(t, tt.existing, ticket)
				assert.Regexp(t, regexp.MustCompile(`^TC-[0-9A-F]{40}$`), ticket)
			}
			assert.Equal(t, now.Add(time.Hour), expiry)
		})
	}
}

func TestTicketManager_IssueUsesRandomSource(t *testing.T) {
	m := newTestTicketManager(time.Now())
	m.random = bytes.NewReader(bytes.Repeat([]byte{0xab}, ticketRandomBytes))

	ticket, _, err := m.IssueOrReuse("", nil)
	require.NoError(t, err)
	assert.Equal(t, "TC-ABABABABABABABABABABABABABABABABABABABAB", ticket)
}

func TestTicketManager_IssueUnique(t *testing.T) {
	m := NewTicketManager(time.Hour)
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		ticket, _, err := m.IssueOrReuse("", nil)
		require.NoError(t, err)
		_, dup := seen[ticket]
		require.False(t, dup, "duplicate ticket %s", ticket)
		seen[ticket] = struct{}{}
	}
}

func TestTicketManager_IssueRandomFailure(t *testing.T) {
	m := newTestTicketManager(time.Now())
	m.random = failingReader{}

	_, _, err := m.IssueOrReuse("", nil)
	assert.ErrorContains(t, err, "entropy exhausted")
}

func TestTicketManager_Refresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := newTestTicketManager(now)

	future := now.Add(time.Second)
	expiry, err := m.Refresh(&future)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiry)

	_, err = m.Refresh(&now)
	assert.ErrorIs(t, err, models.ErrTicketExpired, "expiry equal to now is expired")

	past := now.Add(-time.Second)
	_, err = m.Refresh(&past)
	assert.ErrorIs(t, err, models.ErrTicketExpired)

	_, err = m.Refresh(nil)
	assert.ErrorIs(t, err, models.ErrTicketExpired)
}
