package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/async"
	"github.com/BradenHooton/bnetlogin/internal/auth"
	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLogin    = "user@example.com"
	testPassword = "secret"
	testIP       = "198.51.100.7"
)

func newTestLoginService(t *testing.T, store AccountStore, guard FailedLoginHandler) (*LoginService, *async.Processor) {
	t.Helper()

	p := async.NewProcessor(4, slog.Default(), nil)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	s := NewLoginService(store, auth.NewTicketManager(time.Hour), guard, slog.Default(), nil, nil)
	return s, p
}

func runChain[T any](t *testing.T, p *async.Processor, name string, step async.Step) (T, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return async.Await[T](ctx, p.Submit(ctx, name, step))
}

func storedAccount(ticket string, expiry *time.Time) *models.AuthenticationRecord {
	return &models.AuthenticationRecord{
		ID:                42,
		PasswordHash:      auth.CalculatePasswordHash(testLogin, testPassword),
		LoginTicket:       ticket,
		LoginTicketExpiry: expiry,
	}
}

func TestLoginService_Authenticate_UnknownAccount(t *testing.T) {
	guard := &MockFailedLoginHandler{}
	var lookedUp string
	store := &MockAccountStore{
		GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
			lookedUp = email
			return nil, models.ErrNotFound
		},
	}
	s, p := newTestLoginService(t, store, guard)

	result, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate(testLogin, testPassword, testIP))
	require.NoError(t, err)

	assert.Equal(t, models.AuthenticationStateDone, result.AuthenticationState)
	assert.Empty(t, result.LoginTicket)
	assert.Equal(t, "USER@EXAMPLE.COM", lookedUp)
	assert.Zero(t, guard.Calls())
}

func TestLoginService_Authenticate_WrongPasswordIndistinguishable(t *testing.T) {
	guard := &MockFailedLoginHandler{}
	store := &MockAccountStore{
		GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
			if email == "USER@EXAMPLE.COM" {
				return storedAccount("", nil), nil
			}
			return nil, models.ErrNotFound
		},
	}
	s, p := newTestLoginService(t, store, guard)

	wrong, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate(testLogin, "not-the-password", testIP))
	require.NoError(t, err)
	unknown, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate("nobody@example.com", testPassword, testIP))
	require.NoError(t, err)

	wrongJSON, err := json.Marshal(wrong)
	require.NoError(t, err)
	unknownJSON, err := json.Marshal(unknown)
	require.NoError(t, err)

	assert.JSONEq(t, string(unknownJSON), string(wrongJSON))
	assert.Equal(t, 1, guard.Calls())
}

func TestLoginService_Authenticate_BannedSkipsGuard(t *testing.T) {
	guard := &MockFailedLoginHandler{}
	store := &MockAccountStore{
		GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
			record := storedAccount("", nil)
			record.IsBanned = true
			return record, nil
		},
	}
	s, p := newTestLoginService(t, store, guard)

	result, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate(testLogin, "wrong", testIP))
	require.NoError(t, err)

	assert.Equal(t, models.AuthenticationStateDone, result.AuthenticationState)
	assert.Zero(t, guard.Calls())
}

func TestLoginService_Authenticate_IssuesTicket(t *testing.T) {
	var gotTicket string
	var gotExpiry time.Time
	store := &MockAccountStore{
		GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
			return storedAccount("", nil), nil
		},
		UpdateAuthenticationFunc: func(ctx context.Context, accountID int64, ticket string, expiry time.Time) error {
			assert.Equal(t, int64(42), accountID)
			gotTicket, gotExpiry = ticket, expiry
			return nil
		},
	}
	s, p := newTestLoginService(t, store, &MockFailedLoginHandler{})

	before := time.Now()
	result, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate("USER@example.com", "SECRET", testIP))
	require.NoError(t, err)

	assert.Equal(t, models.AuthenticationStateDone, result.AuthenticationState)
	assert.Regexp(t, `^TC-[0-9A-F]{40}$`, result.LoginTicket)
	assert.Equal(t, result.LoginTicket, gotTicket)
	assert.WithinDuration(t, before.Add(time.Hour), gotExpiry, 5*time.Second)
}

func TestLoginService_Authenticate_ReusesValidTicket(t *testing.T) {
	var mu sync.Mutex
	expiry := time.Now().Add(10 * time.Minute)
	record := storedAccount("TC-EXISTING", &expiry)
	var expiries []time.Time

	store := &MockAccountStore{
		GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
			mu.Lock()
			defer mu.Unlock()
			copied := *record
			return &copied, nil
		},
		UpdateAuthenticationFunc: func(ctx context.Context, accountID int64, ticket string, newExpiry time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			record.LoginTicket = ticket
			record.LoginTicketExpiry = &newExpiry
			expiries = append(expiries, newExpiry)
			return nil
		},
	}
	s, p := newTestLoginService(t, store, &MockFailedLoginHandler{})

	first, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate(testLogin, testPassword, testIP))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate(testLogin, testPassword, testIP))
	require.NoError(t, err)

	assert.Equal(t, "TC-EXISTING", first.LoginTicket)
	assert.Equal(t, "TC-EXISTING", second.LoginTicket)
	require.Len(t, expiries, 2)
	assert.True(t, expiries[1].After(expiries[0]))
}

func TestLoginService_Authenticate_ReplacesExpiredTicket(t *testing.T) {
	expired := time.Now().Add(-time.Minute)
	store := &MockAccountStore{
		GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
			return storedAccount("TC-OLD", &expired), nil
		},
	}
	s, p := newTestLoginService(t, store, &MockFailedLoginHandler{})

	result, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate(testLogin, testPassword, testIP))
	require.NoError(t, err)
	assert.NotEqual(t, "TC-OLD", result.LoginTicket)
}

func TestLoginService_Authenticate_StoreFailures(t *testing.T) {
	storeErr := errors.New("connection refused")

	tests := []struct {
		name  string
		store *MockAccountStore
		guard *MockFailedLoginHandler
		pass  string
	}{
		{
			name: "lookup fails",
			store: &MockAccountStore{
				GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
					return nil, storeErr
				},
			},
			guard: &MockFailedLoginHandler{},
			pass:  testPassword,
		},
		{
			name: "ticket write fails",
			store: &MockAccountStore{
				GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
					return storedAccount("", nil), nil
				},
				UpdateAuthenticationFunc: func(ctx context.Context, accountID int64, ticket string, expiry time.Time) error {
					return storeErr
				},
			},
			guard: &MockFailedLoginHandler{},
			pass:  testPassword,
		},
		{
			name: "guard commit fails",
			store: &MockAccountStore{
				GetAuthenticationFunc: func(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
					return storedAccount("", nil), nil
				},
			},
			guard: &MockFailedLoginHandler{
				OnFailedLoginFunc: func(ctx context.Context, record *models.AuthenticationRecord, login, ipAddress string) (bool, error) {
					return false, storeErr
				},
			},
			pass: "wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, p := newTestLoginService(t, tt.store, tt.guard)

			_, err := runChain[*models.LoginResult](t, p, ChainLogin, s.Authenticate(testLogin, tt.pass, testIP))
			assert.ErrorIs(t, err, models.ErrChainAborted)
			assert.ErrorIs(t, err, storeErr)
		})
	}
}

func TestLoginService_RefreshTicket(t *testing.T) {
	t.Run("unexpired ticket is extended", func(t *testing.T) {
		stored := time.Now().Add(time.Minute)
		var updated time.Time
		store := &MockAccountStore{
			GetTicketExpiryFunc: func(ctx context.Context, ticket string) (*time.Time, error) {
				assert.Equal(t, "TC-ABC", ticket)
				return &stored, nil
			},
			UpdateTicketExpiryFunc: func(ctx context.Context, ticket string, expiry time.Time) error {
				updated = expiry
				return nil
			},
		}
		s, p := newTestLoginService(t, store, nil)

		result, err := runChain[*models.LoginRefreshResult](t, p, ChainRefreshTicket, s.RefreshTicket("TC-ABC"))
		require.NoError(t, err)

		assert.False(t, result.IsExpired)
		assert.Equal(t, uint64(updated.Unix()), result.LoginTicketExpiry)
		assert.True(t, updated.After(stored))
	})

	t.Run("expired ticket is not touched", func(t *testing.T) {
		stored := time.Now().Add(-time.Minute)
		store := &MockAccountStore{
			GetTicketExpiryFunc: func(ctx context.Context, ticket string) (*time.Time, error) {
				return &stored, nil
			},
			UpdateTicketExpiryFunc: func(ctx context.Context, ticket string, expiry time.Time) error {
				t.Error("expired ticket must not be updated")
				return nil
			},
		}
		s, p := newTestLoginService(t, store, nil)

		result, err := runChain[*models.LoginRefreshResult](t, p, ChainRefreshTicket, s.RefreshTicket("TC-ABC"))
		require.NoError(t, err)
		assert.Equal(t, &models.LoginRefreshResult{IsExpired: true}, result)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		s, p := newTestLoginService(t, &MockAccountStore{}, nil)

		result, err := runChain[*models.LoginRefreshResult](t, p, ChainRefreshTicket, s.RefreshTicket("TC-NOPE"))
		require.NoError(t, err)
		assert.True(t, result.IsExpired)
	})
}

func TestLoginService_GameAccounts(t *testing.T) {
	store := &MockAccountStore{
		ListGameAccountsFunc: func(ctx context.Context, ticket string) ([]*models.GameAccount, error) {
			return []*models.GameAccount{{ID: 1, Username: "42#1", Expansion: 9}}, nil
		},
	}
	s, p := newTestLoginService(t, store, nil)

	result, err := runChain[*models.GameAccountList](t, p, ChainGameAccounts, s.GameAccounts("TC-ABC"))
	require.NoError(t, err)
	require.Len(t, result.GameAccounts, 1)
	assert.Equal(t, "WoW1", result.GameAccounts[0].DisplayName)
	assert.Equal(t, uint32(9), result.GameAccounts[0].Expansion)
}

func TestBuildGameAccountList(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	accounts := []*models.GameAccount{
		{Username: "plainname", Expansion: 2},
		{Username: "1#2", BanDate: &past, UnbanDate: &future, BanReason: "spam"},
		{Username: "1#3", BanDate: &future, UnbanDate: &future},
		{Username: "1#4", BanDate: &past, UnbanDate: &past},
		{Username: "1#5", BanDate: &past, UnbanDate: &now},
	}

	list := BuildGameAccountList(accounts, now)
	require.Len(t, list.GameAccounts, 5)

	assert.Equal(t, models.GameAccountInfo{DisplayName: "plainname", Expansion: 2}, list.GameAccounts[0])

	suspended := list.GameAccounts[1]
	assert.True(t, suspended.IsSuspended)
	assert.False(t, suspended.IsBanned)
	assert.Equal(t, "spam", suspended.SuspensionReason)
	assert.Equal(t, uint64(future.Unix()), suspended.SuspensionExpires)

	assert.True(t, list.GameAccounts[2].IsBanned)
	assert.True(t, list.GameAccounts[2].IsSuspended)

	assert.True(t, list.GameAccounts[3].IsBanned)
	assert.False(t, list.GameAccounts[3].IsSuspended)

	assert.False(t, list.GameAccounts[4].IsSuspended, "ban ending now is not a suspension")
}

func TestBuildGameAccountList_Empty(t *testing.T) {
	list := BuildGameAccountList(nil, time.Now())

	body, err := json.Marshal(list)
	require.NoError(t, err)
	assert.JSONEq(t, `{"game_accounts":[]}`, string(body))
}

func TestDecodeFailureResult(t *testing.T) {
	body, err := json.Marshal(DecodeFailureResult())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"authentication_state": "LOGIN",
		"error_code": "UNABLE_TO_DECODE",
		"error_message": "There was an internal error while connecting to Battle.net. Please try again later."
	}`, string(body))
}
