package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/database"
	"github.com/BradenHooton/bnetlogin/internal/models"
)

// MockAccountStore implements AccountStore for testing
type MockAccountStore struct {
	GetAuthenticationFunc    func(ctx context.Context, email string) (*models.AuthenticationRecord, error)
	UpdateAuthenticationFunc func(ctx context.Context, accountID int64, ticket string, expiry time.Time) error
	GetTicketExpiryFunc      func(ctx context.Context, ticket string) (*time.Time, error)
	UpdateTicketExpiryFunc   func(ctx context.Context, ticket string, expiry time.Time) error
	ListGameAccountsFunc     func(ctx context.Context, ticket string) ([]*models.GameAccount, error)
}

func (m *MockAccountStore) GetAuthentication(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
	if m.GetAuthenticationFunc != nil {
		return m.GetAuthenticationFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) UpdateAuthentication(ctx context.Context, accountID int64, ticket string, expiry time.Time) error {
	if m.UpdateAuthenticationFunc != nil {
		return m.UpdateAuthenticationFunc(ctx, accountID, ticket, expiry)
	}
	return nil
}

func (m *MockAccountStore) GetTicketExpiry(ctx context.Context, ticket string) (*time.Time, error) {
	if m.GetTicketExpiryFunc != nil {
		return m.GetTicketExpiryFunc(ctx, ticket)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) UpdateTicketExpiry(ctx context.Context, ticket string, expiry time.Time) error {
	if m.UpdateTicketExpiryFunc != nil {
		return m.UpdateTicketExpiryFunc(ctx, ticket, expiry)
	}
	return nil
}

func (m *MockAccountStore) ListGameAccounts(ctx context.Context, ticket string) ([]*models.GameAccount, error) {
	if m.ListGameAccountsFunc != nil {
		return m.ListGameAccountsFunc(ctx, ticket)
	}
	return []*models.GameAccount{}, nil
}

// MockFailedLoginHandler implements FailedLoginHandler for testing
type MockFailedLoginHandler struct {
	OnFailedLoginFunc func(ctx context.Context, record *models.AuthenticationRecord, login, ipAddress string) (bool, error)

	mu    sync.Mutex
	calls int
}

func (m *MockFailedLoginHandler) OnFailedLogin(ctx context.Context, record *models.AuthenticationRecord, login, ipAddress string) (bool, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.OnFailedLoginFunc != nil {
		return m.OnFailedLoginFunc(ctx, record, login, ipAddress)
	}
	return false, nil
}

func (m *MockFailedLoginHandler) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// stubStatements builds statements that only carry a name and arguments
type stubStatements struct{}

func (stubStatements) IncrementFailedLogins(accountID int64) database.Statement {
	return database.Statement{Name: "increment_failed_logins", Args: []any{accountID}}
}

func (stubStatements) ResetFailedLogins(accountID int64) database.Statement {
	return database.Statement{Name: "reset_failed_logins", Args: []any{accountID}}
}

func (stubStatements) AutoBan(ban models.BanRecord, now time.Time) (database.Statement, error) {
	if ban.Mode == models.BanModeAccount {
		return database.Statement{Name: "insert_account_auto_ban", Args: []any{ban.AccountID, now, now.Add(ban.Duration)}}, nil
	}
	return database.Statement{Name: "insert_ip_auto_ban", Args: []any{ban.IPAddress, now, now.Add(ban.Duration)}}, nil
}

// memoryStore applies committed statements to an in-memory account, all or nothing
type memoryStore struct {
	mu        sync.Mutex
	failed    uint32
	bans      int
	commits   int
	commitErr error
}

func (s *memoryStore) CommitTransaction(_ context.Context, t *database.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		return s.commitErr
	}

	failed, bans := s.failed, s.bans
	for _, stmt := range t.Statements() {
		switch stmt.Name {
		case "increment_failed_logins":
			failed++
		case "reset_failed_logins":
			failed = 0
		case "insert_account_auto_ban", "insert_ip_auto_ban":
			bans++
		}
	}
	s.failed, s.bans = failed, bans
	s.commits++
	return nil
}

func (s *memoryStore) record(id int64) *models.AuthenticationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.AuthenticationRecord{ID: id, FailedLogins: s.failed}
}
