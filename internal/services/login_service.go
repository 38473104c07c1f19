package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/async"
	"github.com/BradenHooton/bnetlogin/internal/auth"
	"github.com/BradenHooton/bnetlogin/internal/metrics"
	"github.com/BradenHooton/bnetlogin/internal/models"
	pkglogger "github.com/BradenHooton/bnetlogin/pkg/logger"
)

// AccountStore is the data-store surface the login chains use
type AccountStore interface {
	GetAuthentication(ctx context.Context, email string) (*models.AuthenticationRecord, error)
	UpdateAuthentication(ctx context.Context, accountID int64, ticket string, expiry time.Time) error
	GetTicketExpiry(ctx context.Context, ticket string) (*time.Time, error)
	UpdateTicketExpiry(ctx context.Context, ticket string, expiry time.Time) error
	ListGameAccounts(ctx context.Context, ticket string) ([]*models.GameAccount, error)
}

// FailedLoginHandler reacts to a wrong password on an account that is not banned
type FailedLoginHandler interface {
	OnFailedLogin(ctx context.Context, record *models.AuthenticationRecord, login, ipAddress string) (bool, error)
}

// Chain names, used for logs, spans and metrics
const (
	ChainLogin         = "login"
	ChainRefreshTicket = "refresh_ticket"
	ChainGameAccounts  = "game_accounts"
)

// LoginService builds the query chains behind the login endpoints. Nothing here blocks:
// each method returns the first step and the processor runs it.
type LoginService struct {
	accounts AccountStore
	tickets  *auth.TicketManager
	guard    FailedLoginHandler
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewLoginService creates a new LoginService
func NewLoginService(accounts AccountStore, tickets *auth.TicketManager, guard FailedLoginHandler, logger *slog.Logger, audit *pkglogger.AuditLogger, m *metrics.Metrics) *LoginService {
	return &LoginService{
		accounts: accounts,
		tickets:  tickets,
		guard:    guard,
		logger:   logger,
		audit:    audit,
		metrics:  m,
		now:      time.Now,
	}
}

// Authenticate checks a login and password and finishes with a *models.LoginResult.
// Unknown accounts and wrong passwords produce the same result.
func (s *LoginService) Authenticate(login, password, ipAddress string) async.Step {
	login = auth.NormalizeCredential(login)
	sentHash := auth.CalculatePasswordHash(login, password)

	return async.Query("load_authentication", func(ctx context.Context) (*models.AuthenticationRecord, error) {
		record, err := s.accounts.GetAuthentication(ctx, login)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return record, err
	}, func(ctx context.Context, record *models.AuthenticationRecord) async.Step {
		if record == nil {
			s.rejected(pkglogger.AuditEvent{
				EventType:     "login_failed",
				Login:         login,
				IPAddress:     ipAddress,
				FailureReason: metrics.OutcomeUnknownAccount,
			})
			return async.Finish(doneResult(""))
		}

		if !auth.PasswordsMatch(sentHash, record.PasswordHash) {
			return s.wrongPassword(record, login, ipAddress)
		}

		return s.issueTicket(record, login, ipAddress)
	})
}

func (s *LoginService) wrongPassword(record *models.AuthenticationRecord, login, ipAddress string) async.Step {
	event := pkglogger.AuditEvent{
		EventType:     "login_failed",
		AccountID:     record.ID,
		Login:         login,
		IPAddress:     ipAddress,
		FailureReason: metrics.OutcomeWrongPassword,
	}

	if record.IsBanned {
		event.FailureReason = metrics.OutcomeBanned
		return async.Exec("banned_account", func(ctx context.Context) error {
			s.rejected(event)
			return nil
		}, func(ctx context.Context) async.Step {
			return async.Finish(doneResult(""))
		})
	}

	return async.Query("failed_login", func(ctx context.Context) (bool, error) {
		return s.guard.OnFailedLogin(ctx, record, login, ipAddress)
	}, func(ctx context.Context, banned bool) async.Step {
		if banned {
			event.Metadata = map[string]string{"auto_ban": "true"}
		}
		s.rejected(event)
		return async.Finish(doneResult(""))
	})
}

func (s *LoginService) issueTicket(record *models.AuthenticationRecord, login, ipAddress string) async.Step {
	ticket, expiry, err := s.tickets.IssueOrReuse(record.LoginTicket, record.LoginTicketExpiry)
	if err != nil {
		s.metrics.LoginAttempt(metrics.OutcomeError)
		return async.Fail(err)
	}
	issued := ticket != record.LoginTicket

	return async.Exec("update_authentication", func(ctx context.Context) error {
		return s.accounts.UpdateAuthentication(ctx, record.ID, ticket, expiry)
	}, func(ctx context.Context) async.Step {
		if issued {
			s.metrics.TicketIssued()
		}
		s.metrics.LoginAttempt(metrics.OutcomeSuccess)
		s.audit.LogLoginAttempt(pkglogger.AuditEvent{
			EventType: "login_succeeded",
			AccountID: record.ID,
			Login:     login,
			IPAddress: ipAddress,
			Success:   true,
		})
		return async.Finish(doneResult(ticket))
	})
}

// rejected records a failed attempt
func (s *LoginService) rejected(event pkglogger.AuditEvent) {
	s.metrics.LoginAttempt(event.FailureReason)
	s.audit.LogLoginAttempt(event)
}

func doneResult(ticket string) *models.LoginResult {
	return &models.LoginResult{
		AuthenticationState: models.AuthenticationStateDone,
		LoginTicket:         ticket,
	}
}

// DecodeFailureResult is the fixed body answered to an undecodable login form
func DecodeFailureResult() *models.LoginResult {
	return &models.LoginResult{
		AuthenticationState: models.AuthenticationStateLogin,
		ErrorCode:           models.ErrorCodeUnableToDecode,
		ErrorMessage:        models.ErrorMessageUnableToDecode,
	}
}

// RefreshTicket extends an unexpired ticket and finishes with a *models.LoginRefreshResult
func (s *LoginService) RefreshTicket(ticket string) async.Step {
	return async.Query("load_ticket_expiry", func(ctx context.Context) (*time.Time, error) {
		expiry, err := s.accounts.GetTicketExpiry(ctx, ticket)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return expiry, err
	}, func(ctx context.Context, stored *time.Time) async.Step {
		newExpiry, err := s.tickets.Refresh(stored)
		s.metrics.TicketRefresh(err == nil)
		if err != nil {
			s.logger.Debug("login ticket not refreshed", slog.String("error", err.Error()))
			return async.Finish(&models.LoginRefreshResult{IsExpired: true})
		}

		return async.Exec("update_ticket_expiry", func(ctx context.Context) error {
			return s.accounts.UpdateTicketExpiry(ctx, ticket, newExpiry)
		}, func(ctx context.Context) async.Step {
			return async.Finish(&models.LoginRefreshResult{LoginTicketExpiry: uint64(newExpiry.Unix())})
		})
	})
}

// GameAccounts lists the sub-accounts of a ticket and finishes with a *models.GameAccountList
func (s *LoginService) GameAccounts(ticket string) async.Step {
	return async.Query("list_game_accounts", func(ctx context.Context) ([]*models.GameAccount, error) {
		return s.accounts.ListGameAccounts(ctx, ticket)
	}, func(ctx context.Context, accounts []*models.GameAccount) async.Step {
		return async.Finish(BuildGameAccountList(accounts, s.now()))
	})
}

// BuildGameAccountList projects stored game accounts into the client view at time now
func BuildGameAccountList(accounts []*models.GameAccount, now time.Time) *models.GameAccountList {
	list := &models.GameAccountList{GameAccounts: make([]models.GameAccountInfo, 0, len(accounts))}

	for _, account := range accounts {
		info := models.GameAccountInfo{
			DisplayName: models.GameAccountDisplayName(account.Username),
			Expansion:   uint32(account.Expansion),
		}

		if account.HasBan() {
			info.IsSuspended = account.UnbanDate.After(now)
			info.IsBanned = account.BanDate.Equal(*account.UnbanDate)
			info.SuspensionReason = account.BanReason
			info.SuspensionExpires = uint64(account.UnbanDate.Unix())
		}

		list.GameAccounts = append(list.GameAccounts, info)
	}

	return list
}
