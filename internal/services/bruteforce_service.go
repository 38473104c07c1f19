package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/database"
	"github.com/BradenHooton/bnetlogin/internal/metrics"
	"github.com/BradenHooton/bnetlogin/internal/models"
	pkglogger "github.com/BradenHooton/bnetlogin/pkg/logger"
)

// FailedLoginStatements builds the counter updates of the bruteforce transaction
type FailedLoginStatements interface {
	IncrementFailedLogins(accountID int64) database.Statement
	ResetFailedLogins(accountID int64) database.Statement
}

// BanStatements builds ban upserts
type BanStatements interface {
	AutoBan(ban models.BanRecord, now time.Time) (database.Statement, error)
}

// TransactionCommitter applies a transaction as one unit
type TransactionCommitter interface {
	CommitTransaction(ctx context.Context, t *database.Transaction) error
}

// BruteforceConfig holds the wrong-password policy
type BruteforceConfig struct {
	MaxWrongPassword uint32 // 0 disables counting and bans
	Logging          bool
	BanMode          models.BanMode
	BanDuration      time.Duration
}

// BruteforceGuard counts failed logins and bans once the threshold is reached
type BruteforceGuard struct {
	accounts FailedLoginStatements
	bans     BanStatements
	db       TransactionCommitter
	config   BruteforceConfig
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewBruteforceGuard creates a new BruteforceGuard
func NewBruteforceGuard(accounts FailedLoginStatements, bans BanStatements, db TransactionCommitter, config BruteforceConfig, logger *slog.Logger, audit *pkglogger.AuditLogger, m *metrics.Metrics) *BruteforceGuard {
	return &BruteforceGuard{
		accounts: accounts,
		bans:     bans,
		db:       db,
		config:   config,
		logger:   logger,
		audit:    audit,
		metrics:  m,
		now:      time.Now,
	}
}

// BuildTransaction assembles the statements for one failed attempt. The returned flag
// reports whether the attempt crosses the threshold. A nil transaction means the guard
// is disabled.
func (g *BruteforceGuard) BuildTransaction(record *models.AuthenticationRecord, ipAddress string) (*database.Transaction, bool, error) {
	if g.config.MaxWrongPassword == 0 {
		return nil, false, nil
	}

	trans := database.NewTransaction()
	trans.Append(g.accounts.IncrementFailedLogins(record.ID))

	if record.FailedLogins+1 < g.config.MaxWrongPassword {
		return trans, false, nil
	}

	ban, err := g.bans.AutoBan(models.BanRecord{
		Mode:      g.config.BanMode,
		AccountID: record.ID,
		IPAddress: ipAddress,
		Duration:  g.config.BanDuration,
	}, g.now())
	if err != nil {
		return nil, false, fmt.Errorf("failed to build auto ban: %w", err)
	}

	trans.Append(ban)
	trans.Append(g.accounts.ResetFailedLogins(record.ID))

	return trans, true, nil
}

// OnFailedLogin applies the wrong-password policy for an account that is not banned.
// It reports whether a ban was written.
func (g *BruteforceGuard) OnFailedLogin(ctx context.Context, record *models.AuthenticationRecord, login, ipAddress string) (bool, error) {
	if g.config.Logging {
		g.logger.Debug("attempted to connect with wrong password",
			slog.String("ip_address", ipAddress),
			slog.String("login", pkglogger.MaskLogin(login)),
			slog.Int64("account_id", record.ID),
		)
	}

	trans, banned, err := g.BuildTransaction(record, ipAddress)
	if err != nil {
		return false, err
	}
	if trans == nil {
		return false, nil
	}

	g.logger.Debug("failed login counted",
		slog.Int64("account_id", record.ID),
		slog.Uint64("failed_logins", uint64(record.FailedLogins)+1),
		slog.Uint64("max_wrong_password", uint64(g.config.MaxWrongPassword)),
	)

	if err := g.db.CommitTransaction(ctx, trans); err != nil {
		return false, fmt.Errorf("failed to commit failed login: %w", err)
	}

	if banned {
		g.metrics.AutoBan(g.config.BanMode.String())
		g.audit.LogAutoBan(g.config.BanMode.String(), record.ID, ipAddress, g.config.BanDuration)
	}

	return banned, nil
}
