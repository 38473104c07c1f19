package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/database"
	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/jackc/pgx/v5"
)

const (
	selectAuthenticationQuery = `
		SELECT ba.id, ba.sha_pass_hash, ba.failed_logins, COALESCE(ba.login_ticket, ''), ba.login_ticket_expiry,
			(bab.id IS NOT NULL AND (bab.unbandate > NOW() OR bab.unbandate = bab.bandate)) AS is_banned
		FROM battlenet_accounts ba
		LEFT JOIN battlenet_account_bans bab ON ba.id = bab.id
		WHERE ba.email = $1
	`

	updateAuthenticationQuery = `UPDATE battlenet_accounts SET login_ticket = $1, login_ticket_expiry = $2 WHERE id = $3`

	selectExistingAuthenticationQuery = `SELECT login_ticket_expiry FROM battlenet_accounts WHERE login_ticket = $1`

	updateExistingAuthenticationQuery = `UPDATE battlenet_accounts SET login_ticket_expiry = $1 WHERE login_ticket = $2`

	selectGameAccountListQuery = `
		SELECT a.id, a.username, a.expansion, ab.bandate, ab.unbandate, ab.banreason
		FROM account a
		LEFT JOIN account_banned ab ON a.id = ab.id AND ab.active
		INNER JOIN battlenet_accounts ba ON a.battlenet_account = ba.id
		WHERE ba.login_ticket = $1
		ORDER BY a.id
	`

	incrementFailedLoginsQuery = `UPDATE battlenet_accounts SET failed_logins = failed_logins + 1 WHERE id = $1`

	resetFailedLoginsQuery = `UPDATE battlenet_accounts SET failed_logins = 0 WHERE id = $1`
)

// AccountRepository handles battlenet account and game account queries
type AccountRepository struct {
	pool database.Pool
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// GetAuthentication loads the credential and ticket state for a normalized login name
func (r *AccountRepository) GetAuthentication(ctx context.Context, email string) (*models.AuthenticationRecord, error) {
	var record models.AuthenticationRecord
	var failedLogins int32

	err := r.pool.QueryRow(ctx, selectAuthenticationQuery, email).Scan(
		&record.ID, &record.PasswordHash, &failedLogins,
		&record.LoginTicket, &record.LoginTicketExpiry, &record.IsBanned,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if failedLogins > 0 {
		record.FailedLogins = uint32(failedLogins)
	}
	return &record, nil
}

// UpdateAuthentication stores the ticket and its expiry for an account
func (r *AccountRepository) UpdateAuthentication(ctx context.Context, accountID int64, ticket string, expiry time.Time) error {
	result, err := r.pool.Exec(ctx, updateAuthenticationQuery, ticket, expiry, accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetTicketExpiry returns the stored expiry of a ticket
func (r *AccountRepository) GetTicketExpiry(ctx context.Context, ticket string) (*time.Time, error) {
	var expiry *time.Time
	if err := r.pool.QueryRow(ctx, selectExistingAuthenticationQuery, ticket).Scan(&expiry); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return expiry, nil
}

// UpdateTicketExpiry moves the expiry of an existing ticket
func (r *AccountRepository) UpdateTicketExpiry(ctx context.Context, ticket string, expiry time.Time) error {
	if _, err := r.pool.Exec(ctx, updateExistingAuthenticationQuery, expiry, ticket); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// ListGameAccounts returns the game accounts owned by the holder of a ticket
func (r *AccountRepository) ListGameAccounts(ctx context.Context, ticket string) ([]*models.GameAccount, error) {
	rows, err := r.pool.Query(ctx, selectGameAccountListQuery, ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to query game accounts: %w", err)
	}

	return scanGameAccountRows(rows)
}

func scanGameAccountRows(rows pgx.Rows) ([]*models.GameAccount, error) {
	defer rows.Close()

	accounts := make([]*models.GameAccount, 0)

	for rows.Next() {
		var account models.GameAccount
		var expansion int16
		var banReason *string

		if err := rows.Scan(&account.ID, &account.Username, &expansion, &account.BanDate, &account.UnbanDate, &banReason); err != nil {
			return nil, fmt.Errorf("failed to scan game account: %w", err)
		}

		if expansion > 0 {
			account.Expansion = uint8(expansion)
		}
		if banReason != nil {
			account.BanReason = *banReason
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

// IncrementFailedLogins builds the counter increment for the bruteforce transaction
func (r *AccountRepository) IncrementFailedLogins(accountID int64) database.Statement {
	return database.Statement{Name: "increment_failed_logins", SQL: incrementFailedLoginsQuery, Args: []any{accountID}}
}

// ResetFailedLogins builds the counter reset for the bruteforce transaction
func (r *AccountRepository) ResetFailedLogins(accountID int64) database.Statement {
	return database.Statement{Name: "reset_failed_logins", SQL: resetFailedLoginsQuery, Args: []any{accountID}}
}
