package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/database"
	"github.com/BradenHooton/bnetlogin/internal/models"
)

const (
	insertAccountAutoBanQuery = `
		INSERT INTO battlenet_account_bans (id, bandate, unbandate, bannedby, banreason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET bandate = EXCLUDED.bandate, unbandate = EXCLUDED.unbandate,
			bannedby = EXCLUDED.bannedby, banreason = EXCLUDED.banreason
	`

	insertIPAutoBanQuery = `
		INSERT INTO ip_banned (ip, bandate, unbandate, bannedby, banreason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ip) DO UPDATE
		SET bandate = EXCLUDED.bandate, unbandate = EXCLUDED.unbandate,
			bannedby = EXCLUDED.bannedby, banreason = EXCLUDED.banreason
	`

	selectIPBannedQuery = `
		SELECT EXISTS (
			SELECT 1 FROM ip_banned
			WHERE ip = $1 AND (unbandate > NOW() OR unbandate = bandate)
		)
	`

	deleteExpiredIPBansQuery = `DELETE FROM ip_banned WHERE unbandate <= NOW() AND unbandate <> bandate`

	deleteExpiredAccountBansQuery = `DELETE FROM battlenet_account_bans WHERE unbandate <= NOW() AND unbandate <> bandate`

	deactivateExpiredGameAccountBansQuery = `
		UPDATE account_banned SET active = FALSE
		WHERE active AND unbandate <= NOW() AND unbandate <> bandate
	`
)

// BanRepository handles automatic ban records
type BanRepository struct {
	pool database.Pool
}

// NewBanRepository creates a new BanRepository
func NewBanRepository(db *database.DB) *BanRepository {
	return &BanRepository{pool: db.Pool}
}

// AutoBan builds the upsert for a ban record starting at now.
// A repeated ban overwrites the existing window.
func (r *BanRepository) AutoBan(ban models.BanRecord, now time.Time) (database.Statement, error) {
	unban := now.Add(ban.Duration)

	switch ban.Mode {
	case models.BanModeAccount:
		return database.Statement{
			Name: "insert_account_auto_ban",
			SQL:  insertAccountAutoBanQuery,
			Args: []any{ban.AccountID, now, unban, models.AutoBanAuthor, models.AutoBanReason},
		}, nil
	case models.BanModeIP:
		return database.Statement{
			Name: "insert_ip_auto_ban",
			SQL:  insertIPAutoBanQuery,
			Args: []any{ban.IPAddress, now, unban, models.AutoBanAuthor, models.AutoBanReason},
		}, nil
	default:
		return database.Statement{}, fmt.Errorf("unsupported ban mode %v", ban.Mode)
	}
}

// IsIPBanned reports whether an address has an active ban
func (r *BanRepository) IsIPBanned(ctx context.Context, ip string) (bool, error) {
	var banned bool
	if err := r.pool.QueryRow(ctx, selectIPBannedQuery, ip).Scan(&banned); err != nil {
		return false, database.MapPostgresError(err)
	}
	return banned, nil
}

// DeleteExpiredBans removes expired temporary bans; permanent bans (bandate = unbandate) are kept
func (r *BanRepository) DeleteExpiredBans(ctx context.Context) (int64, error) {
	var total int64

	for _, query := range []string{deleteExpiredIPBansQuery, deleteExpiredAccountBansQuery, deactivateExpiredGameAccountBansQuery} {
		result, err := r.pool.Exec(ctx, query)
		if err != nil {
			return total, database.MapPostgresError(err)
		}
		total += result.RowsAffected()
	}

	return total, nil
}
