//go:build integration

package repositories_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/auth"
	"github.com/BradenHooton/bnetlogin/internal/database"
	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/BradenHooton/bnetlogin/internal/repositories"
	"github.com/BradenHooton/bnetlogin/internal/services"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupDatabase starts PostgreSQL in a container and applies the migrations
func setupDatabase(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("auth"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, database.Migrate(ctx, connStr, logger))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return database.New(pool, logger)
}

func createAccount(t *testing.T, db *database.DB, email, password string) int64 {
	t.Helper()

	var id int64
	err := db.Pool.QueryRow(context.Background(),
		`INSERT INTO battlenet_accounts (email, sha_pass_hash) VALUES ($1, $2) RETURNING id`,
		email, auth.CalculatePasswordHash(email, password),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestIntegration_TicketLifecycle(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()
	repo := repositories.NewAccountRepository(db)

	id := createAccount(t, db, "PLAYER@EXAMPLE.COM", "secret")

	record, err := repo.GetAuthentication(ctx, "PLAYER@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, id, record.ID)
	assert.Empty(t, record.LoginTicket)
	assert.Nil(t, record.LoginTicketExpiry)
	assert.False(t, record.IsBanned)
	assert.True(t, auth.PasswordsMatch(auth.CalculatePasswordHash("player@example.com", "secret"), record.PasswordHash))

	_, err = repo.GetAuthentication(ctx, "NOBODY@EXAMPLE.COM")
	assert.ErrorIs(t, err, models.ErrNotFound)

	tickets := auth.NewTicketManager(time.Hour)
	ticket, expiry, err := tickets.IssueOrReuse(record.LoginTicket, record.LoginTicketExpiry)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateAuthentication(ctx, id, ticket, expiry))

	stored, err := repo.GetTicketExpiry(ctx, ticket)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.WithinDuration(t, expiry, *stored, time.Millisecond)

	refreshed, err := tickets.Refresh(stored)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateTicketExpiry(ctx, ticket, refreshed))

	_, err = repo.GetTicketExpiry(ctx, "TC-UNKNOWN")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIntegration_GameAccounts(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()
	repo := repositories.NewAccountRepository(db)

	id := createAccount(t, db, "OWNER@EXAMPLE.COM", "secret")
	require.NoError(t, repo.UpdateAuthentication(ctx, id, "TC-OWNER", time.Now().Add(time.Hour)))

	_, err := db.Pool.Exec(ctx,
		`INSERT INTO account (username, expansion, battlenet_account, battlenet_index) VALUES
			($1, 2, $3, 1), ($2, 8, $3, 2)`,
		"1#1", "2#2", id)
	require.NoError(t, err)

	_, err = db.Pool.Exec(ctx,
		`INSERT INTO account_banned (id, bandate, unbandate, bannedby, banreason)
		SELECT id, NOW(), NOW() + INTERVAL '1 day', 'GM', 'spam' FROM account WHERE username = '2#2'`)
	require.NoError(t, err)

	accounts, err := repo.ListGameAccounts(ctx, "TC-OWNER")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "1#1", accounts[0].Username)
	assert.False(t, accounts[0].HasBan())
	assert.Equal(t, uint8(8), accounts[1].Expansion)
	assert.True(t, accounts[1].HasBan())
	assert.Equal(t, "spam", accounts[1].BanReason)

	list := services.BuildGameAccountList(accounts, time.Now())
	require.Len(t, list.GameAccounts, 2)
	assert.Equal(t, "WoW1", list.GameAccounts[0].DisplayName)
	assert.True(t, list.GameAccounts[1].IsSuspended)

	empty, err := repo.ListGameAccounts(ctx, "TC-NOBODY")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIntegration_BruteforceGuardBansAddress(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()
	accounts := repositories.NewAccountRepository(db)
	bans := repositories.NewBanRepository(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	createAccount(t, db, "TARGET@EXAMPLE.COM", "secret")

	guard := services.NewBruteforceGuard(accounts, bans, db, services.BruteforceConfig{
		MaxWrongPassword: 2,
		BanMode:          models.BanModeIP,
		BanDuration:      10 * time.Minute,
	}, logger, nil, nil)

	for attempt := 1; attempt <= 2; attempt++ {
		record, err := accounts.GetAuthentication(ctx, "TARGET@EXAMPLE.COM")
		require.NoError(t, err)

		banned, err := guard.OnFailedLogin(ctx, record, "target@example.com", "198.51.100.7")
		require.NoError(t, err)
		assert.Equal(t, attempt == 2, banned, "attempt %d", attempt)
	}

	record, err := accounts.GetAuthentication(ctx, "TARGET@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Zero(t, record.FailedLogins, "counter is reset with the ban")

	banned, err := bans.IsIPBanned(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, banned)

	banned, err = bans.IsIPBanned(ctx, "198.51.100.8")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestIntegration_DeleteExpiredBans(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()
	bans := repositories.NewBanRepository(db)

	id := createAccount(t, db, "EXPIRED@EXAMPLE.COM", "secret")

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO ip_banned (ip, bandate, unbandate, bannedby, banreason) VALUES
			('203.0.113.1', NOW() - INTERVAL '2 hours', NOW() - INTERVAL '1 hour', 'GM', 'expired'),
			('203.0.113.2', '2020-01-01', '2020-01-01', 'GM', 'permanent'),
			('203.0.113.3', NOW(), NOW() + INTERVAL '1 hour', 'GM', 'active')`)
	require.NoError(t, err)

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO battlenet_account_bans (id, bandate, unbandate, bannedby, banreason)
		VALUES ($1, NOW() - INTERVAL '2 hours', NOW() - INTERVAL '1 hour', 'GM', 'expired')`, id)
	require.NoError(t, err)

	removed, err := bans.DeleteExpiredBans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	for ip, want := range map[string]bool{"203.0.113.1": false, "203.0.113.2": true, "203.0.113.3": true} {
		banned, err := bans.IsIPBanned(ctx, ip)
		require.NoError(t, err)
		assert.Equal(t, want, banned, ip)
	}

	record, err := repositories.NewAccountRepository(db).GetAuthentication(ctx, "EXPIRED@EXAMPLE.COM")
	require.NoError(t, err)
	assert.False(t, record.IsBanned)
}
