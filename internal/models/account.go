package models

import "time"

// AuthenticationRecord is the transient copy of a battlenet account loaded for one login attempt
type AuthenticationRecord struct {
	ID                int64
	PasswordHash      string
	FailedLogins      uint32
	LoginTicket       string     // empty when no ticket was ever issued
	LoginTicketExpiry *time.Time // nil when no ticket was ever issued
	IsBanned          bool       // active account-scoped ban
}

// GameAccount is a sub-account row joined with its active ban, if any
type GameAccount struct {
	ID        int64
	Username  string
	Expansion uint8
	BanDate   *time.Time
	UnbanDate *time.Time
	BanReason string
}

// HasBan reports whether the row carries a ban window
func (a *GameAccount) HasBan() bool {
	return a.BanDate != nil && a.UnbanDate != nil
}
