package models

import (
	"fmt"
	"strings"
	"time"
)

// BanMode selects what an automatic ban targets
type BanMode int

// Values match the numeric ban types used by the game server configuration
const (
	BanModeAccount BanMode = 1
	BanModeIP      BanMode = 3
)

// ParseBanMode accepts "account", "ip" or the numeric server values
func ParseBanMode(value string) (BanMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "account", "1":
		return BanModeAccount, nil
	case "ip", "3", "":
		return BanModeIP, nil
	default:
		return 0, fmt.Errorf("unknown ban mode %q", value)
	}
}

func (m BanMode) String() string {
	switch m {
	case BanModeAccount:
		return "account"
	case BanModeIP:
		return "ip"
	default:
		return fmt.Sprintf("BanMode(%d)", int(m))
	}
}

// Attribution written with every automatic ban
const (
	AutoBanAuthor = "Trinity Auth"
	AutoBanReason = "Failed login autoban"
)

// BanRecord describes a ban produced by the bruteforce guard
type BanRecord struct {
	Mode      BanMode
	AccountID int64  // set when Mode is BanModeAccount
	IPAddress string // set when Mode is BanModeIP
	Duration  time.Duration
}
