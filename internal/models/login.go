package models

import "strings"

// AuthenticationState is the client-visible progress of a login
type AuthenticationState string

const (
	AuthenticationStateLogin         AuthenticationState = "LOGIN"
	AuthenticationStateLegal         AuthenticationState = "LEGAL"
	AuthenticationStateAuthenticator AuthenticationState = "AUTHENTICATOR"
	AuthenticationStateDone          AuthenticationState = "DONE"
)

// FormType identifies the kind of form described by FormInputs
type FormType string

const FormTypeLoginForm FormType = "LOGIN_FORM"

// Form input identifiers
const (
	InputAccountName = "account_name"
	InputPassword    = "password"
	InputSubmit      = "log_in_submit"
)

// Decode failure code and message returned to the client
const (
	ErrorCodeUnableToDecode    = "UNABLE_TO_DECODE"
	ErrorMessageUnableToDecode = "There was an internal error while connecting to Battle.net. Please try again later."
)

// FormInput describes one field of the login form
type FormInput struct {
	InputID   string `json:"input_id"`
	Type      string `json:"type"`
	Label     string `json:"label"`
	MaxLength uint32 `json:"max_length,omitempty"`
}

// FormInputs is the login form descriptor
type FormInputs struct {
	Type   FormType    `json:"type"`
	Inputs []FormInput `json:"inputs"`
}

// FormInputValue is one submitted field
type FormInputValue struct {
	InputID string `json:"input_id" validate:"required"`
	Value   string `json:"value"`
}

// LoginForm is the POST /login request body
type LoginForm struct {
	PlatformID string           `json:"platform_id,omitempty"`
	ProgramID  string           `json:"program_id,omitempty"`
	Version    string           `json:"version,omitempty"`
	Inputs     []FormInputValue `json:"inputs" validate:"dive"`
}

// Credentials returns the account name and password fields, last occurrence wins
func (f *LoginForm) Credentials() (login, password string) {
	for _, input := range f.Inputs {
		switch input.InputID {
		case InputAccountName:
			login = input.Value
		case InputPassword:
			password = input.Value
		}
	}
	return login, password
}

// LoginResult is the POST /login response body
type LoginResult struct {
	AuthenticationState AuthenticationState `json:"authentication_state"`
	ErrorCode           string              `json:"error_code,omitempty"`
	ErrorMessage        string              `json:"error_message,omitempty"`
	URL                 string              `json:"url,omitempty"`
	LoginTicket         string              `json:"login_ticket,omitempty"`
}

// LoginRefreshResult is the POST /refresh-ticket response body
type LoginRefreshResult struct {
	LoginTicketExpiry uint64 `json:"login_ticket_expiry,omitempty"`
	IsExpired         bool   `json:"is_expired,omitempty"`
}

// GameAccountInfo is one entry of GameAccountList
type GameAccountInfo struct {
	DisplayName       string `json:"display_name"`
	Expansion         uint32 `json:"expansion"`
	IsSuspended       bool   `json:"is_suspended,omitempty"`
	IsBanned          bool   `json:"is_banned,omitempty"`
	SuspensionExpires uint64 `json:"suspension_expires,omitempty"`
	SuspensionReason  string `json:"suspension_reason,omitempty"`
}

// GameAccountList is the GET /game-accounts response body
type GameAccountList struct {
	GameAccounts []GameAccountInfo `json:"game_accounts"`
}

// GameAccountDisplayName renders "1#2" as "WoW2"; names without '#' are returned verbatim
func GameAccountDisplayName(username string) string {
	if i := strings.IndexByte(username, '#'); i >= 0 {
		return "WoW" + username[i+1:]
	}
	return username
}
