package logger

import "strings"

// MaskLogin masks a login name for logging. Email logins keep the first character of the
// local part and the TLD ("u***@*******.com"); other logins keep only the first character.
func MaskLogin(login string) string {
	if login == "" {
		return ""
	}

	username, domain, isEmail := strings.Cut(login, "@")
	if !isEmail {
		return maskTail(login)
	}

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return maskTail(username) + "@" + domain
}

func maskTail(s string) string {
	r := []rune(s)
	if len(r) <= 1 {
		return s
	}
	return string(r[0]) + strings.Repeat("*", len(r)-1)
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password",
		"ticket",
		"account_name",
		"email",
		"secret",
		"auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
