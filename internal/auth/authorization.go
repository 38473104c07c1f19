package auth

import (
	"encoding/base64"
	"strings"
)

const basicPrefix = "Basic "

// ExtractTicket returns the ticket carried in a Basic Authorization header value.
// The "Basic " prefix is optional. The decoded payload is "ticket:anything"; only the part
// before the first colon is kept. Malformed input yields an empty ticket.
func ExtractTicket(header string) string {
	header = strings.TrimPrefix(header, basicPrefix)

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return ""
	}

	ticket, _, _ := strings.Cut(string(decoded), ":")
	return ticket
}
