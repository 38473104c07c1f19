package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	AccountID     int64
	Login         string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality.
// A nil *AuditLogger discards events.
type AuditLogger struct {
	logger *slog.Logger
	env    string
}

// NewAuditLogger creates a new audit logger; logins are masked in production
func NewAuditLogger(logger *slog.Logger, env string) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		env:    env,
	}
}

// LogLoginAttempt logs the outcome of a credential check
func (al *AuditLogger) LogLoginAttempt(event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "login"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != 0 {
		attrs = append(attrs, slog.Int64("account_id", event.AccountID))
	}
	if event.Login != "" {
		attrs = append(attrs, al.loginAttr(event.Login))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogAutoBan logs a ban issued after too many wrong passwords
func (al *AuditLogger) LogAutoBan(mode string, accountID int64, ipAddress string, duration time.Duration) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "ban"),
		slog.String("event_type", "auto_ban"),
		slog.String("ban_mode", mode),
		slog.Int64("account_id", accountID),
		slog.String("ban_duration", duration.String()),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}

func (al *AuditLogger) loginAttr(login string) slog.Attr {
	if al.env == "production" {
		return slog.String("login", MaskLogin(login))
	}
	return slog.String("login", login)
}
