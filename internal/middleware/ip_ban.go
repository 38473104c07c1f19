package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bnetlogin/internal/async"
	pkghttp "github.com/BradenHooton/bnetlogin/pkg/http"
)

// IPBanChecker reports whether an address has an active ban
type IPBanChecker interface {
	IsIPBanned(ctx context.Context, ip string) (bool, error)
}

// ChainSubmitter starts query chains without blocking
type ChainSubmitter interface {
	Submit(ctx context.Context, name string, step async.Step) *async.Chain
}

// IPBanFilter refuses requests from banned addresses with 403.
// A failed lookup lets the request through and is logged.
func IPBanFilter(checker IPBanChecker, processor ChainSubmitter, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)

			step := async.Query("check_ip_ban", func(ctx context.Context) (bool, error) {
				return checker.IsIPBanned(ctx, ip)
			}, func(ctx context.Context, banned bool) async.Step {
				return async.Finish(banned)
			})

			chain := processor.Submit(r.Context(), "ip_ban_check", step)
			banned, err := async.Await[bool](r.Context(), chain)
			if err != nil {
				if r.Context().Err() != nil {
					return
				}
				logger.Error("ip ban check failed",
					slog.String("ip_address", ip),
					slog.String("chain_id", chain.ID),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if banned {
				logger.Info("request from banned address refused", slog.String("ip_address", ip))
				pkghttp.WriteForbidden(w, "Address is banned")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
