package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bnetlogin/internal/handlers"
	"github.com/BradenHooton/bnetlogin/internal/middleware"
	pkghttp "github.com/BradenHooton/bnetlogin/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies groups what the route table needs
type Dependencies struct {
	Login          *handlers.LoginHandler
	Health         handlers.HealthChecker
	IPBans         middleware.IPBanChecker
	Processor      middleware.ChainSubmitter
	IPConfig       *pkghttp.IPConfig
	Gatherer       prometheus.Gatherer
	LoginRateLimit int
	Logger         *slog.Logger
}

// clientRoutes maps the short paths to the paths used by game clients
var clientRoutes = map[string]string{
	"/login":          "/bnetserver/login/",
	"/login-form":     "/bnetserver/login/",
	"/game-accounts":  "/bnetserver/gameAccounts/",
	"/portal":         "/bnetserver/portal/",
	"/refresh-ticket": "/bnetserver/refreshLoginTicket/",
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Resource not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteMethodNotAllowed(w, "Method not allowed")
	})

	router.Get("/health", handlers.Health(deps.Health))
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	rateLimit := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestsPerMinute: deps.LoginRateLimit,
		IPConfig:          deps.IPConfig,
	})

	// Login endpoints - banned addresses are refused
	router.Group(func(r chi.Router) {
		if deps.IPBans != nil && deps.Processor != nil {
			r.Use(middleware.IPBanFilter(deps.IPBans, deps.Processor, deps.IPConfig, deps.Logger))
		}

		for _, path := range []string{"/login-form", clientRoutes["/login-form"]} {
			r.Get(path, deps.Login.GetForm)
		}
		for _, path := range []string{"/login", clientRoutes["/login"]} {
			r.With(middleware.DoNotLogRequestContent, rateLimit).Post(path, deps.Login.PostLogin)
		}
		for _, path := range []string{"/game-accounts", clientRoutes["/game-accounts"]} {
			r.Get(path, deps.Login.GetGameAccounts)
		}
		for _, path := range []string{"/portal", clientRoutes["/portal"]} {
			r.Get(path, deps.Login.GetPortal)
		}
		for _, path := range []string{"/refresh-ticket", clientRoutes["/refresh-ticket"]} {
			r.Post(path, deps.Login.PostRefreshTicket)
		}
	})
}
