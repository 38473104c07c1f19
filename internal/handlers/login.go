package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/BradenHooton/bnetlogin/internal/async"
	"github.com/BradenHooton/bnetlogin/internal/auth"
	"github.com/BradenHooton/bnetlogin/internal/metrics"
	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/BradenHooton/bnetlogin/internal/services"
	pkghttp "github.com/BradenHooton/bnetlogin/pkg/http"
)

// maxLoginBodyBytes bounds the login form body
const maxLoginBodyBytes = 16 << 10

// LoginChainsInterface builds the query chains behind the login endpoints
type LoginChainsInterface interface {
	Authenticate(login, password, ipAddress string) async.Step
	RefreshTicket(ticket string) async.Step
	GameAccounts(ticket string) async.Step
}

// ChainSubmitter starts query chains without blocking
type ChainSubmitter interface {
	Submit(ctx context.Context, name string, step async.Step) *async.Chain
}

// HostnameResolver picks the hostname advertised to a client
type HostnameResolver interface {
	HostnameFor(addr netip.Addr) string
}

// LoginHandler handles the game client login endpoints
type LoginHandler struct {
	chains     LoginChainsInterface
	processor  ChainSubmitter
	resolver   HostnameResolver
	portalPort int
	ipConfig   *pkghttp.IPConfig
	formInputs models.FormInputs
	delay      *auth.FailureDelay
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewLoginHandler creates a new LoginHandler
func NewLoginHandler(chains LoginChainsInterface, processor ChainSubmitter, resolver HostnameResolver, portalPort int, ipConfig *pkghttp.IPConfig, logger *slog.Logger, m *metrics.Metrics) *LoginHandler {
	return &LoginHandler{
		chains:     chains,
		processor:  processor,
		resolver:   resolver,
		portalPort: portalPort,
		ipConfig:   ipConfig,
		formInputs: DefaultFormInputs(),
		logger:     logger,
		metrics:    m,
	}
}

// SetFailureDelay pads answers to failed logins; nil disables padding
func (h *LoginHandler) SetFailureDelay(delay *auth.FailureDelay) {
	h.delay = delay
}

// DefaultFormInputs describes the fields the client renders on its login screen
func DefaultFormInputs() models.FormInputs {
	return models.FormInputs{
		Type: models.FormTypeLoginForm,
		Inputs: []models.FormInput{
			{InputID: models.InputAccountName, Type: "text", Label: "E-mail", MaxLength: 320},
			{InputID: models.InputPassword, Type: "password", Label: "Password", MaxLength: 16},
			{InputID: models.InputSubmit, Type: "submit", Label: "Log In"},
		},
	}
}

// GetForm returns the login form descriptor
// @Summary Login form descriptor
// @Produce json
// @Success 200 {object} models.FormInputs
// @Router /login-form [get]
func (h *LoginHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	e := newExchange(w, r, "get_form", h.logger)
	e.validated()
	e.sendJSON(http.StatusOK, h.formInputs)
}

// GetGameAccounts lists the game accounts of the ticket holder
// @Summary List game accounts
// @Produce json
// @Success 200 {object} models.GameAccountList
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /game-accounts [get]
func (h *LoginHandler) GetGameAccounts(w http.ResponseWriter, r *http.Request) {
	e := newExchange(w, r, "get_game_accounts", h.logger)

	ticket, err := ticketFromRequest(r)
	if err != nil {
		h.logger.Debug("game account list refused", slog.String("error", err.Error()))
		e.sendUnauthorized()
		return
	}
	e.validated()

	chain := h.processor.Submit(r.Context(), services.ChainGameAccounts, h.chains.GameAccounts(ticket))
	awaitJSON[*models.GameAccountList](e, chain)
}

// GetPortal returns the "host:port" the client should connect to
// @Summary Portal address
// @Produce plain
// @Success 200 {string} string
// @Router /portal [get]
func (h *LoginHandler) GetPortal(w http.ResponseWriter, r *http.Request) {
	e := newExchange(w, r, "get_portal", h.logger)
	e.validated()

	hostname := h.resolver.HostnameFor(pkghttp.ClientAddr(r, h.ipConfig))
	e.sendText(http.StatusOK, fmt.Sprintf("%s:%d", hostname, h.portalPort))
}

// PostLogin checks credentials and answers with a login ticket
// @Summary Submit login form
// @Accept json
// @Param request body models.LoginForm true "Login form"
// @Produce json
// @Success 200 {object} models.LoginResult
// @Failure 400 {object} models.LoginResult
// @Router /login [post]
func (h *LoginHandler) PostLogin(w http.ResponseWriter, r *http.Request) {
	e := newExchange(w, r, "post_login", h.logger)
	start := time.Now()

	form, err := h.decodeLoginForm(w, r)
	if err != nil {
		h.decodeFailure(e, err)
		return
	}
	e.validated()

	login, password := form.Credentials()
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	chain := h.processor.Submit(r.Context(), services.ChainLogin, h.chains.Authenticate(login, password, ipAddress))

	// Padding runs here, after the chain has released its worker
	awaitJSON[*models.LoginResult](e, chain, func(result *models.LoginResult) {
		if result == nil || result.LoginTicket == "" {
			h.delay.WaitFrom(r.Context(), start)
		}
	})
}

// decodeLoginForm reads and validates the login body; every failure wraps models.ErrDecode
func (h *LoginHandler) decodeLoginForm(w http.ResponseWriter, r *http.Request) (*models.LoginForm, error) {
	var form models.LoginForm
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&form); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDecode, err)
	}

	if err := ValidateLoginForm(&form, h.formInputs); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDecode, err)
	}
	return &form, nil
}

// ticketFromRequest returns the ticket carried by the Authorization header
func ticketFromRequest(r *http.Request) (string, error) {
	ticket := auth.ExtractTicket(r.Header.Get("Authorization"))
	if ticket == "" {
		return "", models.ErrUnauthorized
	}
	return ticket, nil
}

func (h *LoginHandler) decodeFailure(e *exchange, err error) {
	h.logger.Debug("unable to decode login form", slog.String("error", err.Error()))
	h.metrics.LoginAttempt(metrics.OutcomeDecodeError)
	e.sendJSON(http.StatusBadRequest, services.DecodeFailureResult())
}

// PostRefreshTicket extends the validity of a login ticket
// @Summary Refresh login ticket
// @Produce json
// @Success 200 {object} models.LoginRefreshResult
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /refresh-ticket [post]
func (h *LoginHandler) PostRefreshTicket(w http.ResponseWriter, r *http.Request) {
	e := newExchange(w, r, "post_refresh_ticket", h.logger)

	ticket, err := ticketFromRequest(r)
	if err != nil {
		h.logger.Debug("ticket refresh refused", slog.String("error", err.Error()))
		e.sendUnauthorized()
		return
	}
	e.validated()

	chain := h.processor.Submit(r.Context(), services.ChainRefreshTicket, h.chains.RefreshTicket(ticket))
	awaitJSON[*models.LoginRefreshResult](e, chain)
}
