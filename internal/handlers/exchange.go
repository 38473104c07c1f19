package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bnetlogin/internal/async"
	pkghttp "github.com/BradenHooton/bnetlogin/pkg/http"
	"github.com/go-chi/chi/v5/middleware"
)

type exchangeState int

const (
	stateReceived exchangeState = iota
	stateValidated
	stateSyncResponse
	stateAsyncChainPending
	stateResponseSent
)

func (s exchangeState) String() string {
	switch s {
	case stateReceived:
		return "received"
	case stateValidated:
		return "validated"
	case stateSyncResponse:
		return "sync_response"
	case stateAsyncChainPending:
		return "async_chain_pending"
	case stateResponseSent:
		return "response_sent"
	default:
		return "unknown"
	}
}

// exchange tracks one request until its single response has been written.
// It is owned by the request goroutine.
type exchange struct {
	w      http.ResponseWriter
	r      *http.Request
	route  string
	state  exchangeState
	logger *slog.Logger
}

func newExchange(w http.ResponseWriter, r *http.Request, route string, logger *slog.Logger) *exchange {
	return &exchange{w: w, r: r, route: route, state: stateReceived, logger: logger}
}

func (e *exchange) validated() {
	e.state = stateValidated
}

// begin claims the response slot; it returns false when a response already went out
func (e *exchange) begin() bool {
	if e.state == stateResponseSent {
		e.logger.Error("second response dropped",
			slog.String("route", e.route),
			slog.String("request_id", middleware.GetReqID(e.r.Context())),
		)
		return false
	}
	if e.state != stateAsyncChainPending {
		e.state = stateSyncResponse
	}
	return true
}

func (e *exchange) sendJSON(status int, body any) {
	if !e.begin() {
		return
	}
	pkghttp.WriteJSON(e.w, status, body)
	e.state = stateResponseSent
}

func (e *exchange) sendText(status int, body string) {
	if !e.begin() {
		return
	}
	pkghttp.WriteText(e.w, status, body)
	e.state = stateResponseSent
}

func (e *exchange) sendUnauthorized() {
	if !e.begin() {
		return
	}
	pkghttp.WriteUnauthorized(e.w, "Missing or invalid login ticket")
	e.state = stateResponseSent
}

func (e *exchange) sendInternalError() {
	if !e.begin() {
		return
	}
	pkghttp.WriteInternalError(e.w, "Internal server error")
	e.state = stateResponseSent
}

// awaitJSON parks the request goroutine on chain and writes its result as JSON.
// Each beforeSend hook sees the result before it is written.
// A failed chain is answered with one internal error.
func awaitJSON[T any](e *exchange, chain *async.Chain, beforeSend ...func(T)) {
	e.state = stateAsyncChainPending

	result, err := async.Await[T](e.r.Context(), chain)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away; the chain still runs to completion
			e.logger.Debug("client gone before chain finished",
				slog.String("route", e.route),
				slog.String("chain_id", chain.ID),
			)
			e.state = stateResponseSent
			return
		}

		e.logger.Error("request chain failed",
			slog.String("route", e.route),
			slog.String("chain_id", chain.ID),
			slog.String("request_id", middleware.GetReqID(e.r.Context())),
			slog.String("error", err.Error()),
		)
		e.sendInternalError()
		return
	}

	for _, hook := range beforeSend {
		hook(result)
	}
	e.sendJSON(http.StatusOK, result)
}
