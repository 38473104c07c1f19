package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")

	// Login protocol errors
	ErrDecode        = errors.New("unable to decode request")
	ErrTicketExpired = errors.New("login ticket expired")
	ErrChainAborted  = errors.New("operation chain aborted")
	ErrResolution    = errors.New("unable to resolve address")
)
