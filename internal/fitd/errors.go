// Package fitd serves fit sessions over HTTP and gRPC: datasets are
// uploaded once, sessions bind a model to a data and a Monte Carlo sample,
// and fits run asynchronously with per-session cancellation.
package fitd

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionIDMissing = errors.New("session_id is required")
	ErrSessionTerminal  = errors.New("fit is terminal")
	ErrFitRunning       = errors.New("fit is running")
	ErrNoFit            = errors.New("session has no fit")
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrInvalidRequest   = errors.New("invalid request")
)
