// Package service aggregates the application services behind the HTTP
// handlers.
package service

import "errors"

var (
	ErrUnknownStatus     = errors.New("unknown delivery status")
	ErrInvalidTransition = errors.New("status transition not allowed")
)
