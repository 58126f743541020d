// Package scheduler runs named background tasks on a fixed interval. The
// dispatch recovery loop and the delivery-status reconciliation loop are
// both driven through it.
package scheduler

import "errors"

var (
	ErrAlreadyRunning = errors.New("scheduler is already running")
	ErrNotRunning     = errors.New("scheduler is not running")
)
