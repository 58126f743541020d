// Package queue implements a rate-limited concurrency queue with per-task
// retry and exponential backoff.
package queue

import "errors"

// ErrCleared rejects pending tasks discarded by Clear. It is distinct
// from any operation error so callers can tell "the call failed" from
// "the queue was cleared out from under me".
var ErrCleared = errors.New("queue: task cleared before it was started")
