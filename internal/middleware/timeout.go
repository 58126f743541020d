package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/develper21/kyvro/internal/api"
)

// Timeout bounds how long a handler may run. On expiry the client gets a
// 408 and the handler's context is canceled.
func Timeout(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					render.Status(r, http.StatusRequestTimeout)
					render.JSON(w, r, api.ErrorResponse{
						Error:     ErrorCodeRequestTimeout,
						Message:   errorMessageRequestTimeout,
						Timestamp: time.Now(),
					})
				}
			}
		})
	}
}
