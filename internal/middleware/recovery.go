package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/develper21/kyvro/internal/api"
)

// Recovery converts handler panics into 500 responses.
func Recovery(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic recovered",
						zap.String("request_id", GetRequestID(r.Context())),
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
						zap.String("stack", string(debug.Stack())),
					)

					render.Status(r, http.StatusInternalServerError)
					render.JSON(w, r, api.ErrorResponse{
						Error:     ErrorCodeInternal,
						Message:   errorMessageInternal,
						Timestamp: time.Now(),
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
