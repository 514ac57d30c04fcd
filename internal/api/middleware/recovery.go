package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hugh/orgauth/internal/api/dto"
)

func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error", Code: "internal"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
