package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

// Logger creates a middleware wrapper around a zap Sugared logger that logs
// HTTP requests.  Server errors are logged at warn level.
func Logger(l *zap.SugaredLogger) func(next http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			lw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			h.ServeHTTP(lw, r)
			status := lw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(t1)
			line := newRequestLogger().
				requestID(middleware.GetReqID(r.Context())).
				requestType(r.Method).
				path(r.URL.Path).
				query(r.URL.RawQuery).
				status(status).
				duration(elapsed).
				render()
			if status < 500 {
				l.Infow(line, "status", status, "bytes", lw.BytesWritten())
			} else {
				l.Warnw(line, "status", status, "bytes", lw.BytesWritten())
			}
		}
		return http.HandlerFunc(fn)
	}
}
