package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
)

// LoggingConfig tunes the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are not logged at all.  Probe endpoints belong here.
	SkipPaths []string
	// SlowThreshold promotes a request to Warn level when exceeded.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips the probe endpoints and flags requests slower
// than three seconds.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// LoggingMiddleware logs one structured line per completed request.
type LoggingMiddleware struct {
	logger logging.Logger
	cfg    LoggingConfig
	skip   map[string]bool
}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware(logger logging.Logger, cfg LoggingConfig) *LoggingMiddleware {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	return &LoggingMiddleware{
		logger: logger.Named("http"),
		cfg:    cfg,
		skip:   skip,
	}
}

// Handler wraps next with request logging.  Status and size come from chi's
// WrapResponseWriter so handlers stay untouched.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		fields := []logging.Field{
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("duration", duration),
			logging.Int("bytes", ww.BytesWritten()),
			logging.String("remote_addr", r.RemoteAddr),
			logging.String("request_id", chimw.GetReqID(r.Context())),
		}

		switch {
		case ww.Status() >= http.StatusInternalServerError:
			m.logger.Error("request completed", fields...)
		case ww.Status() >= http.StatusBadRequest:
			m.logger.Warn("request completed", fields...)
		case m.cfg.SlowThreshold > 0 && duration >= m.cfg.SlowThreshold:
			m.logger.Warn("slow request completed", fields...)
		default:
			m.logger.Info("request completed", fields...)
		}
	})
}
