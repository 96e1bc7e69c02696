package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/codepush-server/internal/apperror"
)

// RouterOption configures the behaviour of NewRouter.
type RouterOption func(*routerConfig)

// WithLogging controls whether access logs are emitted.
func WithLogging(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the default request rate limiter (primarily for tests).
func WithRateLimiter(limiter rateLimiter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit installs a token bucket per client address. A zero rate
// disables limiting.
func WithRateLimit(ratePerSecond float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		if ratePerSecond <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = newTokenBucketLimiter(ratePerSecond, burst)
	}
}

// WithPublicDir serves static assets from dir at the site root.
func WithPublicDir(dir string) RouterOption {
	return func(cfg *routerConfig) {
		cfg.publicDir = dir
	}
}

// WithDownloads mounts dir at prefix. Files missing from dir are answered by
// the not-found handler.
func WithDownloads(prefix, dir string) RouterOption {
	return func(cfg *routerConfig) {
		cfg.downloadPrefix = "/" + strings.Trim(prefix, "/")
		cfg.downloadDir = dir
	}
}

type routerConfig struct {
	enableLogging  bool
	logger         *zap.Logger
	rateLimiter    rateLimiter
	publicDir      string
	downloadPrefix string
	downloadDir    string
}

// NewRouter composes the middleware chain, the optional download mount and
// the route modules. Unmatched requests and handler failures are delivered to
// errs.
func NewRouter(errs ErrorHandler, logger *zap.Logger, modules []Module, opts ...RouterOption) http.Handler {
	cfg := routerConfig{
		enableLogging: true,
		logger:        logger,
		rateLimiter:   newTokenBucketLimiter(25, 50),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	root := chi.NewRouter()
	root.Use(requestIDMiddleware)
	root.Use(func(next http.Handler) http.Handler {
		return withErrorHandler(errs, next)
	})
	if cfg.enableLogging {
		root.Use(func(next http.Handler) http.Handler {
			return loggingMiddleware(cfg.logger, next)
		})
	}
	root.Use(func(next http.Handler) http.Handler {
		return recoveryMiddleware(cfg.logger, next)
	})
	root.Use(securityHeadersMiddleware, corsMiddleware)
	if cfg.rateLimiter != nil {
		limiter := cfg.rateLimiter
		root.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(limiter, next)
		})
	}
	root.Use(jsonBodyMiddleware, formBodyMiddleware, cookieMiddleware)
	if cfg.publicDir != "" {
		root.Use(staticMiddleware(cfg.publicDir))
	}

	root.NotFound(errs.NotFound)
	root.MethodNotAllowed(errs.NotFound)

	if cfg.downloadDir != "" {
		root.Mount(cfg.downloadPrefix, downloadHandler(cfg.downloadPrefix, cfg.downloadDir, http.HandlerFunc(errs.NotFound)))
	}

	for _, m := range modules {
		prefix := "/" + strings.Trim(m.Prefix(), "/")
		if prefix == "/" {
			m.Routes(root)
			continue
		}
		root.Route(prefix, m.Routes)
	}

	return root
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.String("request_id", RequestID(r.Context())),
		)
	})
}

func recoveryMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("panic recovered", zap.Any("error", rec))
			ServeError(w, r, apperror.System(fmt.Errorf("panic: %v", rec), http.StatusInternalServerError))
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(contextWithRequestID(r.Context(), requestID)))
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
