package routes

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/codepush-server/internal/api"
	"github.com/eugenenazirov/codepush-server/internal/apperror"
	"github.com/eugenenazirov/codepush-server/internal/auth"
	"github.com/eugenenazirov/codepush-server/internal/codepush"
)

type contextKey string

const identityContextKey contextKey = "identity"

const sessionCookie = "token"

// Handler wires the account and update services into the route modules.
type Handler struct {
	auth     *auth.Service
	codepush *codepush.Service
	logger   *zap.Logger

	clock          func() time.Time
	downloadURL    string
	downloadPrefix string
	maxUploadBytes int64
	sessionTTL     time.Duration
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithDownloads sets how package download URLs are built. baseURL wins when
// set; otherwise the URL is derived from the request host and prefix.
func WithDownloads(baseURL, prefix string) HandlerOption {
	return func(h *Handler) {
		h.downloadURL = strings.TrimRight(baseURL, "/")
		h.downloadPrefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithMaxUploadBytes caps the size of release uploads.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		h.maxUploadBytes = n
	}
}

// WithSessionTTL sets the lifetime of the session cookie issued on login.
func WithSessionTTL(ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		h.sessionTTL = ttl
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(authSvc *auth.Service, cp *codepush.Service, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		auth:           authSvc,
		codepush:       cp,
		logger:         logger,
		downloadPrefix: "/download",
		maxUploadBytes: 100 << 20,
		sessionTTL:     30 * 24 * time.Hour,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Modules returns the route modules in mounting order.
func (h *Handler) Modules() []api.Module {
	return []api.Module{
		indexModule{h},
		publicModule{h},
		authModule{h},
		accessKeysModule{h},
		accountModule{h},
		usersModule{h},
		appsModule{h},
	}
}

// answer replies to application errors directly with their own status, or
// fallback when they carry none. Other errors continue to the installed
// error handler.
func answer(fallback int, fn api.HandlerFunc) api.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		err := fn(w, r)
		if err == nil || !apperror.IsApplication(err) {
			return err
		}
		appErr := apperror.From(err)
		return api.WriteText(w, appErr.StatusOr(fallback), appErr.Error())
	}
}

// requireAuth resolves the bearer credential or session cookie into an
// identity. Rejected requests are answered with 401.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return api.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		identity, err := h.auth.Authenticate(credential(r))
		if err != nil {
			if apperror.IsApplication(err) {
				return api.WriteText(w, http.StatusUnauthorized, apperror.From(err).Error())
			}
			return err
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityContextKey, identity)))
		return nil
	})
}

func credential(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if token, ok := api.Cookie(r, sessionCookie); ok {
		return token
	}
	return ""
}

func identityFrom(r *http.Request) auth.Identity {
	identity, _ := r.Context().Value(identityContextKey).(auth.Identity)
	return identity
}

// packageURL returns the public download URL of a stored bundle.
func (h *Handler) packageURL(r *http.Request, blobKey string) string {
	base := h.downloadURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
			scheme = strings.TrimSpace(strings.Split(forwarded, ",")[0])
		}
		base = scheme + "://" + r.Host + h.downloadPrefix
	}
	return base + "/" + url.PathEscape(blobKey)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
