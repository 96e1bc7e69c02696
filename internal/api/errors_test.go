package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/codepush-server/internal/apperror"
	"github.com/eugenenazirov/codepush-server/internal/config"
)

func observedRouter(t *testing.T, env config.Environment, handler HandlerFunc) (http.Handler, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	module := testModule{prefix: "/", routes: func(r chi.Router) {
		r.Method(http.MethodGet, "/handler", handler)
	}}
	router := NewRouter(NewErrorHandler(env, logger), logger, []Module{module}, WithLogging(false), WithRateLimit(0, 0))
	return router, logs
}

func levelCount(logs *observer.ObservedLogs, level zapcore.Level) int {
	return logs.FilterLevelExact(level).Len()
}

func okHandler(w http.ResponseWriter, _ *http.Request) error {
	return WriteText(w, http.StatusOK, "ok")
}

func TestDevelopmentNotFoundRendersPage(t *testing.T) {
	router, logs := observedRouter(t, config.Development, okHandler)

	rec := serve(router, http.MethodPost, "/missing/path")

	if rec.Code == http.StatusOK {
		t.Fatalf("expected non-200 status")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html page, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "POST /missing/path") {
		t.Fatalf("expected method and url in body, got %q", rec.Body.String())
	}
	if levelCount(logs, zapcore.ErrorLevel) != 1 {
		t.Fatalf("expected one error log, got %d", levelCount(logs, zapcore.ErrorLevel))
	}
}

func TestDevelopmentDownloadMissReportsRequestedURL(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	router := NewRouter(NewErrorHandler(config.Development, logger), logger, nil,
		WithLogging(false), WithRateLimit(0, 0), WithDownloads("/download", t.TempDir()))

	rec := serve(router, http.MethodGet, "/download/missing.zip")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "GET /download/missing.zip") {
		t.Fatalf("expected full url in body, got %q", rec.Body.String())
	}
	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(entries) != 1 {
		t.Fatalf("expected one error log, got %d", len(entries))
	}
	if url := entries[0].ContextMap()["url"]; url != "/download/missing.zip" {
		t.Fatalf("expected logged url /download/missing.zip, got %v", url)
	}
}

func TestDevelopmentHandlerErrorRendersStatusAndStack(t *testing.T) {
	router, logs := observedRouter(t, config.Development, func(http.ResponseWriter, *http.Request) error {
		return apperror.Systemf(http.StatusConflict, "state clash")
	})

	rec := serve(router, http.MethodGet, "/handler")

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "state clash") || !strings.Contains(body, "    at ") {
		t.Fatalf("expected message and stack, got %q", body)
	}
	if levelCount(logs, zapcore.ErrorLevel) != 1 {
		t.Fatalf("expected error log")
	}
}

func TestDevelopmentApplicationErrorDefaultsTo500(t *testing.T) {
	router, logs := observedRouter(t, config.Development, func(http.ResponseWriter, *http.Request) error {
		return apperror.New("bad input")
	})

	rec := serve(router, http.MethodGet, "/handler")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bad input") {
		t.Fatalf("expected message in page")
	}
	if levelCount(logs, zapcore.ErrorLevel) != 1 || levelCount(logs, zapcore.DebugLevel) != 0 {
		t.Fatalf("expected application error to be logged at error level in development")
	}
}

func TestProductionNotFoundIsPlainText(t *testing.T) {
	router, logs := observedRouter(t, config.Production, okHandler)

	rec := serve(router, http.MethodGet, "/missing/path")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Body.String() != "Not Found" {
		t.Fatalf("expected generic body, got %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected plain text, got %q", ct)
	}
	if levelCount(logs, zapcore.DebugLevel) != 1 || levelCount(logs, zapcore.ErrorLevel) != 0 {
		t.Fatalf("expected a single debug log")
	}
}

func TestProductionApplicationErrorKeepsStatus(t *testing.T) {
	router, logs := observedRouter(t, config.Production, func(http.ResponseWriter, *http.Request) error {
		return apperror.NotFound("app not found")
	})

	rec := serve(router, http.MethodGet, "/handler")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status to stay at default 200, got %d", rec.Code)
	}
	if rec.Body.String() != "app not found" {
		t.Fatalf("expected exact message, got %q", rec.Body.String())
	}
	if levelCount(logs, zapcore.DebugLevel) != 1 || levelCount(logs, zapcore.ErrorLevel) != 0 {
		t.Fatalf("expected application error at debug level")
	}
}

func TestProductionApplicationErrorAfterHandlerStatus(t *testing.T) {
	router, _ := observedRouter(t, config.Production, func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusBadRequest)
		return apperror.New("invalid")
	})

	rec := serve(router, http.MethodGet, "/handler")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected handler status to be kept, got %d", rec.Code)
	}
	if rec.Body.String() != "invalid" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestProductionSystemErrorUsesStatus(t *testing.T) {
	router, logs := observedRouter(t, config.Production, func(http.ResponseWriter, *http.Request) error {
		return apperror.Systemf(http.StatusForbidden, "forbidden by policy")
	})

	rec := serve(router, http.MethodGet, "/handler")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec.Body.String() != "forbidden by policy" {
		t.Fatalf("expected raw message, got %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "    at ") {
		t.Fatalf("expected no stack in production")
	}
	if levelCount(logs, zapcore.ErrorLevel) != 1 {
		t.Fatalf("expected error log")
	}
}

func TestProductionPlainErrorDefaultsTo500(t *testing.T) {
	router, _ := observedRouter(t, config.Production, func(http.ResponseWriter, *http.Request) error {
		return errors.New("disk on fire")
	})

	rec := serve(router, http.MethodGet, "/handler")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Body.String() != "disk on fire" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestServeErrorWithoutInstalledHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ServeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperror.Systemf(http.StatusBadGateway, "upstream"))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected fallback handler to apply status, got %d", rec.Code)
	}
}
