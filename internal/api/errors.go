package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/eugenenazirov/codepush-server/internal/apperror"
	"github.com/eugenenazirov/codepush-server/internal/config"
)

// ErrorHandler is the terminal stage of the middleware chain. NotFound
// answers requests no route matched; ServeError answers requests whose
// handler failed.
type ErrorHandler interface {
	NotFound(w http.ResponseWriter, r *http.Request)
	ServeError(w http.ResponseWriter, r *http.Request, err error)
}

// NewErrorHandler selects the error handling strategy for env. The choice is
// fixed for the lifetime of the returned handler.
func NewErrorHandler(env config.Environment, logger *zap.Logger) ErrorHandler {
	if env == config.Development {
		return &developmentErrors{logger: logger}
	}
	return &productionErrors{logger: logger}
}

// developmentErrors renders every failure as an HTML page including the
// captured stack and logs it at error level.
type developmentErrors struct {
	logger *zap.Logger
}

func (h *developmentErrors) NotFound(w http.ResponseWriter, r *http.Request) {
	err := apperror.NotFound(fmt.Sprintf("%s %s", r.Method, r.URL.RequestURI()))
	h.render(w, r, err, err.StatusOr(http.StatusNotFound))
}

func (h *developmentErrors) ServeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.From(err)
	h.render(w, r, appErr, appErr.StatusOr(http.StatusInternalServerError))
}

func (h *developmentErrors) render(w http.ResponseWriter, r *http.Request, err *apperror.Error, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if renderErr := errorPage.Execute(w, errorPageData{
		Message: err.Error(),
		Status:  status,
		Kind:    err.Kind.String(),
		Stack:   err.Stack(),
	}); renderErr != nil {
		h.logger.Warn("render error page", zap.Error(renderErr))
	}
	h.logger.Error(err.Error(), requestFields(r, status, err)...)
}

// productionErrors exposes minimal text. Application errors are expected and
// logged at debug level; anything else is logged at error level.
type productionErrors struct {
	logger *zap.Logger
}

func (h *productionErrors) NotFound(w http.ResponseWriter, r *http.Request) {
	err := apperror.NotFound("")
	_ = WriteText(w, http.StatusNotFound, err.Error())
	h.logger.Debug(err.Error(), requestFields(r, http.StatusNotFound, err)...)
}

func (h *productionErrors) ServeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.From(err)

	switch appErr.Kind {
	case apperror.KindApplication:
		// The response status is left as the handler set it.
		_ = WriteText(w, 0, appErr.Error())
		h.logger.Debug(appErr.Error(), requestFields(r, 0, appErr)...)
	default:
		status := appErr.StatusOr(http.StatusInternalServerError)
		_ = WriteText(w, status, err.Error())
		h.logger.Error(err.Error(), requestFields(r, status, appErr)...)
	}
}

func requestFields(r *http.Request, status int, err *apperror.Error) []zap.Field {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("url", r.URL.RequestURI()),
		zap.String("kind", err.Kind.String()),
		zap.String("request_id", RequestID(r.Context())),
	}
	if status != 0 {
		fields = append(fields, zap.Int("status", status))
	}
	if cause := errors.Unwrap(err); cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	return fields
}

var fallbackErrorHandler ErrorHandler = &productionErrors{logger: zap.NewNop()}

func contextWithErrorHandler(ctx context.Context, h ErrorHandler) context.Context {
	return context.WithValue(ctx, errorHandlerContextKey, h)
}

func errorHandlerFromContext(ctx context.Context) ErrorHandler {
	if h, ok := ctx.Value(errorHandlerContextKey).(ErrorHandler); ok && h != nil {
		return h
	}
	return fallbackErrorHandler
}

func withErrorHandler(h ErrorHandler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(contextWithErrorHandler(r.Context(), h)))
	})
}
