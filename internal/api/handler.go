package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const (
	requestIDContextKey    contextKey = "requestID"
	errorHandlerContextKey contextKey = "errorHandler"
	bodyContextKey         contextKey = "body"
	cookiesContextKey      contextKey = "cookies"
)

// Module is a feature route group mounted under a fixed URL prefix. The
// router depends only on this contract, never on module internals.
type Module interface {
	Prefix() string
	Routes(r chi.Router)
}

// HandlerFunc is a request handler that reports failures by returning them.
// Returned errors are delivered to the installed ErrorHandler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (fn HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		ServeError(w, r, err)
	}
}

// ServeError hands err to the error handler installed on the request.
func ServeError(w http.ResponseWriter, r *http.Request, err error) {
	errorHandlerFromContext(r.Context()).ServeError(w, r, err)
}

// WriteJSON writes payload as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status != 0 {
		w.WriteHeader(status)
	}
	return json.NewEncoder(w).Encode(payload)
}

// WriteText writes a plain text response.
func WriteText(w http.ResponseWriter, status int, body string) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, err := w.Write([]byte(body))
	return err
}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}
