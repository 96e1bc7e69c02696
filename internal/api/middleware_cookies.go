package api

import (
	"context"
	"net/http"
	"net/url"
)

// Cookies returns the cookies parsed for r, keyed by name.
func Cookies(r *http.Request) map[string]string {
	if c, ok := r.Context().Value(cookiesContextKey).(map[string]string); ok {
		return c
	}
	return map[string]string{}
}

// Cookie returns a single parsed cookie value.
func Cookie(r *http.Request, name string) (string, bool) {
	v, ok := Cookies(r)[name]
	return v, ok
}

// cookieMiddleware decodes the Cookie header once per request. Values are
// URL-unescaped when possible; the first occurrence of a name wins.
func cookieMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parsed := make(map[string]string)
		for _, c := range r.Cookies() {
			if _, seen := parsed[c.Name]; seen {
				continue
			}
			value := c.Value
			if unescaped, err := url.QueryUnescape(value); err == nil {
				value = unescaped
			}
			parsed[c.Name] = value
		}
		next.ServeHTTP(w, r.WithContext(contextWithValue(r, cookiesContextKey, parsed)))
	})
}

func contextWithValue(r *http.Request, key contextKey, value any) context.Context {
	return context.WithValue(r.Context(), key, value)
}
