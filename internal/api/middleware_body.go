package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/eugenenazirov/codepush-server/internal/apperror"
)

const maxParsedBodyBytes = 100 << 10

// Body is the request payload decoded by the body parsing middleware.
// JSON holds top-level object members; Form holds URL-encoded fields.
type Body struct {
	JSON map[string]any
	Raw  json.RawMessage
	Form url.Values
}

// ParsedBody returns the payload decoded for r. The zero Body is returned
// when nothing was parsed.
func ParsedBody(r *http.Request) Body {
	if b, ok := r.Context().Value(bodyContextKey).(*Body); ok && b != nil {
		return *b
	}
	return Body{}
}

// String returns a top-level field as a string.
func (b Body) String(key string) string {
	if v, ok := b.JSON[key]; ok {
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
		return ""
	}
	return b.Form.Get(key)
}

// Bool returns a top-level field as a boolean. Strings "true" and "1" count
// as true.
func (b Body) Bool(key string) bool {
	if v, ok := b.JSON[key].(bool); ok {
		return v
	}
	s := strings.ToLower(strings.TrimSpace(b.String(key)))
	return s == "true" || s == "1"
}

// Int64 returns a top-level numeric field.
func (b Body) Int64(key string) (int64, bool) {
	if v, ok := b.JSON[key].(float64); ok {
		return int64(v), true
	}
	n, err := strconv.ParseInt(strings.TrimSpace(b.String(key)), 10, 64)
	return n, err == nil
}

// Decode unmarshals the raw JSON payload into v. It is a no-op when the
// request carried no JSON.
func (b Body) Decode(v any) error {
	if len(b.Raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(b.Raw, v); err != nil {
		return apperror.System(fmt.Errorf("decode body: %w", err), http.StatusBadRequest)
	}
	return nil
}

func bodyFromRequest(r *http.Request) (*Body, *http.Request) {
	if b, ok := r.Context().Value(bodyContextKey).(*Body); ok && b != nil {
		return b, r
	}
	b := &Body{}
	return b, r.WithContext(contextWithValue(r, bodyContextKey, b))
}

func hasMediaType(r *http.Request, match func(string) bool) bool {
	raw := r.Header.Get("Content-Type")
	if raw == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return false
	}
	return match(mediaType)
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func isFormMediaType(mediaType string) bool {
	return mediaType == "application/x-www-form-urlencoded"
}

func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// jsonBodyMiddleware decodes application/json payloads. Only objects and
// arrays are accepted at the top level.
func jsonBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody || !hasMediaType(r, isJSONMediaType) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxParsedBodyBytes))
		_ = r.Body.Close()
		if err != nil {
			if bodyTooLarge(err) {
				ServeError(w, r, apperror.Systemf(http.StatusRequestEntityTooLarge, "request entity too large"))
				return
			}
			ServeError(w, r, apperror.System(fmt.Errorf("read body: %w", err), http.StatusBadRequest))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if trimmed[0] != '{' && trimmed[0] != '[' {
			ServeError(w, r, apperror.Systemf(http.StatusBadRequest, "Unexpected token %q in JSON at position 0", trimmed[0]))
			return
		}

		var decoded any
		if err := json.Unmarshal(trimmed, &decoded); err != nil {
			ServeError(w, r, apperror.System(err, http.StatusBadRequest))
			return
		}

		body, r := bodyFromRequest(r)
		body.Raw = json.RawMessage(trimmed)
		if obj, ok := decoded.(map[string]any); ok {
			body.JSON = obj
		}
		next.ServeHTTP(w, r)
	})
}

// formBodyMiddleware decodes application/x-www-form-urlencoded payloads into
// flat string values.
func formBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody || !hasMediaType(r, isFormMediaType) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxParsedBodyBytes))
		_ = r.Body.Close()
		if err != nil {
			if bodyTooLarge(err) {
				ServeError(w, r, apperror.Systemf(http.StatusRequestEntityTooLarge, "request entity too large"))
				return
			}
			ServeError(w, r, apperror.System(fmt.Errorf("read body: %w", err), http.StatusBadRequest))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))

		values, err := url.ParseQuery(string(raw))
		if err != nil {
			ServeError(w, r, apperror.System(fmt.Errorf("parse form: %w", err), http.StatusBadRequest))
			return
		}

		body, r := bodyFromRequest(r)
		body.Form = values
		next.ServeHTTP(w, r)
	})
}
