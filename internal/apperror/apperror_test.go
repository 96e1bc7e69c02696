package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetKindAndStatus(t *testing.T) {
	testCases := []struct {
		name   string
		err    *Error
		kind   Kind
		status int
		msg    string
	}{
		{"new", New("app exists"), KindApplication, 0, "app exists"},
		{"newf", Newf("app %s exists", "demo"), KindApplication, 0, "app demo exists"},
		{"not found default", NotFound(""), KindApplication, http.StatusNotFound, "Not Found"},
		{"not found message", NotFound("GET /nope"), KindApplication, http.StatusNotFound, "GET /nope"},
		{"unauthorized", Unauthorized(""), KindApplication, http.StatusUnauthorized, "Unauthorized"},
		{"system", System(errors.New("disk full"), http.StatusInsufficientStorage), KindSystem, http.StatusInsufficientStorage, "disk full"},
		{"systemf", Systemf(http.StatusForbidden, "no access to %s", "x"), KindSystem, http.StatusForbidden, "no access to x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, tc.err.Kind)
			assert.Equal(t, tc.status, tc.err.Status)
			assert.Equal(t, tc.msg, tc.err.Error())
		})
	}
}

func TestFromClassifiesPlainErrorsAsSystem(t *testing.T) {
	plain := errors.New("boom")
	got := From(plain)

	require.NotNil(t, got)
	assert.Equal(t, KindSystem, got.Kind)
	assert.Equal(t, 0, got.Status)
	assert.Equal(t, http.StatusInternalServerError, got.StatusOr(http.StatusInternalServerError))
	assert.ErrorIs(t, got, plain)
	assert.Nil(t, From(nil))
}

func TestFromFindsWrappedAppError(t *testing.T) {
	appErr := NotFound("missing")
	wrapped := fmt.Errorf("lookup: %w", appErr)

	assert.Same(t, appErr, From(wrapped))
	assert.True(t, IsApplication(wrapped))
	assert.False(t, IsApplication(errors.New("plain")))
	assert.False(t, IsApplication(System(errors.New("x"), 0)))
}

func TestStackMentionsCaller(t *testing.T) {
	err := New("with stack")
	stack := err.Stack()

	assert.True(t, strings.HasPrefix(stack, "with stack"))
	assert.Contains(t, stack, "TestStackMentionsCaller")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "application", KindApplication.String())
	assert.Equal(t, "system", KindSystem.String())
}
