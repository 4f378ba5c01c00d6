// Package testutil provides helpers shared by handler and wiring tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ptr returns a pointer to v, for filling optional config fields.
func Ptr[T any](v T) *T { return &v }

// Serve runs one request with the given body through h.
func Serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// DecodeJSON decodes the recorded body, failing the test on error.
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

// AssertJSONError checks for a {"error": ...} body with the given status
// whose message contains msg.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, code int, msg string) {
	t.Helper()
	assert.Equal(t, code, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := DecodeJSON[map[string]string](t, w)
	assert.Contains(t, body["error"], msg)
}
