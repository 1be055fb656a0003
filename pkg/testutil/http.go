// Package testutil holds helpers shared by handler and integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// JSONRequest builds a request whose body is v encoded as JSON. A nil v
// sends no body.
func JSONRequest(t testing.TB, method, path string, v any) *http.Request {
	t.Helper()
	var body bytes.Buffer
	if v != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(v), "encode request body")
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Serve runs req against h.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// Decode decodes the recorded JSON body into T.
func Decode[T any](t testing.TB, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "decode response: %s", rr.Body.String())
	return out
}

// AssertError checks the status and the error code of an error envelope.
func AssertError(t testing.TB, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, "unexpected status, body: %s", rr.Body.String())
	body := Decode[map[string]string](t, rr)
	assert.Equal(t, code, body["error"], "unexpected error code")
}
