// Package testutil holds helpers shared by handler and router tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// APIClient sends JSON requests straight to a handler, optionally as a
// logged-in user.
type APIClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func NewAPIClient(t *testing.T, handler http.Handler) *APIClient {
	return &APIClient{t: t, handler: handler}
}

// As returns a client that sends token as its bearer credential. An empty
// token sends no Authorization header.
func (c *APIClient) As(token string) *APIClient {
	clone := *c
	clone.token = token
	return &clone
}

// Do sends body marshalled to JSON; a nil body sends no payload.
func (c *APIClient) Do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err, "marshal request body")
		payload = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

// Login posts credentials to /auth/login and returns the access token.
func (c *APIClient) Login(username, password string) string {
	c.t.Helper()
	rec := c.As("").Do(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(c.t, http.StatusOK, rec.Code, "login %s: %s", username, rec.Body.String())
	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(c.t, body.AccessToken)
	return body.AccessToken
}

// Decode unmarshals the response body into a T.
func Decode[T any](t *testing.T, rec *httptest.ResponseRecorder) *T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "decode response: %s", rec.Body.String())
	return &out
}

// RequireError checks the status and the "error" code of an error body.
func RequireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	body := Decode[map[string]string](t, rec)
	assert.Equal(t, code, (*body)["error"])
}
