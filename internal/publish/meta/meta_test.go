package meta

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwisp/mediadrop/internal/publish"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(publish.NewGateway(), Config{
		BaseURL:     srv.URL,
		UserToken:   "user-token",
		PageID:      "page1",
		InstagramID: "ig1",
	})
	require.NoError(t, err)
	return c
}

func TestPageAccessToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/accounts", r.URL.Path)
		assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
		fmt.Fprint(w, `{"data":[{"id":"other","name":"Other","access_token":"x"},{"id":"page1","name":"Mine","access_token":"page-token"}]}`)
	})

	token, err := c.PageAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "page-token", token)
}

func TestPageAccessTokenPageNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"other","name":"Other","access_token":"x"}]}`)
	})

	_, err := c.PageAccessToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCheckTokenInvalid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/debug_token", r.URL.Path)
		fmt.Fprint(w, `{"data":{"is_valid":false}}`)
	})

	err := c.CheckToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired")
}

func TestCheckTokenValid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"is_valid":true,"expires_at":0}}`)
	})
	require.NoError(t, c.CheckToken(context.Background()))
}

func TestInstagramLinked(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page1", r.URL.Path)
		fmt.Fprint(w, `{"instagram_business_account":{"id":"ig1"}}`)
	})
	require.NoError(t, c.InstagramLinked(context.Background(), "page-token"))
}

func TestInstagramLinkedMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"instagram_business_account":{"id":"someone-else"}}`)
	})

	err := c.InstagramLinked(context.Background(), "page-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestInstagramNotLinked(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	err := c.InstagramLinked(context.Background(), "page-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no instagram account connected")
}

func TestNewRequiresTokenAndPage(t *testing.T) {
	var missing publish.MissingEnvError
	_, err := New(publish.NewGateway(), Config{})
	require.ErrorAs(t, err, &missing)
}
