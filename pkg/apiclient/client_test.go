package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", 2*time.Second)
}

func TestGetDecodesDataEnvelope(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	var gotPath, gotQuery, gotReqID string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotReqID = r.Header.Get(RequestIDHeader)
		w.Write([]byte(`{"success":true,"data":{"name":"Ana"}}`))
	})

	var out struct {
		Name string `json:"name"`
	}
	err := c.Get(context.Background(), "/auth/profile", url.Values{"page": {"2"}}, &out)
	require.NoError(err)
	assert.Equal("Ana", out.Name)
	assert.Equal("/api/auth/profile", gotPath)
	assert.Equal("page=2", gotQuery)
	assert.NotEmpty(gotReqID)
}

func TestServerMessageIsSurfaced(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Email already registered"}`))
	})

	err := c.Post(context.Background(), "/auth/register", map[string]string{"email": "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, "Email already registered", Message(err, "Registration failed"))
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.False(t, errors.Is(err, ErrTransport))
}

func TestMissingMessageFallsBack(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<html>oops</html>`))
	})

	err := c.Put(context.Background(), "/auth/profile", map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, "Failed to update profile", Message(err, "Failed to update profile"))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(base, time.Second)
	err := c.Get(context.Background(), "/rides", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, "Login failed", Message(err, "Login failed"))
	assert.Equal(t, 0, StatusCode(err))
}

func TestBearerDefaultHeader(t *testing.T) {
	assert := assert.New(t)

	var seen []string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{}}`))
	})
	ctx := context.Background()

	assert.NoError(c.Get(ctx, "/a", nil, nil))
	c.SetBearer("tok-1")
	assert.True(c.HasBearer())
	assert.NoError(c.Get(ctx, "/b", nil, nil))
	c.SetBearer("")
	assert.False(c.HasBearer())
	assert.NoError(c.Get(ctx, "/c", nil, nil))

	assert.Equal([]string{"", "Bearer tok-1", ""}, seen)
}

func TestMissingDataIsAnError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})
	var out map[string]any
	err := c.Get(context.Background(), "/auth/profile", nil, &out)
	assert.Error(t, err)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "backend returned 401: Token is not valid", (&Error{Status: 401, Message: "Token is not valid"}).Error())
	assert.Equal(t, "backend returned 502", (&Error{Status: 502}).Error())
	wrapped := fmt.Errorf("load user: %w", &Error{Status: 401, Message: "expired"})
	assert.Equal(t, "expired", Message(wrapped, "fallback"))
}

func TestRequestIDFromContext(t *testing.T) {
	var got string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
		w.Write([]byte(`{"data":{}}`))
	})

	ctx := WithRequestID(context.Background(), "trace-123")
	require.NoError(t, c.Get(ctx, "/rides", nil, nil))
	assert.Equal(t, "trace-123", got)
}
