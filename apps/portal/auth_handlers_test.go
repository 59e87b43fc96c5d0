package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"grievance/libs/supabase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginRequest(email, password string) *http.Request {
	form := url.Values{"email": {email}, "password": {password}, "next": {"/status"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginIsRateLimitedPerClient(t *testing.T) {
	app, router, _ := newPortalTestServer(t)

	var attempts atomic.Int32
	gotrue := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
	}))
	t.Cleanup(gotrue.Close)
	app.supabase = supabase.New(supabase.Config{URL: gotrue.URL, AnonKey: "anon"}, gotrue.Client())

	for i := 0; i < loginRateLimitRequests; i++ {
		res := serve(router, loginRequest("citizen@example.in", "wrong-password"))
		require.NotEqual(t, http.StatusTooManyRequests, res.Code, "attempt %d", i+1)
	}
	assert.EqualValues(t, loginRateLimitRequests, attempts.Load())

	res := serve(router, loginRequest("citizen@example.in", "wrong-password"))
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Contains(t, res.Body.String(), mustText(t, "en", "error_rate_limited"))
	assert.EqualValues(t, loginRateLimitRequests, attempts.Load())
}
