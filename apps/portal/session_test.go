package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateGuard(t *testing.T) {
	citizen := &PortalSession{Email: "c@example.com", Role: roleCitizen}

	tests := []struct {
		name         string
		resolved     bool
		session      *PortalSession
		requireAdmin bool
		isAdmin      bool
		want         guardState
	}{
		{"unresolved", false, nil, false, false, guardLoading},
		{"unresolved with session", false, citizen, true, true, guardLoading},
		{"anonymous", true, nil, false, false, guardRedirectLogin},
		{"anonymous on admin route", true, nil, true, false, guardRedirectLogin},
		{"citizen on session route", true, citizen, false, false, guardAllow},
		{"citizen on admin route", true, citizen, true, false, guardRedirectHome},
		{"admin on admin route", true, citizen, true, true, guardAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateGuard(tt.resolved, tt.session, tt.requireAdmin, tt.isAdmin))
		})
	}
}

func TestAdminRouteRedirectsAnonymousToLogin(t *testing.T) {
	_, router, fake := newPortalTestServer(t)

	res := serve(router, httptest.NewRequest(http.MethodGet, "/admin?status=open", nil))

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login?next="+url.QueryEscape("/admin?status=open"), res.Header().Get("Location"))
	assert.Zero(t, fake.callCount())
}

func TestAdminRouteIgnoresRoleClaimOutsideAllowlist(t *testing.T) {
	app, router, fake := newPortalTestServer(t)

	// The cookie claims admin but the email is not on the allowlist.
	req := requestWithSession(t, app, http.MethodGet, "/admin", nil, PortalSession{Email: "mallory@example.com", Role: roleAdmin})
	res := serve(router, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	location, err := url.Parse(res.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/", location.Path)
	assert.Equal(t, mustText(t, "en", "error_admin_required"), location.Query().Get("error"))
	assert.Zero(t, fake.callCount())
}

func TestAdminRouteAllowsAllowlistedEmail(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodGet, "/api/admin/dashboard", http.StatusOK,
		`{"success":true,"metrics":{"total_complaints":2,"by_status":{"open":2},"sla_breaches":1,"by_department":{"Water Supply":2}}}`)
	fake.reply(http.MethodGet, "/api/admin/complaints", http.StatusOK,
		`{"success":true,"complaints":[{"id":"CMP-1","status":"open","description":"No water since Monday","current_department":"Water Supply"}]}`)

	// Allowlisted admins pass even when the cookie still says citizen.
	req := requestWithSession(t, app, http.MethodGet, "/admin", nil, PortalSession{Email: "Admin@Example.com", Role: roleCitizen})
	res := serve(router, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "CMP-1")
	assert.Contains(t, res.Body.String(), "Water Supply")
}

func TestSessionTokenRoundTripAndTamper(t *testing.T) {
	app := &App{cfg: &Config{AppSigningSecret: "0123456789abcdef"}}
	token, err := app.createSessionToken(PortalSession{UserID: "u1", Email: "a@example.com", Role: roleCitizen})
	require.NoError(t, err)

	session, err := app.verifySessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, PortalSession{UserID: "u1", Email: "a@example.com", Role: roleCitizen}, *session)

	other := &App{cfg: &Config{AppSigningSecret: "fedcba9876543210"}}
	_, err = other.verifySessionToken(token)
	assert.Error(t, err)
}

func TestSanitizeRedirectTarget(t *testing.T) {
	tests := map[string]string{
		"":                         "/fallback",
		"/admin?status=open":       "/admin?status=open",
		"https://evil.example/":    "/fallback",
		"//evil.example/path":      "/fallback",
		"/\\evil.example":          "/fallback",
		"relative/path":            "/fallback",
		"/login?next=/admin":       "/fallback",
		"/forum/CMP-1?notice=done": "/forum/CMP-1?notice=done",
	}
	for input, want := range tests {
		assert.Equal(t, want, sanitizeRedirectTarget(input, "/fallback"), "input %q", input)
	}
}

func TestCheckRateLimitWindow(t *testing.T) {
	app := &App{rateBuckets: map[string]rateBucket{}}
	now := time.Now()
	for i := 0; i < 3; i++ {
		assert.True(t, app.checkRateLimit("k", 3, time.Minute, now))
	}
	assert.False(t, app.checkRateLimit("k", 3, time.Minute, now.Add(10*time.Second)))
	assert.True(t, app.checkRateLimit("k", 3, time.Minute, now.Add(time.Minute)))
	assert.True(t, app.checkRateLimit("other", 3, time.Minute, now))
}

func TestLanguageSwitchSetsCookie(t *testing.T) {
	_, router, _ := newPortalTestServer(t)

	form := url.Values{"lang": {"mr"}, "next": {"/status?id=CMP-1"}}
	req := httptest.NewRequest(http.MethodPost, "/language", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := serve(router, req)

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/status?id=CMP-1", res.Header().Get("Location"))
	var found bool
	for _, cookie := range res.Result().Cookies() {
		if cookie.Name == languageCookieName {
			found = true
			assert.Equal(t, "mr", cookie.Value)
		}
	}
	assert.True(t, found)
}
