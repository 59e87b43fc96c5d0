package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	roleCitizen = "citizen"
	roleAdmin   = "admin"

	sessionContextKey = "portalSession"
)

// PortalSession is the identity carried by the portal session cookie.
type PortalSession struct {
	UserID string
	Email  string
	Role   string
}

func (s PortalSession) IsAdmin() bool {
	return s.Role == roleAdmin
}

type guardState string

const (
	guardLoading       guardState = "loading"
	guardAllow         guardState = "allow"
	guardRedirectLogin guardState = "redirect_login"
	guardRedirectHome  guardState = "redirect_home"
)

// evaluateGuard decides what a protected route does with the resolved session.
// isAdmin is the server-side allowlist verdict for the session's email.
func evaluateGuard(resolved bool, session *PortalSession, requireAdmin, isAdmin bool) guardState {
	if !resolved {
		return guardLoading
	}
	if session == nil {
		return guardRedirectLogin
	}
	if requireAdmin && !isAdmin {
		return guardRedirectHome
	}
	return guardAllow
}

func (a *App) createSessionToken(session PortalSession) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   session.UserID,
		"email": session.Email,
		"role":  session.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(sessionDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifySessionToken(tokenString string) (*PortalSession, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	subject, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if strings.TrimSpace(email) == "" || (role != roleCitizen && role != roleAdmin) {
		return nil, fmt.Errorf("invalid session payload")
	}
	return &PortalSession{UserID: subject, Email: email, Role: role}, nil
}

func (a *App) isAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, allowed := range a.cfg.AdminEmails {
		if allowed == email {
			return true
		}
	}
	return false
}

func (a *App) roleForEmail(email string) string {
	if a.isAdminEmail(email) {
		return roleAdmin
	}
	return roleCitizen
}

func (a *App) secureCookies() bool {
	return strings.EqualFold(a.cfg.Env, "production")
}

func (a *App) startSession(c *gin.Context, session PortalSession) error {
	token, err := a.createSessionToken(session)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, token, int(sessionDuration.Seconds()), "/", "", a.secureCookies(), true)
	return nil
}

func (a *App) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, "", -1, "/", "", a.secureCookies(), true)
	c.SetCookie(supabaseTokenCookieName, "", -1, "/", "", a.secureCookies(), true)
}

// currentSession resolves the session cookie once per request. A missing or
// invalid cookie resolves to nil.
func (a *App) currentSession(c *gin.Context) *PortalSession {
	if value, ok := c.Get(sessionContextKey); ok {
		session, _ := value.(*PortalSession)
		return session
	}
	var session *PortalSession
	if token, err := c.Cookie(sessionCookieName); err == nil && token != "" {
		if verified, err := a.verifySessionToken(token); err == nil {
			session = verified
		}
	}
	c.Set(sessionContextKey, session)
	return session
}

// requireAdmin sends anonymous visitors to login and signed-in non-admins home.
func (a *App) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := a.currentSession(c)
		isAdmin := false
		if session != nil {
			// The cookie role is only a hint; the allowlist decides.
			isAdmin = a.isAdminEmail(session.Email)
		}
		state := evaluateGuard(true, session, true, isAdmin)

		switch state {
		case guardAllow:
			c.Next()
		case guardRedirectLogin:
			next := sanitizeRedirectTarget(c.Request.URL.RequestURI(), "/")
			c.Redirect(http.StatusSeeOther, "/login?next="+url.QueryEscape(next))
			c.Abort()
		case guardRedirectHome:
			redirectWithMessage(c, "/", "error", t(a.languageFromRequest(c), "error_admin_required"))
			c.Abort()
		default:
			c.AbortWithStatus(http.StatusServiceUnavailable)
		}
	}
}

func getPortalSession(c *gin.Context) (PortalSession, error) {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return PortalSession{}, fmt.Errorf("missing session")
	}
	session, ok := value.(*PortalSession)
	if !ok || session == nil {
		return PortalSession{}, fmt.Errorf("invalid session")
	}
	return *session, nil
}

func sanitizeRedirectTarget(rawNext, fallback string) string {
	next := strings.TrimSpace(rawNext)
	if next == "" {
		return fallback
	}

	parsed, err := url.Parse(next)
	if err != nil || parsed.IsAbs() || parsed.Host != "" || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	if !strings.HasPrefix(parsed.Path, "/") {
		return fallback
	}

	switch parsed.Path {
	case "/login", "/signup", "/logout", "/language", "/auth/callback":
		return fallback
	}
	return parsed.RequestURI()
}

func redirectWithMessage(c *gin.Context, target, key, message string) {
	parsed, err := url.Parse(target)
	if err != nil {
		parsed = &url.URL{Path: "/"}
	}
	query := parsed.Query()
	query.Del("error")
	query.Del("notice")
	query.Del("warning")
	if strings.TrimSpace(message) != "" {
		query.Set(key, message)
	}
	parsed.RawQuery = query.Encode()
	c.Redirect(http.StatusSeeOther, parsed.String())
}

func (a *App) checkRateLimit(key string, maxRequests int, window time.Duration, now time.Time) bool {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()

	bucket, ok := a.rateBuckets[key]
	if !ok || now.Sub(bucket.start) >= window {
		a.rateBuckets[key] = rateBucket{start: now, count: 1}
		return true
	}
	bucket.count++
	a.rateBuckets[key] = bucket
	return bucket.count <= maxRequests
}

func (a *App) startRateLimiterCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.pruneRateLimiterState(now)
			}
		}
	}()
}

func (a *App) pruneRateLimiterState(now time.Time) {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()
	for key, bucket := range a.rateBuckets {
		if now.Sub(bucket.start) >= rateLimitWindow {
			delete(a.rateBuckets, key)
		}
	}
}
