package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grievance/libs/supabase"

	"github.com/gin-gonic/gin"
)

var oauthProviders = map[string]bool{"google": true, "github": true}

type authViewData struct {
	baseViewData
	Email string
	Next  string
}

func (a *App) authUnavailable(c *gin.Context) bool {
	if a.supabase != nil {
		return false
	}
	lang := a.languageFromRequest(c)
	writeAPIError(c, &apiError{Status: http.StatusServiceUnavailable, Code: "auth_unavailable", Message: t(lang, "auth_disabled_notice")})
	return true
}

func (a *App) loginPageHandler(c *gin.Context) {
	if session := a.currentSession(c); session != nil {
		c.Redirect(http.StatusSeeOther, sanitizeRedirectTarget(c.Query("next"), "/"))
		return
	}
	a.renderTemplate(c, http.StatusOK, templateLoginPath, authViewData{
		baseViewData: a.baseData(c, "page_title_login", "login"),
		Next:         sanitizeRedirectTarget(c.Query("next"), "/"),
	})
}

func (a *App) loginSubmitHandler(c *gin.Context) {
	if a.authUnavailable(c) {
		return
	}

	lang := a.languageFromRequest(c)
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	next := sanitizeRedirectTarget(c.PostForm("next"), "/")

	if !a.checkRateLimit("login:"+c.ClientIP(), loginRateLimitRequests, rateLimitWindow, time.Now()) {
		a.renderAuthError(c, http.StatusTooManyRequests, templateLoginPath, "page_title_login", email, next, t(lang, "error_rate_limited"))
		return
	}

	if email == "" || password == "" {
		a.renderAuthError(c, http.StatusBadRequest, templateLoginPath, "page_title_login", email, next, t(lang, "error_credentials_required"))
		return
	}

	session, err := a.supabase.SignInWithPassword(c.Request.Context(), email, password)
	if err != nil {
		status, message := authErrorResponse(lang, err)
		a.log.Warn("sign-in failed", "email", email, "err", err)
		a.renderAuthError(c, status, templateLoginPath, "page_title_login", email, next, message)
		return
	}

	if err := a.establishSession(c, session); err != nil {
		a.log.Error("failed to start session", "err", err)
		a.renderAuthError(c, http.StatusInternalServerError, templateLoginPath, "page_title_login", email, next, t(lang, "error_login_failed"))
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

func (a *App) signupPageHandler(c *gin.Context) {
	a.renderTemplate(c, http.StatusOK, templateSignupPath, authViewData{
		baseViewData: a.baseData(c, "page_title_signup", "signup"),
		Next:         sanitizeRedirectTarget(c.Query("next"), "/"),
	})
}

func (a *App) signupSubmitHandler(c *gin.Context) {
	if a.authUnavailable(c) {
		return
	}

	lang := a.languageFromRequest(c)
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	next := sanitizeRedirectTarget(c.PostForm("next"), "/")

	if !a.checkRateLimit("signup:"+c.ClientIP(), loginRateLimitRequests, rateLimitWindow, time.Now()) {
		a.renderAuthError(c, http.StatusTooManyRequests, templateSignupPath, "page_title_signup", email, next, t(lang, "error_rate_limited"))
		return
	}

	if err := a.validate.Var(email, "required,email"); err != nil {
		a.renderAuthError(c, http.StatusUnprocessableEntity, templateSignupPath, "page_title_signup", email, next, t(lang, "validation_email"))
		return
	}
	if len(password) < 6 {
		a.renderAuthError(c, http.StatusUnprocessableEntity, templateSignupPath, "page_title_signup", email, next, t(lang, "error_password_too_short"))
		return
	}

	redirectTo := a.cfg.PublicBaseURL + "/auth/callback?next=" + url.QueryEscape(next)
	session, err := a.supabase.SignUp(c.Request.Context(), email, password, redirectTo)
	if err != nil {
		status, message := authErrorResponse(lang, err)
		a.renderAuthError(c, status, templateSignupPath, "page_title_signup", email, next, message)
		return
	}

	if session.AccessToken == "" {
		base := a.baseData(c, "page_title_signup", "signup")
		base.NoticeMessage = t(lang, "notice_confirm_email")
		a.renderTemplate(c, http.StatusOK, templateSignupPath, authViewData{baseViewData: base, Email: email, Next: next})
		return
	}

	if err := a.establishSession(c, session); err != nil {
		a.log.Error("failed to start session", "err", err)
		a.renderAuthError(c, http.StatusInternalServerError, templateSignupPath, "page_title_signup", email, next, t(lang, "error_login_failed"))
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

func (a *App) oauthStartHandler(c *gin.Context) {
	if a.authUnavailable(c) {
		return
	}
	provider := strings.ToLower(c.Param("provider"))
	if !oauthProviders[provider] {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Code: "unknown_provider", Message: "Unsupported sign-in provider"})
		return
	}

	verifier, challenge, err := supabase.NewPKCE()
	if err != nil {
		writeAPIError(c, err)
		return
	}

	next := sanitizeRedirectTarget(c.Query("next"), "/")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(pkceCookieName, verifier, int(pkceCookieMaxAge.Seconds()), "/", "", a.secureCookies(), true)
	redirectTo := a.cfg.PublicBaseURL + "/auth/callback?next=" + url.QueryEscape(next)
	c.Redirect(http.StatusSeeOther, a.supabase.AuthorizeURL(provider, redirectTo, challenge))
}

func (a *App) authCallbackHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	next := sanitizeRedirectTarget(c.Query("next"), "/")
	if a.supabase == nil {
		redirectWithMessage(c, "/login", "error", t(lang, "auth_disabled_notice"))
		return
	}

	if providerErr := strings.TrimSpace(c.Query("error_description")); providerErr != "" {
		redirectWithMessage(c, "/login?next="+url.QueryEscape(next), "error", providerErr)
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	verifier, cookieErr := c.Cookie(pkceCookieName)
	c.SetCookie(pkceCookieName, "", -1, "/", "", a.secureCookies(), true)
	if code == "" || cookieErr != nil || verifier == "" {
		redirectWithMessage(c, "/login?next="+url.QueryEscape(next), "error", t(lang, "error_login_failed"))
		return
	}

	session, err := a.supabase.ExchangeCode(c.Request.Context(), code, verifier)
	if err != nil {
		_, message := authErrorResponse(lang, err)
		redirectWithMessage(c, "/login?next="+url.QueryEscape(next), "error", message)
		return
	}
	if err := a.establishSession(c, session); err != nil {
		a.log.Error("failed to start session", "err", err)
		redirectWithMessage(c, "/login", "error", t(lang, "error_login_failed"))
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

func (a *App) logoutSubmitHandler(c *gin.Context) {
	if a.supabase != nil {
		if accessToken, err := c.Cookie(supabaseTokenCookieName); err == nil && accessToken != "" {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			if err := a.supabase.SignOut(ctx, accessToken); err != nil {
				a.log.Warn("supabase sign-out failed", "err", err)
			}
			cancel()
		}
	}
	a.clearSession(c)
	c.Redirect(http.StatusSeeOther, "/")
}

func (a *App) sessionAPIHandler(c *gin.Context) {
	session := a.currentSession(c)
	if session == nil {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"auth_enabled":  a.cfg.SupabaseConfigured,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"email":         session.Email,
		"is_admin":      a.isAdminEmail(session.Email),
		"auth_enabled":  a.cfg.SupabaseConfigured,
	})
}

// establishSession mints the portal cookie for a verified Supabase session.
// When the project JWT secret is configured the access token is checked
// locally, otherwise the user is fetched from the auth server.
func (a *App) establishSession(c *gin.Context, session *supabase.Session) error {
	if session == nil || session.AccessToken == "" {
		return errors.New("empty supabase session")
	}

	userID := session.User.ID
	email := session.User.Email
	if a.cfg.SupabaseJWTSecret != "" {
		claims, err := a.supabase.VerifyAccessToken(session.AccessToken)
		if err != nil {
			return err
		}
		userID = claims.Subject
		if claims.Email != "" {
			email = claims.Email
		}
	} else if email == "" {
		user, err := a.supabase.GetUser(c.Request.Context(), session.AccessToken)
		if err != nil {
			return err
		}
		userID, email = user.ID, user.Email
	}
	if strings.TrimSpace(email) == "" {
		return errors.New("supabase session without email")
	}

	if err := a.startSession(c, PortalSession{UserID: userID, Email: email, Role: a.roleForEmail(email)}); err != nil {
		return err
	}
	maxAge := session.ExpiresIn
	if maxAge <= 0 || maxAge > int(sessionDuration.Seconds()) {
		maxAge = int(sessionDuration.Seconds())
	}
	c.SetCookie(supabaseTokenCookieName, session.AccessToken, maxAge, "/", "", a.secureCookies(), true)
	return nil
}

func (a *App) renderAuthError(c *gin.Context, status int, templatePath, titleKey, email, next, message string) {
	base := a.baseData(c, titleKey, "")
	base.ErrorMessage = message
	a.renderTemplate(c, status, templatePath, authViewData{baseViewData: base, Email: email, Next: next})
}

func authErrorResponse(lang string, err error) (int, string) {
	var authErr *supabase.Error
	if errors.As(err, &authErr) {
		switch {
		case authErr.Status == http.StatusBadRequest || authErr.Status == http.StatusUnauthorized:
			if authErr.Message != "" {
				return http.StatusUnauthorized, authErr.Message
			}
			return http.StatusUnauthorized, t(lang, "error_invalid_credentials")
		case authErr.Status == http.StatusUnprocessableEntity || authErr.Status == http.StatusTooManyRequests:
			if authErr.Message != "" {
				return authErr.Status, authErr.Message
			}
			return authErr.Status, t(lang, "error_login_failed")
		}
		return http.StatusBadGateway, t(lang, "error_login_failed")
	}
	if errors.Is(err, supabase.ErrUnavailable) {
		return http.StatusBadGateway, t(lang, "error_network")
	}
	return http.StatusInternalServerError, t(lang, "error_login_failed")
}
