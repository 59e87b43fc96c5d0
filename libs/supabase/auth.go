package supabase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// User is the identity returned by GoTrue.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Session is a GoTrue session. AccessToken is empty after a sign-up that
// still awaits email confirmation.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// AccessClaims are the claims of a Supabase access token.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	var out Session
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/v1/token",
		query:       url.Values{"grant_type": {"password"}},
		contentType: "application/json",
		body:        body,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SignUp registers a new account. When the project requires email
// confirmation GoTrue answers with the bare user and the returned session has
// no access token.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*Session, error) {
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	var out struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/v1/signup",
		query:       query,
		contentType: "application/json",
		body:        body,
	}, &out)
	if err != nil {
		return nil, err
	}
	session := out.Session
	if session.User.ID == "" && out.ID != "" {
		session.User = User{ID: out.ID, Email: out.Email}
	}
	return &session, nil
}

// GetUser resolves the user behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var out User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", bearer: accessToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut revokes the session behind an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", bearer: accessToken}, nil)
}

// AuthorizeURL builds the OAuth redirect for provider using the PKCE flow.
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	query := url.Values{}
	query.Set("provider", provider)
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	if codeChallenge != "" {
		query.Set("code_challenge", codeChallenge)
		query.Set("code_challenge_method", "s256")
	}
	return c.baseURL + "/auth/v1/authorize?" + query.Encode()
}

// ExchangeCode completes the PKCE flow started by AuthorizeURL.
func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*Session, error) {
	body, err := jsonBody(map[string]string{"auth_code": authCode, "code_verifier": codeVerifier})
	if err != nil {
		return nil, err
	}
	var out Session
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/v1/token",
		query:       url.Values{"grant_type": {"pkce"}},
		contentType: "application/json",
		body:        body,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// NewPKCE returns a random code verifier and its S256 challenge.
func NewPKCE() (verifier, challenge string, err error) {
	buffer := make([]byte, 32)
	if _, err := rand.Read(buffer); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(buffer)
	return verifier, PKCEChallenge(verifier), nil
}

// PKCEChallenge derives the S256 challenge of verifier.
func PKCEChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyAccessToken validates a Supabase access token locally with the
// project's JWT secret.
func (c *Client) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	if c.jwtSecret == "" {
		return nil, errors.New("supabase jwt secret not configured")
	}
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(c.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid access token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("access token without subject")
	}
	return claims, nil
}
