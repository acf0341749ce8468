package apiclient

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials holds the token pair of one dashboard user. The client updates it in place
// when it refreshes, so callers can persist the new pair after the request.
type Credentials struct {
	mu        sync.Mutex
	refreshMu sync.Mutex
	subject   string
	access    string
	refresh   string
	changed   bool
}

// NewCredentials wraps a token pair for the given subject (user id).
func NewCredentials(subject, access, refresh string) *Credentials {
	return &Credentials{subject: subject, access: access, refresh: refresh}
}

// Subject returns the user id the tokens belong to.
func (c *Credentials) Subject() string {
	if c == nil {
		return ""
	}
	return c.subject
}

// Tokens returns the current access and refresh tokens.
func (c *Credentials) Tokens() (access, refresh string) {
	if c == nil {
		return "", ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, c.refresh
}

// Update swaps the token pair. An empty refresh token keeps the previous one.
func (c *Credentials) Update(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = access
	if refresh != "" {
		c.refresh = refresh
	}
	c.changed = true
}

// Changed reports whether the pair was refreshed since construction.
func (c *Credentials) Changed() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

type credentialsKey struct{}

// WithCredentials attaches credentials to ctx for subsequent API calls.
func WithCredentials(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFrom extracts credentials from ctx.
func CredentialsFrom(ctx context.Context) *Credentials {
	creds, _ := ctx.Value(credentialsKey{}).(*Credentials)
	return creds
}

// tokenExpiry reads the exp claim without verifying the signature; the backend remains
// the authority on token validity.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
