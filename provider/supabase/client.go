// Package supabase talks to the Supabase Auth (GoTrue) REST API: password
// sign-in for Login and token introspection for the verifier chain.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
)

const defaultTimeout = 10 * time.Second

// ErrUnexpectedStatus is returned for non-success responses that do not
// mean rejected credentials.
var ErrUnexpectedStatus = errors.New("supabase: unexpected status")

// Config points the client at a Supabase project.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

var (
	_ authcore.IdentityProvider = (*Client)(nil)
	_ jwt.Introspector          = (*Client)(nil)
)

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("supabase: URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("supabase: AnonKey is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: base, anonKey: cfg.AnonKey, http: hc}, nil
}

// Issuer is the iss value Supabase stamps on its access tokens.
func (c *Client) Issuer() string {
	return c.baseURL + "/auth/v1"
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	User userResponse `json:"user"`
}

// SignInWithPassword exchanges credentials for the Supabase user id.
// Rejected credentials yield authcore.ErrInvalidCredentials.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase sign-in: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", authcore.ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("supabase sign-in: decode: %w", err)
	}
	if out.User.ID == "" {
		return "", fmt.Errorf("supabase sign-in: response without user id")
	}
	return out.User.ID, nil
}

// Introspect asks Supabase who the bearer of token is. Any failure means the
// token is not accepted.
func (c *Client) Introspect(ctx context.Context, token string) (*jwt.ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase introspect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("supabase introspect: decode: %w", err)
	}
	if user.ID == "" {
		return nil, errors.New("supabase introspect: response without user id")
	}

	return &jwt.ExternalIdentity{
		Subject: user.ID,
		Email:   user.Email,
		Issuer:  c.Issuer(),
	}, nil
}
