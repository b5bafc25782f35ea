package eduwire

import (
	"context"
	"fmt"
	"net/http"
)

const (
	loginEndpoint  = "/auth/login/"
	logoutEndpoint = "/auth/logout/"
)

// loginReply is the wire contract of POST /auth/login/.
type loginReply struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Login authenticates with the backend and stores the returned credential
// pair. A 401 here means bad credentials, not an expired token, so no refresh
// is attempted.
func (c *Client) Login(ctx context.Context, username, password string) error {
	resp, err := c.Execute(ctx, &Request{
		Method: http.MethodPost,
		Path:   loginEndpoint,
		Body:   map[string]string{"username": username, "password": password},
	})
	if err != nil {
		return err
	}

	var reply loginReply
	if err := resp.Decode(&reply); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if reply.Token == "" {
		return ErrNotAuthenticated
	}

	if err := c.credStore.Save(Credentials{
		AccessToken:  reply.Token,
		RefreshToken: reply.RefreshToken,
	}); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}

	return nil
}

// Logout tells the backend to revoke the session, then clears local
// credentials and the response cache. Local cleanup happens even when the
// revoke call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, callErr := c.Execute(ctx, &Request{Method: http.MethodPost, Path: logoutEndpoint})

	if err := c.credStore.Clear(); err != nil {
		return err
	}
	c.ClearCache()

	if callErr != nil {
		c.logDebug("Server-side logout failed", "error", callErr.Error())
	}
	return nil
}

// Token returns the current access token, reloading it from the store.
func (c *Client) Token() string {
	creds, err := c.credStore.Load()
	if err != nil {
		return ""
	}
	return creds.AccessToken
}

// IsAuthenticated reports whether an access token is currently held.
func (c *Client) IsAuthenticated() bool {
	return c.Token() != ""
}
