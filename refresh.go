package eduwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ambiyansyah-risyal/eduwire/internal/singleflight"
)

const refreshEndpoint = "/auth/refresh/"

// refreshKey is the single key under which all refresh attempts coalesce;
// refresh mutual exclusion is global, not per endpoint.
const refreshKey = "refresh"

// refreshCoordinator serializes concurrent token refreshes. While a refresh
// is in flight every other 401 holder waits on the same outcome instead of
// issuing a redundant refresh that could invalidate the first one's token.
type refreshCoordinator struct {
	client  *Client
	group   *singleflight.Group
	timeout time.Duration
}

func newRefreshCoordinator(client *Client, timeout time.Duration) *refreshCoordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &refreshCoordinator{
		client:  client,
		group:   singleflight.New(),
		timeout: timeout,
	}
}

// refresh exchanges the stored refresh token for a new credential pair. On
// any failure (including the hard timeout) credentials are cleared so that
// dependents surface an auth error and stop retrying.
func (rc *refreshCoordinator) refresh(ctx context.Context) (Credentials, error) {
	v, err := rc.group.Do(ctx, refreshKey, func() (interface{}, error) {
		// The refresh outcome is shared by every queued continuation, so it
		// must not die with the first caller's context. Bound it by the hard
		// timeout instead.
		refreshCtx, cancel := context.WithTimeout(context.Background(), rc.timeout)
		defer cancel()

		creds, err := rc.doRefresh(refreshCtx)
		if err != nil {
			if clearErr := rc.client.credStore.Clear(); clearErr != nil {
				rc.client.logDebug("Clearing credentials failed", "error", clearErr.Error())
			}
			rc.client.metrics.RecordTokenRefresh("failure")
			return nil, err
		}

		if err := rc.client.credStore.Save(creds); err != nil {
			// Drop the stale pair too, so dependents surface a clean auth
			// failure instead of re-refreshing on the next 401.
			if clearErr := rc.client.credStore.Clear(); clearErr != nil {
				rc.client.logDebug("Clearing credentials failed", "error", clearErr.Error())
			}
			rc.client.metrics.RecordTokenRefresh("failure")
			return nil, fmt.Errorf("persist refreshed credentials: %w", err)
		}
		rc.client.metrics.RecordTokenRefresh("success")
		return creds, nil
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

// refreshReply is the wire contract of POST /auth/refresh/.
type refreshReply struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

func (rc *refreshCoordinator) doRefresh(ctx context.Context) (Credentials, error) {
	current, err := rc.client.credStore.Load()
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if current.RefreshToken == "" {
		return Credentials{}, ErrRefreshFailed
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
	if err != nil {
		return Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.client.baseURL+refreshEndpoint, bytes.NewReader(payload))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rc.client.httpClient.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := normalizeErrorBody(body)
		if msg == "" {
			msg = resp.Status
		}
		return Credentials{}, fmt.Errorf("%w: %s", ErrRefreshFailed, msg)
	}

	data, err := normalizePayload(body)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	var reply refreshReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if reply.Token == "" {
		return Credentials{}, ErrRefreshFailed
	}

	next := Credentials{
		AccessToken:  reply.Token,
		RefreshToken: current.RefreshToken,
	}
	// The server may rotate the refresh token alongside the access token.
	if reply.RefreshToken != "" {
		next.RefreshToken = reply.RefreshToken
	}

	return next, nil
}
