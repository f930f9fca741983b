// Package syncer moves batches of change entries between the instance and
// the central authority, and applies the results to local storage.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/wire"
)

// Client is the transport to the central authority.
type Client interface {
	Push(ctx context.Context, changes []wire.ChangeRecord) (*wire.PushResponse, error)
	Pull(ctx context.Context, sinceCursor int64, limit int) (*wire.PullResponse, error)
	PresignPut(ctx context.Context) (*wire.PresignPutResponse, error)
	PresignGet(ctx context.Context, key string) (*wire.PresignGetResponse, error)
	Ping(ctx context.Context) error
}

// HTTPClient talks JSON over HTTP to the central push/pull endpoints and
// manages the instance access token, re-authenticating with the API secret
// when the token expires.
type HTTPClient struct {
	baseURL    string
	instanceID string
	apiSecret  string

	http        *http.Client
	accessToken string
}

func NewHTTPClient(baseURL, instanceID, apiSecret string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		instanceID: instanceID,
		apiSecret:  apiSecret,
		http:       &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Push(ctx context.Context, changes []wire.ChangeRecord) (*wire.PushResponse, error) {
	req := wire.PushRequest{InstanceID: c.instanceID, Changes: changes}
	var resp wire.PushResponse
	if err := c.doAuthed(ctx, http.MethodPost, "/api/v1/sync/push", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Pull(ctx context.Context, sinceCursor int64, limit int) (*wire.PullResponse, error) {
	req := wire.PullRequest{InstanceID: c.instanceID, SinceCursor: sinceCursor, Limit: limit}
	var resp wire.PullResponse
	if err := c.doAuthed(ctx, http.MethodPost, "/api/v1/sync/pull", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) PresignPut(ctx context.Context) (*wire.PresignPutResponse, error) {
	var resp wire.PresignPutResponse
	if err := c.doAuthed(ctx, http.MethodPost, "/api/v1/attachments/presign-put", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) PresignGet(ctx context.Context, key string) (*wire.PresignGetResponse, error) {
	var resp wire.PresignGetResponse
	path := "/api/v1/attachments/presign-get?key=" + url.QueryEscape(key)
	if err := c.doAuthed(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return common.ErrSyncUnavailable
	}
	return nil
}

// doAuthed performs an authenticated JSON exchange. On the first
// Unauthorized answer it refreshes the access token using the instance API
// secret and retries once, mirroring a token-expiry mid-flight.
func (c *HTTPClient) doAuthed(ctx context.Context, method, path string, body any, out any) error {
	if c.accessToken == "" {
		if err := c.authenticate(ctx); err != nil {
			return err
		}
	}

	status, err := c.doJSON(ctx, method, path, body, out, c.accessToken)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := c.authenticate(ctx); err != nil {
			return err
		}
		status, err = c.doJSON(ctx, method, path, body, out, c.accessToken)
		if err != nil {
			return err
		}
	}
	if status == http.StatusUnauthorized {
		return common.ErrUnauthorized
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", status, path)
	}
	return nil
}

func (c *HTTPClient) authenticate(ctx context.Context) error {
	req := wire.TokenRequest{InstanceID: c.instanceID, APISecret: c.apiSecret}
	var resp wire.TokenResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/instances/token", req, &resp, "")
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return common.ErrUnauthorized
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d from token endpoint", status)
	}
	c.accessToken = resp.AccessToken
	return nil
}

// doJSON sends one request and decodes the answer. Unauthorized is returned
// as a status, not an error, so doAuthed can refresh and retry; everything
// else non-2xx is decoded into the uniform error body.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any, token string) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(common.AuthHeaderName, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		var er wire.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err == nil && er.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s: %s", resp.Status, er.Error)
		}
		return resp.StatusCode, nil
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
