// Package postgrest talks to a Supabase data API with the service-role key.
// It implements the token and notification stores over plain REST so the
// server can run without a direct database connection.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"LostFoundNotifier/internal/domain"
)

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New builds a client for the data API at baseURL (the project URL, without
// the /rest/v1 suffix) authenticated with the service-role key.
func New(baseURL, apiKey string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// flexID tolerates the id column arriving as a number or a string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type deviceTokenRow struct {
	ID     flexID `json:"id"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func (c *Client) ListTokensExcluding(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	q := url.Values{}
	q.Set("select", "id,user_id,token")
	q.Set("user_id", "not.eq."+userID)

	body, err := c.do(ctx, http.MethodGet, "/rest/v1/device_tokens?"+q.Encode(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}

	var rows []deviceTokenRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("list device tokens: decode: %w", err)
	}
	out := make([]domain.DeviceToken, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.DeviceToken{ID: string(r.ID), UserID: r.UserID, Token: r.Token})
	}
	return out, nil
}

func (c *Client) DeleteTokenByValue(ctx context.Context, token string) error {
	q := url.Values{}
	q.Set("token", "eq."+token)
	if _, err := c.do(ctx, http.MethodDelete, "/rest/v1/device_tokens?"+q.Encode(), nil, nil); err != nil {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}

func (c *Client) InsertNotifications(ctx context.Context, rows []domain.InAppNotification) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return 0, fmt.Errorf("insert notifications: encode: %w", err)
	}

	headers := map[string]string{"Prefer": "return=representation"}
	body, err := c.do(ctx, http.MethodPost, "/rest/v1/notifications", payload, headers)
	if err != nil {
		return 0, fmt.Errorf("insert notifications: %w", err)
	}

	var returned []json.RawMessage
	if err := json.Unmarshal(body, &returned); err != nil {
		return 0, fmt.Errorf("insert notifications: decode: %w", err)
	}
	return len(returned), nil
}

// Ping checks the data API is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	if _, err := c.do(ctx, http.MethodGet, "/rest/v1/device_tokens?"+q.Encode(), nil, nil); err != nil {
		return fmt.Errorf("data api ping: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("data api %s %s: status %s: %s", method, path, strconv.Itoa(resp.StatusCode), truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
