package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"LostFoundNotifier/internal/domain"
)

const legacyEndpoint = "https://fcm.googleapis.com/fcm/send"

// LegacyBatchLimit is the provider's cap on registration_ids per request.
const LegacyBatchLimit = 500

// legacyInvalidErrors are the per-index error codes that mean the token
// should be deleted.
var legacyInvalidErrors = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"MissingRegistration": true,
}

// LegacyResult is the provider's raw answer to one legacy request plus the
// tokens it flagged as invalid.
type LegacyResult struct {
	Status        int
	Body          json.RawMessage
	InvalidTokens []string
}

// LegacySender posts batch messages to the legacy FCM endpoint with a
// static server key.
type LegacySender struct {
	client *http.Client
	url    string
}

func NewLegacySender(client *http.Client) *LegacySender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &LegacySender{client: client, url: legacyEndpoint}
}

// Dispatch sends the message to every token in chunks of at most
// LegacyBatchLimit. A failed chunk is recorded as one failed outcome and
// does not stop the remaining chunks.
func (s *LegacySender) Dispatch(ctx context.Context, serverKey string, tokens []string, msg domain.Message) ([]domain.DispatchOutcome, []string) {
	var outcomes []domain.DispatchOutcome
	var invalid []string

	for start := 0; start < len(tokens); start += LegacyBatchLimit {
		end := start + LegacyBatchLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]

		res, err := s.SendBatch(ctx, serverKey, chunk, msg)
		if err != nil {
			outcomes = append(outcomes, domain.DispatchOutcome{OK: false, Error: err.Error()})
			continue
		}
		ok := res.Status >= 200 && res.Status < 300
		outcomes = append(outcomes, domain.DispatchOutcome{OK: ok, Status: res.Status, Body: res.Body})
		invalid = append(invalid, res.InvalidTokens...)
	}
	return outcomes, invalid
}

// SendBatch issues one legacy request for up to LegacyBatchLimit tokens and
// maps the provider's per-index results back onto them.
func (s *LegacySender) SendBatch(ctx context.Context, serverKey string, tokens []string, msg domain.Message) (LegacyResult, error) {
	payload := map[string]any{
		"registration_ids": tokens,
		"notification":     msg.Notification,
		"data":             msg.Data,
		"priority":         "high",
	}
	status, body, err := s.post(ctx, serverKey, payload)
	if err != nil {
		return LegacyResult{}, err
	}

	out := LegacyResult{Status: status, Body: rawJSON(body)}
	var parsed struct {
		Results []struct {
			Error string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for i, r := range parsed.Results {
			if i >= len(tokens) {
				break
			}
			if legacyInvalidErrors[r.Error] {
				out.InvalidTokens = append(out.InvalidTokens, tokens[i])
			}
		}
	}
	return out, nil
}

// SendSingle addresses one token with the `to` form of the legacy payload.
func (s *LegacySender) SendSingle(ctx context.Context, serverKey, token string, msg domain.Message) (LegacyResult, error) {
	payload := map[string]any{
		"to":           token,
		"notification": msg.Notification,
		"data":         msg.Data,
		"priority":     "high",
	}
	status, body, err := s.post(ctx, serverKey, payload)
	if err != nil {
		return LegacyResult{}, err
	}
	return LegacyResult{Status: status, Body: rawJSON(body)}, nil
}

func (s *LegacySender) post(ctx context.Context, serverKey string, payload map[string]any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal legacy payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("build legacy request: %w", err)
	}
	req.Header.Set("Authorization", "key="+serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send legacy request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, body, nil
}
