package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"LostFoundNotifier/internal/domain"
)

const fcmV1BaseURL = "https://fcm.googleapis.com"

// Credential is one acquired v1 credential, valid for a single dispatch.
type Credential struct {
	AccessToken string
	ProjectID   string
}

// V1Result is the provider's answer to one per-token send. Invalid is set
// when the response identifies the token as permanently dead.
type V1Result struct {
	Status  int
	Body    json.RawMessage
	Invalid bool
}

// V1Sender posts single-recipient messages to the FCM HTTP v1 endpoint.
type V1Sender struct {
	client  *http.Client
	baseURL string
}

func NewV1Sender(client *http.Client) *V1Sender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &V1Sender{client: client, baseURL: fcmV1BaseURL}
}

type v1Request struct {
	Message v1Message `json:"message"`
}

type v1Message struct {
	Token        string              `json:"token"`
	Notification domain.Notification `json:"notification"`
	Data         map[string]string   `json:"data,omitempty"`
}

// Send delivers the message to one device token. A non-success provider
// status is returned as a classified V1Result, not an error; errors are
// reserved for transport and marshalling failures.
func (s *V1Sender) Send(ctx context.Context, cred Credential, deviceToken string, msg domain.Message) (V1Result, error) {
	payload, err := json.Marshal(v1Request{Message: v1Message{
		Token:        deviceToken,
		Notification: msg.Notification,
		Data:         msg.Data,
	}})
	if err != nil {
		return V1Result{}, fmt.Errorf("marshal fcm payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", s.baseURL, cred.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return V1Result{}, fmt.Errorf("build fcm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return V1Result{}, fmt.Errorf("send fcm request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	out := V1Result{Status: resp.StatusCode, Body: rawJSON(body)}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Invalid = IsInvalidTokenResponse(resp.StatusCode, v1ErrorMessage(body))
	}
	return out, nil
}

// invalidTokenPattern matches the provider error strings that mean a token
// is permanently gone. This is a brittle external contract; see the tests
// for the strings known to map here.
var invalidTokenPattern = regexp.MustCompile(`(?i)not.*found|invalid|unregistered`)

// IsInvalidTokenResponse reports whether a failed v1 send identified the
// device token as permanently invalid, i.e. worth deleting from the store.
func IsInvalidTokenResponse(status int, errorMessage string) bool {
	if status == http.StatusNotFound {
		return true
	}
	return invalidTokenPattern.MatchString(errorMessage)
}

type v1ErrorResponse struct {
	Error struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func v1ErrorMessage(body []byte) string {
	var resp v1ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Message == "" {
		return string(body)
	}
	return resp.Error.Message
}

// rawJSON keeps provider bodies embeddable in the aggregated JSON response:
// anything that is not valid JSON is re-encoded as a JSON string.
func rawJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return json.RawMessage(quoted)
}
