package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"LostFoundNotifier/internal/domain"
)

type captureTransport struct {
	req    *http.Request
	body   []byte
	status int
	reply  string
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.req = req
	t.body, _ = io.ReadAll(req.Body)
	_ = req.Body.Close()
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	reply := t.reply
	if reply == "" {
		reply = `{}`
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(reply)),
		Header:     make(http.Header),
	}, nil
}

func TestV1SenderSendRequestShape(t *testing.T) {
	rt := &captureTransport{reply: `{"name":"projects/p1/messages/m1"}`}
	sender := NewV1Sender(&http.Client{Transport: rt})

	msg := domain.NewPostMessage("9", "Wallet", "Lost", "Library", nil, nil)
	res, err := sender.Send(context.Background(), Credential{AccessToken: "at-1", ProjectID: "p1"}, "tok-1", msg)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if res.Status != http.StatusOK || res.Invalid {
		t.Fatalf("unexpected result: %+v", res)
	}

	if got := rt.req.URL.String(); got != "https://fcm.googleapis.com/v1/projects/p1/messages:send" {
		t.Fatalf("unexpected url: %s", got)
	}
	if got := rt.req.Header.Get("Authorization"); got != "Bearer at-1" {
		t.Fatalf("unexpected authorization header: %q", got)
	}

	var payload struct {
		Message struct {
			Token        string            `json:"token"`
			Notification map[string]string `json:"notification"`
			Data         map[string]string `json:"data"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rt.body, &payload); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if payload.Message.Token != "tok-1" {
		t.Fatalf("unexpected token: %q", payload.Message.Token)
	}
	if payload.Message.Notification["title"] != "Lost: Wallet" {
		t.Fatalf("unexpected title: %q", payload.Message.Notification["title"])
	}
	if payload.Message.Data["post_id"] != "9" {
		t.Fatalf("unexpected data: %v", payload.Message.Data)
	}
}

func TestV1SenderClassifiesInvalidToken(t *testing.T) {
	rt := &captureTransport{
		status: http.StatusNotFound,
		reply:  `{"error":{"status":"NOT_FOUND","message":"Requested entity was not found."}}`,
	}
	sender := NewV1Sender(&http.Client{Transport: rt})

	res, err := sender.Send(context.Background(), Credential{AccessToken: "at", ProjectID: "p"}, "dead", domain.Message{})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !res.Invalid {
		t.Fatalf("expected 404 response to be classified invalid")
	}
}

func TestV1SenderNonJSONBodyIsQuoted(t *testing.T) {
	rt := &captureTransport{status: http.StatusBadGateway, reply: `upstream exploded`}
	sender := NewV1Sender(&http.Client{Transport: rt})

	res, err := sender.Send(context.Background(), Credential{AccessToken: "at", ProjectID: "p"}, "tok", domain.Message{})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if res.Invalid {
		t.Fatalf("502 must not be classified invalid")
	}
	if !json.Valid(res.Body) {
		t.Fatalf("body must be embeddable JSON, got %q", res.Body)
	}
}

// The matcher is an external-contract boundary: these are the provider error
// strings known to mean the token is permanently gone.
func TestIsInvalidTokenResponse(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		message string
		want    bool
	}{
		{"http 404", http.StatusNotFound, "", true},
		{"not found", http.StatusBadRequest, "Requested entity was not found.", true},
		{"unregistered", http.StatusBadRequest, "Requested entity was UNREGISTERED", true},
		{"invalid argument", http.StatusBadRequest, "The registration token is invalid", true},
		{"invalid uppercase", http.StatusBadRequest, "INVALID_ARGUMENT", true},
		{"sender mismatch", http.StatusForbidden, "SenderId mismatch", false},
		{"quota", http.StatusTooManyRequests, "Quota exceeded", false},
		{"internal", http.StatusInternalServerError, "Internal error encountered.", false},
		{"empty", http.StatusBadGateway, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsInvalidTokenResponse(tc.status, tc.message); got != tc.want {
				t.Fatalf("IsInvalidTokenResponse(%d, %q) = %v, want %v", tc.status, tc.message, got, tc.want)
			}
		})
	}
}
