package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"LostFoundNotifier/internal/domain"
)

func TestListTokensExcludingQueryAndHeaders(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":7,"user_id":"u2","token":"tok-a"},{"id":"8","user_id":"u3","token":"tok-b"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "service-role-key", srv.Client())
	tokens, err := c.ListTokensExcluding(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListTokensExcluding: %v", err)
	}

	if gotReq.URL.Path != "/rest/v1/device_tokens" {
		t.Fatalf("unexpected path: %s", gotReq.URL.Path)
	}
	if got := gotReq.URL.Query().Get("user_id"); got != "not.eq.u1" {
		t.Fatalf("unexpected user_id filter: %q", got)
	}
	if got := gotReq.URL.Query().Get("select"); got != "id,user_id,token" {
		t.Fatalf("unexpected select: %q", got)
	}
	if got := gotReq.Header.Get("apikey"); got != "service-role-key" {
		t.Fatalf("unexpected apikey header: %q", got)
	}
	if got := gotReq.Header.Get("Authorization"); got != "Bearer service-role-key" {
		t.Fatalf("unexpected authorization header: %q", got)
	}

	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].ID != "7" || tokens[1].ID != "8" {
		t.Fatalf("numeric and string ids must both decode, got %+v", tokens)
	}
}

func TestDeleteTokenByValue(t *testing.T) {
	var gotMethod, gotFilter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotFilter = r.URL.Query().Get("token")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", srv.Client())
	if err := c.DeleteTokenByValue(context.Background(), "tok-dead"); err != nil {
		t.Fatalf("DeleteTokenByValue: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("unexpected method: %s", gotMethod)
	}
	if gotFilter != "eq.tok-dead" {
		t.Fatalf("unexpected filter: %q", gotFilter)
	}
}

func TestInsertNotificationsCountsRepresentation(t *testing.T) {
	var gotPrefer string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", srv.Client())
	rows := []domain.InAppNotification{
		{UserID: "u2", Title: "Wallet", Body: "Wallet is lost on Library"},
		{UserID: "u3", Title: "Wallet", Body: "Wallet is lost on Library"},
	}
	n, err := c.InsertNotifications(context.Background(), rows)
	if err != nil {
		t.Fatalf("InsertNotifications: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted, got %d", n)
	}
	if gotPrefer != "return=representation" {
		t.Fatalf("unexpected Prefer header: %q", gotPrefer)
	}

	var sent []map[string]any
	if err := json.Unmarshal(gotBody, &sent); err != nil {
		t.Fatalf("unmarshal sent payload: %v", err)
	}
	if len(sent) != 2 || sent[0]["user_id"] != "u2" {
		t.Fatalf("unexpected payload: %v", sent)
	}
	if sent[0]["is_read"] != false {
		t.Fatalf("rows must be inserted unread: %v", sent[0])
	}
}

func TestInsertNotificationsEmpty(t *testing.T) {
	c := New("http://unused.invalid", "key", nil)
	n, err := c.InsertNotifications(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op for empty rows, got n=%d err=%v", n, err)
	}
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied for table device_tokens"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "bad-key", srv.Client())
	_, err := c.ListTokensExcluding(context.Background(), "u1")
	if err == nil {
		t.Fatalf("expected error for 401 response")
	}
	if got := err.Error(); !strings.Contains(got, "401") || !strings.Contains(got, "permission denied") {
		t.Fatalf("error should carry status and body excerpt, got %q", got)
	}
}
