package domain

import "testing"

func TestNewPostMessageTitleByStatus(t *testing.T) {
	lost := NewPostMessage("42", "Wallet", "Lost", "Library", nil, nil)
	if lost.Notification.Title != "Lost: Wallet" {
		t.Fatalf("unexpected title: %q", lost.Notification.Title)
	}
	if lost.Notification.Body != "Lost at Library" {
		t.Fatalf("unexpected body: %q", lost.Notification.Body)
	}

	found := NewPostMessage("42", "Wallet", "Found", "Library", nil, nil)
	if found.Notification.Title != "Found: Wallet" {
		t.Fatalf("unexpected title: %q", found.Notification.Title)
	}
}

func TestNewPostMessageDataIsStringified(t *testing.T) {
	lat := 52.52
	lng := -13.405
	msg := NewPostMessage("7", "Keys", "Lost", "Gym", &lat, &lng)

	want := map[string]string{
		"post_id":   "7",
		"status":    "Lost",
		"latitude":  "52.52",
		"longitude": "-13.405",
	}
	for k, v := range want {
		if msg.Data[k] != v {
			t.Fatalf("data[%q]: got %q, want %q", k, msg.Data[k], v)
		}
	}
}

func TestNewPostMessageNilCoordinatesAreEmpty(t *testing.T) {
	msg := NewPostMessage("", "Keys", "Found", "Gym", nil, nil)
	if msg.Data["latitude"] != "" || msg.Data["longitude"] != "" {
		t.Fatalf("expected empty coordinates, got %q/%q", msg.Data["latitude"], msg.Data["longitude"])
	}
	if msg.Data["post_id"] != "" {
		t.Fatalf("expected empty post_id, got %q", msg.Data["post_id"])
	}
}

func TestInAppBody(t *testing.T) {
	got := InAppBody("Wallet", "Lost", "Library")
	if got != "Wallet is lost on Library" {
		t.Fatalf("unexpected in-app body: %q", got)
	}
}
