package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DeviceToken is one push registration handle. The external store owns the
// row; the dispatch core only reads it and deletes it once the provider
// reports it permanently invalid.
type DeviceToken struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// Notification is the user-visible part of a push message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Message is the push payload, built once per dispatch request and shared by
// every send strategy. Data values are always strings; FCM rejects anything
// else in the data map.
type Message struct {
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data"`
}

// InAppNotification is one stored notification row per recipient.
type InAppNotification struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
	IsRead bool              `json:"is_read"`
}

// DispatchOutcome records one attempted send. Invalid is set when the
// provider identified the token as permanently dead; it drives pruning and
// is not part of the response body.
type DispatchOutcome struct {
	Token  string          `json:"token,omitempty"`
	OK     bool            `json:"ok"`
	Status int             `json:"status,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Error  string          `json:"error,omitempty"`

	Invalid bool `json:"-"`
}

// NewPostMessage builds the push payload for a lost/found item posting.
func NewPostMessage(postID, title, status, location string, latitude, longitude *float64) Message {
	pushTitle := "Found: " + title
	if status == "Lost" {
		pushTitle = "Lost: " + title
	}
	return Message{
		Notification: Notification{
			Title: pushTitle,
			Body:  fmt.Sprintf("%s at %s", status, location),
		},
		Data: map[string]string{
			"post_id":   postID,
			"status":    status,
			"latitude":  floatString(latitude),
			"longitude": floatString(longitude),
		},
	}
}

// InAppBody is the body stored with each in-app notification row.
func InAppBody(title, status, location string) string {
	return fmt.Sprintf("%s is %s on %s", title, strings.ToLower(status), location)
}

func floatString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
