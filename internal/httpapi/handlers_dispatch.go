package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"LostFoundNotifier/internal/domain"
	"LostFoundNotifier/internal/service"
)

// dispatchRequest is the webhook payload for a new lost/found posting.
// post_id arrives as a number, a string, or null depending on the caller.
type dispatchRequest struct {
	PostID      json.RawMessage `json:"post_id"`
	UserID      string          `json:"user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Status      string          `json:"status"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`

	Debug       bool     `json:"debug"`
	Tokens      []string `json:"tokens"`
	ServerKey   string   `json:"server_key"`
	ForceLegacy bool     `json:"force_legacy"`
	TestFirst   bool     `json:"test_first"`
}

func (a *api) handleNotificationsDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	out, err := a.dispatchSvc.Dispatch(r.Context(), service.DispatchRequest{
		PostID:      stringifyID(req.PostID),
		UserID:      strings.TrimSpace(req.UserID),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Status:      req.Status,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Debug:       req.Debug,
		Tokens:      req.Tokens,
		ServerKey:   req.ServerKey,
		ForceLegacy: req.ForceLegacy,
		TestFirst:   req.TestFirst,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrForbidden) {
			WriteDomainError(w, err)
			return
		}
		a.logger.Error("dispatch failed", "err", err)
		WriteError(w, http.StatusInternalServerError, "dispatch_failed", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, out)
}

// stringifyID normalizes a JSON scalar id to its string form. null and
// absent both become "".
func stringifyID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}
