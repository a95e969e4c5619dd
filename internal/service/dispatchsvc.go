package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"LostFoundNotifier/internal/domain"
	"LostFoundNotifier/internal/notifications"
)

const defaultConcurrency = 30

type TokenStore interface {
	ListTokensExcluding(ctx context.Context, userID string) ([]domain.DeviceToken, error)
	DeleteTokenByValue(ctx context.Context, token string) error
}

type NotificationStore interface {
	InsertNotifications(ctx context.Context, rows []domain.InAppNotification) (int, error)
}

type CredentialSource interface {
	Exchange(ctx context.Context) (*oauth2.Token, error)
	ProjectID() string
}

type ModernSender interface {
	Send(ctx context.Context, cred notifications.Credential, deviceToken string, msg domain.Message) (notifications.V1Result, error)
}

type LegacySender interface {
	Dispatch(ctx context.Context, serverKey string, tokens []string, msg domain.Message) ([]domain.DispatchOutcome, []string)
	SendBatch(ctx context.Context, serverKey string, tokens []string, msg domain.Message) (notifications.LegacyResult, error)
	SendSingle(ctx context.Context, serverKey, token string, msg domain.Message) (notifications.LegacyResult, error)
}

// DispatchRequest is the per-call state for one dispatch. UserID is the
// posting user, excluded from the recipient set.
type DispatchRequest struct {
	PostID      string
	UserID      string
	Title       string
	Description string
	Location    string
	Status      string
	Latitude    *float64
	Longitude   *float64

	Debug       bool
	Tokens      []string
	ServerKey   string
	ForceLegacy bool
	TestFirst   bool
}

// DebugProbe is the answer to a debug request: which credentials are
// configured and how many recipients would be addressed. Nothing is sent.
type DebugProbe struct {
	HasServiceAccount bool   `json:"has_service_account"`
	HasLegacyKey      bool   `json:"has_legacy_key"`
	TokenCount        int    `json:"token_count"`
	FetchError        string `json:"fetch_error,omitempty"`
}

// DispatchResult is the aggregated response for one dispatch. Outcome order
// within Results is unspecified.
type DispatchResult struct {
	OK      bool   `json:"ok"`
	Mode    string `json:"mode,omitempty"`
	Message string `json:"message,omitempty"`

	Debug *DebugProbe `json:"debug,omitempty"`

	Inserted    int    `json:"inserted,omitempty"`
	InsertError string `json:"insert_error,omitempty"`

	ProviderStatus int             `json:"status,omitempty"`
	ProviderBody   json.RawMessage `json:"body,omitempty"`

	Results []domain.DispatchOutcome `json:"results,omitempty"`
	Pruned  int                      `json:"pruned"`
}

// DispatchService fans a posting's notification out to every registered
// device except the poster's, records in-app copies, and prunes tokens the
// provider reports as dead. Push delivery is best effort throughout: the
// only fatal paths are request validation and the initial token fetch.
type DispatchService struct {
	Tokens        TokenStore
	Notifications NotificationStore
	Credentials   CredentialSource // nil when no service account is configured
	Modern        ModernSender
	Legacy        LegacySender
	LegacyKey     string
	Concurrency   int
	AllowInsecure bool // enables debug / direct-send / test-first and caller server keys
	Logger        *slog.Logger
}

func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.NewValidationError(map[string]string{"user_id": "required"})
	}

	msg := domain.NewPostMessage(req.PostID, req.Title, req.Status, req.Location, req.Latitude, req.Longitude)

	if req.Debug {
		return s.debugProbe(ctx, req)
	}
	if len(req.Tokens) > 0 && req.ServerKey != "" {
		return s.directSend(ctx, req, msg, logger)
	}
	if (req.TestFirst || req.ServerKey != "") && !s.AllowInsecure {
		return nil, fmt.Errorf("%w: test modes are disabled", domain.ErrForbidden)
	}

	all, err := s.Tokens.ListTokensExcluding(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch device tokens: %w", err)
	}
	tokens := all[:0:0]
	for _, t := range all {
		if t.Token != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return &DispatchResult{OK: true, Message: "no tokens to notify"}, nil
	}

	res := &DispatchResult{OK: true}
	if inserted, err := s.recordInApp(ctx, req, tokens, msg); err != nil {
		logger.Error("dispatch: in-app insert failed", "err", err, "recipients", len(tokens))
		res.InsertError = err.Error()
	} else {
		res.Inserted = inserted
		logger.Info("dispatch: in-app notifications recorded", "count", inserted)
	}

	effectiveKey := s.LegacyKey
	if req.ServerKey != "" {
		effectiveKey = req.ServerKey
	}

	if req.TestFirst {
		return s.testFirst(ctx, res, effectiveKey, tokens[0].Token, msg)
	}

	cred, ok := s.acquireCredential(ctx, req.ForceLegacy, logger)

	var outcomes []domain.DispatchOutcome
	var invalid []string
	switch {
	case ok:
		res.Mode = "v1"
		outcomes, invalid = s.fanOut(ctx, cred, tokens, msg)
	case effectiveKey != "":
		res.Mode = "legacy"
		outcomes, invalid = s.Legacy.Dispatch(ctx, effectiveKey, tokenValues(tokens), msg)
	default:
		// In-app rows were already recorded; with no push credentials
		// configured there is nothing further to attempt.
		res.Mode = "none"
		res.Message = "no push credentials configured; skipped push send"
		logger.Info("dispatch: no push credentials; in-app rows only", "recipients", len(tokens))
	}

	res.Results = outcomes
	res.Pruned = s.prune(ctx, invalid, logger)
	return res, nil
}

func (s *DispatchService) debugProbe(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if !s.AllowInsecure {
		return nil, fmt.Errorf("%w: debug probe is disabled", domain.ErrForbidden)
	}
	probe := &DebugProbe{
		HasServiceAccount: s.Credentials != nil,
		HasLegacyKey:      s.LegacyKey != "",
	}
	tokens, err := s.Tokens.ListTokensExcluding(ctx, req.UserID)
	if err != nil {
		probe.FetchError = err.Error()
	} else {
		probe.TokenCount = len(tokens)
	}
	return &DispatchResult{OK: true, Mode: "debug", Debug: probe}, nil
}

// directSend pushes one legacy batch straight at the caller-supplied tokens
// with the caller-supplied key. The store is never consulted and nothing is
// recorded or pruned.
func (s *DispatchService) directSend(ctx context.Context, req DispatchRequest, msg domain.Message, logger *slog.Logger) (*DispatchResult, error) {
	if !s.AllowInsecure {
		return nil, fmt.Errorf("%w: direct-send is disabled", domain.ErrForbidden)
	}
	provided := make([]string, 0, len(req.Tokens))
	for _, t := range req.Tokens {
		if t != "" {
			provided = append(provided, t)
		}
	}
	if len(provided) == 0 {
		return nil, domain.NewValidationError(map[string]string{"tokens": "no valid tokens provided"})
	}
	if len(provided) > notifications.LegacyBatchLimit {
		provided = provided[:notifications.LegacyBatchLimit]
	}

	logger.Info("dispatch: direct-send mode", "tokens", len(provided))
	out, err := s.Legacy.SendBatch(ctx, req.ServerKey, provided, msg)
	if err != nil {
		return nil, fmt.Errorf("direct send: %w", err)
	}
	return &DispatchResult{
		OK:             true,
		Mode:           "direct-send",
		ProviderStatus: out.Status,
		ProviderBody:   out.Body,
	}, nil
}

func (s *DispatchService) testFirst(ctx context.Context, res *DispatchResult, key, token string, msg domain.Message) (*DispatchResult, error) {
	if key == "" {
		return nil, domain.NewValidationError(map[string]string{"server_key": "test_first requires a legacy server key"})
	}
	out, err := s.Legacy.SendSingle(ctx, key, token, msg)
	if err != nil {
		return nil, fmt.Errorf("test send: %w", err)
	}
	res.Mode = "test-first"
	res.ProviderStatus = out.Status
	res.ProviderBody = out.Body
	return res, nil
}

// acquireCredential trades the service account for a bearer token. Failure
// is non-fatal: the caller falls back to the legacy path.
func (s *DispatchService) acquireCredential(ctx context.Context, forceLegacy bool, logger *slog.Logger) (notifications.Credential, bool) {
	if forceLegacy || s.Credentials == nil || s.Modern == nil {
		return notifications.Credential{}, false
	}
	tok, err := s.Credentials.Exchange(ctx)
	if err != nil {
		logger.Warn("dispatch: credential exchange failed; falling back to legacy", "err", err)
		return notifications.Credential{}, false
	}
	projectID := s.Credentials.ProjectID()
	if tok.AccessToken == "" || projectID == "" {
		return notifications.Credential{}, false
	}
	return notifications.Credential{AccessToken: tok.AccessToken, ProjectID: projectID}, true
}

// fanOut sends the v1 message to each token with a bounded worker pool.
// Tokens are distributed over a channel so each is claimed exactly once
// even under real parallelism.
func (s *DispatchService) fanOut(ctx context.Context, cred notifications.Credential, tokens []domain.DeviceToken, msg domain.Message) ([]domain.DispatchOutcome, []string) {
	workers := s.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if workers > len(tokens) {
		workers = len(tokens)
	}

	jobs := make(chan string)
	results := make(chan domain.DispatchOutcome, len(tokens))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for token := range jobs {
				results <- s.sendOne(ctx, cred, token, msg)
			}
		}()
	}
	for _, t := range tokens {
		jobs <- t.Token
	}
	close(jobs)
	wg.Wait()
	close(results)

	outcomes := make([]domain.DispatchOutcome, 0, len(tokens))
	var invalid []string
	seen := make(map[string]bool)
	for o := range results {
		outcomes = append(outcomes, o)
		if o.Invalid && !seen[o.Token] {
			seen[o.Token] = true
			invalid = append(invalid, o.Token)
		}
	}
	return outcomes, invalid
}

func (s *DispatchService) sendOne(ctx context.Context, cred notifications.Credential, token string, msg domain.Message) domain.DispatchOutcome {
	res, err := s.Modern.Send(ctx, cred, token, msg)
	if err != nil {
		return domain.DispatchOutcome{Token: token, OK: false, Error: err.Error()}
	}
	ok := res.Status >= 200 && res.Status < 300
	return domain.DispatchOutcome{
		Token:   token,
		OK:      ok,
		Status:  res.Status,
		Body:    res.Body,
		Invalid: res.Invalid,
	}
}

// recordInApp writes one notification row per recipient before any push is
// attempted. The single error return is surfaced as a note in the response
// and never blocks dispatch.
func (s *DispatchService) recordInApp(ctx context.Context, req DispatchRequest, tokens []domain.DeviceToken, msg domain.Message) (int, error) {
	if s.Notifications == nil {
		return 0, nil
	}
	title := req.Title
	if title == "" {
		title = msg.Notification.Title
	}
	body := domain.InAppBody(req.Title, req.Status, req.Location)

	rows := make([]domain.InAppNotification, 0, len(tokens))
	for _, t := range tokens {
		rows = append(rows, domain.InAppNotification{
			UserID: t.UserID,
			Title:  title,
			Body:   body,
			Data:   msg.Data,
			IsRead: false,
		})
	}
	return s.Notifications.InsertNotifications(ctx, rows)
}

// prune deletes tokens the provider reported invalid. Best effort: a failed
// delete is logged and the count still reflects the tokens flagged.
func (s *DispatchService) prune(ctx context.Context, invalid []string, logger *slog.Logger) int {
	for _, token := range invalid {
		if err := s.Tokens.DeleteTokenByValue(ctx, token); err != nil {
			logger.Error("dispatch: delete invalid token failed", "err", err)
		}
	}
	return len(invalid)
}

func tokenValues(tokens []domain.DeviceToken) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Token)
	}
	return out
}
