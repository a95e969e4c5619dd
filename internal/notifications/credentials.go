package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

const (
	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	tokenEndpoint  = "https://oauth2.googleapis.com/token"
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

var ErrNoCredential = errors.New("fcm_no_credential")

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	ProjectID   string `json:"project_id"`
}

// CredentialBroker exchanges a service-account credential for a short-lived
// bearer token usable against the FCM HTTP v1 API.
//
// Every Exchange builds, signs and trades a fresh assertion. Tokens are not
// cached across dispatches even though they are valid for an hour.
type CredentialBroker struct {
	account  serviceAccount
	tokenURL string
	client   *http.Client
	now      func() time.Time
}

// NewCredentialBroker parses the service-account JSON blob. It returns
// ErrNoCredential when the blob is empty so callers can treat "not
// configured" and "configured" uniformly.
func NewCredentialBroker(serviceAccountJSON string, client *http.Client) (*CredentialBroker, error) {
	if strings.TrimSpace(serviceAccountJSON) == "" {
		return nil, ErrNoCredential
	}
	var sa serviceAccount
	if err := json.Unmarshal([]byte(serviceAccountJSON), &sa); err != nil {
		return nil, fmt.Errorf("parse service account json: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" || sa.ProjectID == "" {
		return nil, errors.New("service account json: client_email, private_key and project_id are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CredentialBroker{
		account:  sa,
		tokenURL: tokenEndpoint,
		client:   client,
		now:      time.Now,
	}, nil
}

func (b *CredentialBroker) ProjectID() string { return b.account.ProjectID }

// Exchange signs an RS256 JWT-bearer assertion with the service-account key
// and posts it to the OAuth token endpoint.
func (b *CredentialBroker) Exchange(ctx context.Context) (*oauth2.Token, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(b.account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	now := b.now().UTC()
	claims := jwt.MapClaims{
		"iss":   b.account.ClientEmail,
		"scope": messagingScope,
		"aud":   b.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, errors.New("token exchange returned no access_token")
	}

	tok := &oauth2.Token{AccessToken: payload.AccessToken, TokenType: payload.TokenType}
	if payload.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return tok, nil
}
