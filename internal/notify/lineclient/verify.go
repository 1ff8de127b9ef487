package lineclient

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
)

const verifyPath = "/oauth2/v2.1/verify"

// ErrInvalidIDToken is returned when LINE rejects an ID token.
var ErrInvalidIDToken = errors.New("lineclient: invalid id token")

// VerifierConfig configures LIFF ID token verification.
type VerifierConfig struct {
	BaseURL    string
	ChannelID  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// IDTokenVerifier checks LIFF ID tokens against the LINE Login verify
// endpoint.
type IDTokenVerifier struct {
	baseURL    string
	channelID  string
	httpClient *http.Client
}

// IDToken is the subset of verified claims the service uses.
type IDToken struct {
	Subject  string `json:"sub"`
	Audience string `json:"aud"`
	Expires  int64  `json:"exp"`
	Name     string `json:"name,omitempty"`
}

func NewIDTokenVerifier(cfg VerifierConfig) (*IDTokenVerifier, error) {
	if strings.TrimSpace(cfg.ChannelID) == "" {
		return nil, errors.New("lineclient: login channel id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &IDTokenVerifier{baseURL: baseURL, channelID: strings.TrimSpace(cfg.ChannelID), httpClient: httpClient}, nil
}

// Verify returns the LINE user id the token was issued to.
func (v *IDTokenVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	tok, err := v.VerifyToken(ctx, idToken)
	if err != nil {
		return "", err
	}
	return tok.Subject, nil
}

// VerifyToken returns the verified claims. LINE checks signature, expiry and
// that the token was issued for the configured channel.
func (v *IDTokenVerifier) VerifyToken(ctx context.Context, idToken string) (*IDToken, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, ErrInvalidIDToken
	}
	form := url.Values{"id_token": {idToken}, "client_id": {v.channelID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+verifyPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("lineclient: build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lineclient: verify: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("lineclient: read verify response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrInvalidIDToken, decodeAPIError(resp.StatusCode, data).Error())
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, decodeAPIError(resp.StatusCode, data)
	}

	var tok IDToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("lineclient: decode verify response: %w", err)
	}
	if tok.Subject == "" || tok.Audience != v.channelID {
		return nil, ErrInvalidIDToken
	}
	return &tok, nil
}
