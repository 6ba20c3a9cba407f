// Package paystack is a thin REST client for the Paystack transactions API
// and its webhook signature scheme.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/utilitysplit/pkg/config"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
const SignatureHeader = "x-paystack-signature"

const (
	initializePath = "/transaction/initialize"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

var errSecretRequired = errors.New("paystack secret key is required")

// InitializeRequest describes a single checkout. Amount is in minor units.
type InitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Authorization is the checkout returned by a successful initialize call.
type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError reports a non-successful Paystack response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the Paystack API with a secret key.
type Client struct {
	secret  string
	baseURL string
	http    *http.Client
}

// NewClient builds a client from config. A nil httpClient gets one with the
// configured timeout.
func NewClient(cfg config.PaystackConfig, httpClient *http.Client) (*Client, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{secret: secret, baseURL: baseURL, http: httpClient}, nil
}

// InitializeTransaction creates a checkout. It makes exactly one attempt.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	if req.Email == "" {
		return nil, errors.New("paystack: email is required")
	}
	if req.Amount <= 0 {
		return nil, errors.New("paystack: amount must be positive")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+initializePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build initialize request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paystack initialize: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read initialize response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw))}
		}
		return nil, fmt.Errorf("decode initialize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !env.Status {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	var auth Authorization
	if err := json.Unmarshal(env.Data, &auth); err != nil {
		return nil, fmt.Errorf("decode authorization: %w", err)
	}
	if auth.AuthorizationURL == "" || auth.Reference == "" {
		return nil, errors.New("paystack: authorization missing url or reference")
	}
	return &auth, nil
}

// VerifySignature reports whether signature is the hex HMAC-SHA512 of body
// keyed with the secret key.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	return VerifySignature(c.secret, body, signature)
}

// VerifySignature compares in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(secret, body))
}

// Sign returns the raw HMAC-SHA512 of body.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
