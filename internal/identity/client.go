// Package identity is the order and catalog services' view of the identity
// service: a single synchronous token check.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Verification is the identity service's answer about a token.
type Verification struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Verifier checks a bearer token. Implementations fail closed: whenever
// err is non-nil the Verification is invalid.
type Verifier interface {
	Verify(ctx context.Context, token string) (Verification, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

// Verify asks POST /auth/verify about token.
func (c *Client) Verify(ctx context.Context, token string) (Verification, error) {
	if token == "" {
		return Verification{}, nil
	}

	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return Verification{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/verify", bytes.NewReader(body))
	if err != nil {
		return Verification{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verification{}, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var v Verification
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Verification{}, fmt.Errorf("decode verification: %w", err)
	}
	if v.Valid && v.UserID == "" {
		return Verification{}, fmt.Errorf("verification without user id")
	}
	return v, nil
}
