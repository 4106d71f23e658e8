// Package cloud implements the HTTP client for the device-management service.
// It covers the three credential operations (register, refresh, rotate) plus
// the health report, mapping transport and status outcomes to typed results.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/junctionrelay/device-agent/internal/models"
)

// requestTimeout is the HTTP request timeout for each call.
const requestTimeout = 30 * time.Second

// ErrRefreshRejected indicates the service explicitly rejected the refresh
// token (HTTP 401/403). The token is dead; callers must not fall back to
// rotation.
var ErrRefreshRejected = errors.New("refresh token rejected by server")

// RegisterResult holds the credential bundle returned by a successful
// device registration.
type RegisterResult struct {
	DeviceJWT             string `json:"deviceJwt"`
	RefreshToken          string `json:"refreshToken"`
	ExpiresAt             string `json:"expiresAt"`
	RefreshTokenExpiresAt string `json:"refreshTokenExpiresAt"`
}

// RefreshResult holds the new access token from a successful refresh.
type RefreshResult struct {
	Token     string
	ExpiresAt string
}

// RotateResult holds the new token pair from a successful rotation.
type RotateResult struct {
	Token                 string
	RefreshToken          string
	ExpiresAt             string
	RefreshTokenExpiresAt string
}

// Client talks to the cloud device API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a cloud client for the given base URL.
func New(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// Register exchanges a one-time registration token for device credentials.
func (c *Client) Register(ctx context.Context, registrationToken, deviceID, deviceName string) (*RegisterResult, error) {
	payload := map[string]string{
		"registrationToken": registrationToken,
		"actualDeviceId":    deviceID,
		"deviceName":        deviceName,
	}

	body, status, err := c.post(ctx, "/cloud/devices/register", payload, "")
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("register: server returned %d", status)
	}

	var result RegisterResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("register: parsing response: %w", err)
	}
	if result.DeviceJWT == "" {
		return nil, fmt.Errorf("register: response missing device JWT")
	}

	c.logger.Info("Device registered",
		zap.Bool("refresh_token", result.RefreshToken != ""))
	return &result, nil
}

// refreshResponse is the wire shape shared by the refresh and rotate endpoints.
type refreshResponse struct {
	Success               bool   `json:"success"`
	Token                 string `json:"token"`
	RefreshToken          string `json:"refreshToken"`
	ExpiresAt             string `json:"expiresAt"`
	RefreshTokenExpiresAt string `json:"refreshTokenExpiresAt"`
}

// Refresh exchanges the refresh token for a new access token.
// An HTTP 401/403 returns ErrRefreshRejected; all other failures are generic.
func (c *Client) Refresh(ctx context.Context, refreshToken, deviceID string) (*RefreshResult, error) {
	body, status, err := c.post(ctx, "/cloud/devices/refresh", tokenPayload(refreshToken, deviceID), "")
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.logger.Warn("Refresh token rejected", zap.Int("status", status))
		return nil, ErrRefreshRejected
	case status != http.StatusOK:
		return nil, fmt.Errorf("refresh: server returned %d", status)
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("refresh: parsing response: %w", err)
	}
	if !resp.Success || resp.Token == "" {
		return nil, fmt.Errorf("refresh: server reported failure")
	}

	return &RefreshResult{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
	}, nil
}

// Rotate exchanges the refresh token for a new token pair. All failures are
// generic; the caller escalates every one of them the same way.
func (c *Client) Rotate(ctx context.Context, refreshToken, deviceID string) (*RotateResult, error) {
	body, status, err := c.post(ctx, "/cloud/devices/refresh-rotate", tokenPayload(refreshToken, deviceID), "")
	if err != nil {
		return nil, fmt.Errorf("rotate: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("rotate: server returned %d", status)
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("rotate: parsing response: %w", err)
	}
	if !resp.Success || resp.Token == "" || resp.RefreshToken == "" {
		return nil, fmt.Errorf("rotate: server reported failure")
	}

	return &RotateResult{
		Token:                 resp.Token,
		RefreshToken:          resp.RefreshToken,
		ExpiresAt:             resp.ExpiresAt,
		RefreshTokenExpiresAt: resp.RefreshTokenExpiresAt,
	}, nil
}

// SendHealth posts a health report authenticated with the access token.
func (c *Client) SendHealth(ctx context.Context, accessToken string, report models.HealthReport) error {
	_, status, err := c.post(ctx, "/cloud/devices/health", report, accessToken)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("health: server returned %d", status)
	}

	c.logger.Debug("Health report sent")
	return nil
}

// tokenPayload builds the body shared by refresh and rotate requests.
// Field casing matches the cloud API.
func tokenPayload(refreshToken, deviceID string) map[string]string {
	return map[string]string{
		"RefreshToken": refreshToken,
		"DeviceId":     deviceID,
	}
}

// post performs a single JSON POST and returns the response body and status.
// A non-empty bearer token is attached as the Authorization header.
func (c *Client) post(ctx context.Context, path string, payload interface{}, bearer string) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	return body, resp.StatusCode, nil
}
