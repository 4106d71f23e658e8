// Package credentials defines the persisted device credential record and its
// durable file store. The record is the single unit of truth for the agent's
// registration state: tokens, device identity, and expiry bookkeeping.
package credentials

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record holds the device's credential state. Timestamps are Unix epoch
// seconds; zero means unknown/not set. An empty AccessToken means the device
// is not registered.
type Record struct {
	AccessToken        string
	RefreshToken       string
	DeviceID           string
	AccessExpiresAt    int64
	RefreshExpiresAt   int64
	LastRefreshAttempt int64
}

// Registered reports whether the device holds an access token.
func (r *Record) Registered() bool {
	return r.AccessToken != ""
}

// Clear resets the record to the unregistered state.
func (r *Record) Clear() {
	*r = Record{}
}

// diskRecord is the on-disk JSON shape. Expiry timestamps are stored as
// ISO-8601 UTC strings (empty = unset) for compatibility with the cloud
// service's device tooling; the refresh-attempt timestamp stays numeric.
type diskRecord struct {
	JWT                   string `json:"jwt"`
	RefreshToken          string `json:"refresh_token"`
	DeviceID              string `json:"device_id"`
	JWTExpiresAt          string `json:"jwt_expires_at"`
	RefreshTokenExpiresAt string `json:"refresh_token_expires_at"`
	LastTokenRefresh      int64  `json:"last_token_refresh"`
}

// MarshalJSON implements json.Marshaler for Record using the on-disk shape.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(diskRecord{
		JWT:                   r.AccessToken,
		RefreshToken:          r.RefreshToken,
		DeviceID:              r.DeviceID,
		JWTExpiresAt:          FormatTimestamp(r.AccessExpiresAt),
		RefreshTokenExpiresAt: FormatTimestamp(r.RefreshExpiresAt),
		LastTokenRefresh:      r.LastRefreshAttempt,
	})
}

// UnmarshalJSON implements json.Unmarshaler for Record from the on-disk shape.
func (r *Record) UnmarshalJSON(data []byte) error {
	var d diskRecord
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}

	accessExpiry, err := ParseTimestamp(d.JWTExpiresAt)
	if err != nil {
		return fmt.Errorf("parsing jwt_expires_at: %w", err)
	}
	refreshExpiry, err := ParseTimestamp(d.RefreshTokenExpiresAt)
	if err != nil {
		return fmt.Errorf("parsing refresh_token_expires_at: %w", err)
	}

	r.AccessToken = d.JWT
	r.RefreshToken = d.RefreshToken
	r.DeviceID = d.DeviceID
	r.AccessExpiresAt = accessExpiry
	r.RefreshExpiresAt = refreshExpiry
	r.LastRefreshAttempt = d.LastTokenRefresh
	return nil
}

// FormatTimestamp renders epoch seconds as an ISO-8601 UTC string.
// Non-positive timestamps render as the empty string (unset).
func FormatTimestamp(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// ParseTimestamp parses an ISO-8601 UTC string to epoch seconds.
// The empty string parses to zero (unset). Fractional seconds are accepted
// and truncated; the round-trip is lossless to the second.
func ParseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.Unix(), nil
}
