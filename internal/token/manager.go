// Package token implements the credential lifecycle manager: the state
// machine that tracks the device's access and refresh tokens, decides when
// each must be renewed, performs renewal and rotation against the cloud
// service, and falls back to forced re-registration when renewal is no
// longer possible.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/junctionrelay/device-agent/internal/cloud"
	"github.com/junctionrelay/device-agent/internal/config"
	"github.com/junctionrelay/device-agent/internal/credentials"
	"github.com/junctionrelay/device-agent/internal/identity"
)

// ErrNoCredential indicates the device holds no usable access token.
var ErrNoCredential = errors.New("no usable credential")

// ErrAlreadyRegistered indicates Register was called while the device
// already holds credentials.
var ErrAlreadyRegistered = errors.New("device already registered")

// AuthClient is the remote credential API the manager drives.
// *cloud.Client satisfies it.
type AuthClient interface {
	Register(ctx context.Context, registrationToken, deviceID, deviceName string) (*cloud.RegisterResult, error)
	Refresh(ctx context.Context, refreshToken, deviceID string) (*cloud.RefreshResult, error)
	Rotate(ctx context.Context, refreshToken, deviceID string) (*cloud.RotateResult, error)
}

// Manager owns the credential record and all decisions about it. All
// mutating operations are serialized behind a single mutex: a rotation and
// a refresh racing each other would break the record's atomic-update
// guarantee.
type Manager struct {
	mu     sync.Mutex
	rec    credentials.Record
	store  credentials.Store
	client AuthClient
	logger *zap.Logger

	rotationThreshold time.Duration
	refreshInterval   time.Duration
	refreshBuffer     time.Duration

	testMode        bool
	accessLifetime  time.Duration
	refreshLifetime time.Duration

	deviceID func() string
	now      func() time.Time
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithClock overrides the manager's time source. Used by tests and any
// host environment with its own clock discipline.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDeviceID overrides the local device-identifier resolver.
func WithDeviceID(fn func() string) Option {
	return func(m *Manager) { m.deviceID = fn }
}

// NewManager creates a lifecycle manager and loads any previously persisted
// credentials from the store.
func NewManager(store credentials.Store, client AuthClient, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		store:             store,
		client:            client,
		logger:            logger,
		rotationThreshold: cfg.Tokens.RotationThreshold.Duration,
		refreshInterval:   cfg.Tokens.RefreshInterval.Duration,
		refreshBuffer:     cfg.Tokens.RefreshBuffer.Duration,
		testMode:          cfg.Testing.Enabled,
		accessLifetime:    cfg.Testing.AccessLifetime.Duration,
		refreshLifetime:   cfg.Testing.RefreshLifetime.Duration,
		deviceID:          identity.DeviceID,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	rec, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	m.rec = rec

	if rec.Registered() {
		logger.Info("Loaded stored credentials",
			zap.String("device_id", rec.DeviceID),
			zap.Bool("refresh_token", rec.RefreshToken != ""))
		m.logExpiry("access token", rec.AccessExpiresAt)
		m.logExpiry("refresh token", rec.RefreshExpiresAt)
	} else {
		logger.Info("No stored credentials, registration required")
	}

	return m, nil
}

// Register exchanges a one-time registration bundle for device credentials.
// It may only be called while the device is unregistered. On failure the
// in-memory and persisted state are left untouched and the caller is
// expected to re-prompt for a fresh bundle.
func (m *Manager) Register(ctx context.Context, bundle Bundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec.Registered() {
		return ErrAlreadyRegistered
	}

	deviceID := m.deviceID()
	m.logger.Info("Registering device",
		zap.String("device_id", deviceID),
		zap.String("device_name", bundle.DeviceName))

	result, err := m.client.Register(ctx, bundle.Token, deviceID, bundle.DeviceName)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	now := m.now()
	m.rec.AccessToken = result.DeviceJWT
	m.rec.RefreshToken = result.RefreshToken
	m.rec.DeviceID = deviceID
	m.rec.AccessExpiresAt = m.accessExpiry(result.ExpiresAt, now)
	m.rec.RefreshExpiresAt = m.refreshExpiry(result.RefreshTokenExpiresAt, now)
	m.rec.LastRefreshAttempt = now.Unix()
	m.persist()

	m.logger.Info("Device registered", zap.String("device_id", deviceID))
	return nil
}

// Tick evaluates the credential timers once: rotation need first, then
// refresh need. Rotation outcome is never masked by a subsequent refresh
// attempt. The return value reports whether the device currently holds a
// usable access token, which gates health reporting this tick.
func (m *Manager) Tick(ctx context.Context, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.rec.Registered() {
		return false
	}

	if m.rotationDue(now) {
		m.runRotation(ctx, now)
		return m.rec.Registered()
	}

	if m.refreshDue(now) {
		m.runRefresh(ctx, now)
	}

	return m.rec.Registered()
}

// Credential returns the current access token, or ErrNoCredential when the
// device is unregistered.
func (m *Manager) Credential() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.rec.Registered() {
		return "", ErrNoCredential
	}
	return m.rec.AccessToken, nil
}

// Snapshot returns a copy of the current credential record for observation.
func (m *Manager) Snapshot() credentials.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

// rotationDue reports whether the refresh token is inside its rotation
// window. Requires a refresh token with a known expiry.
func (m *Manager) rotationDue(now time.Time) bool {
	if m.rec.RefreshToken == "" || m.rec.RefreshExpiresAt == 0 {
		return false
	}
	return m.rec.RefreshExpiresAt-now.Unix() <= int64(m.rotationThreshold.Seconds())
}

// refreshDue reports whether an access-token refresh should be attempted:
// either the refresh interval elapsed since the last attempt, or the access
// token is known to be near expiry.
func (m *Manager) refreshDue(now time.Time) bool {
	if m.rec.RefreshToken == "" {
		return false
	}
	intervalReached := now.Unix()-m.rec.LastRefreshAttempt >= int64(m.refreshInterval.Seconds())
	nearExpiry := m.rec.AccessExpiresAt > 0 &&
		m.rec.AccessExpiresAt-now.Unix() <= int64(m.refreshBuffer.Seconds())
	return intervalReached || nearExpiry
}

// runRotation performs a refresh-token rotation. Any failure escalates to
// failure handling; there is nothing to fall back to.
func (m *Manager) runRotation(ctx context.Context, now time.Time) {
	m.logger.Info("Refresh token near expiry, rotating",
		zap.Int64("expires_in_s", m.rec.RefreshExpiresAt-now.Unix()))

	if err := m.rotate(ctx, now); err != nil {
		m.logger.Error("Rotation failed", zap.Error(err))
		m.handleFailure()
		return
	}
	m.logger.Info("Refresh token rotated")
}

// runRefresh performs an access-token refresh, recording the attempt time
// regardless of outcome. A generic failure falls back to rotation; an
// explicit rejection means the refresh token is dead and failure handling
// fires directly.
func (m *Manager) runRefresh(ctx context.Context, now time.Time) {
	m.logger.Info("Access token refresh triggered")
	m.rec.LastRefreshAttempt = now.Unix()

	err := m.refresh(ctx, now)
	if err == nil {
		m.logger.Info("Access token refreshed")
		return
	}

	if errors.Is(err, cloud.ErrRefreshRejected) {
		m.logger.Error("Refresh token rejected, re-registration required", zap.Error(err))
		m.handleFailure()
		return
	}

	m.logger.Warn("Refresh failed, attempting rotation fallback", zap.Error(err))
	if err := m.rotate(ctx, now); err != nil {
		m.logger.Error("Rotation fallback failed", zap.Error(err))
		m.handleFailure()
		return
	}
	m.logger.Info("Rotation fallback succeeded")
}

// refresh calls the refresh endpoint and, on success, atomically replaces
// the access token and its expiry and persists the record.
func (m *Manager) refresh(ctx context.Context, now time.Time) error {
	result, err := m.client.Refresh(ctx, m.rec.RefreshToken, m.rec.DeviceID)
	if err != nil {
		m.persist() // the attempt timestamp changed even on failure
		return err
	}

	m.rec.AccessToken = result.Token
	m.rec.AccessExpiresAt = m.accessExpiry(result.ExpiresAt, now)
	m.persist()
	return nil
}

// rotate calls the rotation endpoint and, on success, atomically replaces
// both tokens and both expiries and persists the record.
func (m *Manager) rotate(ctx context.Context, now time.Time) error {
	result, err := m.client.Rotate(ctx, m.rec.RefreshToken, m.rec.DeviceID)
	if err != nil {
		return err
	}

	m.rec.AccessToken = result.Token
	m.rec.RefreshToken = result.RefreshToken
	m.rec.AccessExpiresAt = m.accessExpiry(result.ExpiresAt, now)
	m.rec.RefreshExpiresAt = m.refreshExpiry(result.RefreshTokenExpiresAt, now)
	m.persist()
	return nil
}

// handleFailure clears all credential state and persists the empty record.
// The device transitions to unregistered; recovery is a fresh Register call
// with a new out-of-band bundle.
func (m *Manager) handleFailure() {
	m.logger.Warn("Clearing stored credentials, device must re-register")
	m.rec.Clear()
	m.persist()
}

// accessExpiry computes the access-token expiry: the configured fixed test
// lifetime when test mode is on, else the server-supplied timestamp.
func (m *Manager) accessExpiry(serverExpiry string, now time.Time) int64 {
	if m.testMode {
		return now.Add(m.accessLifetime).Unix()
	}
	return m.parseExpiry(serverExpiry)
}

// refreshExpiry computes the refresh-token expiry, same rules as accessExpiry.
func (m *Manager) refreshExpiry(serverExpiry string, now time.Time) int64 {
	if m.testMode {
		return now.Add(m.refreshLifetime).Unix()
	}
	return m.parseExpiry(serverExpiry)
}

// parseExpiry parses a server-supplied expiry. An unparseable value is
// treated as unknown rather than failing the operation that produced it.
func (m *Manager) parseExpiry(s string) int64 {
	ts, err := credentials.ParseTimestamp(s)
	if err != nil {
		m.logger.Warn("Unparseable expiry from server", zap.String("value", s), zap.Error(err))
		return 0
	}
	return ts
}

// persist writes the record to durable storage. A write failure is logged
// but not fatal: the in-memory record stays authoritative and the next
// successful save re-synchronizes disk.
func (m *Manager) persist() {
	if err := m.store.Save(m.rec); err != nil {
		m.logger.Error("Failed to persist credentials", zap.Error(err))
	}
}

// logExpiry logs time remaining until a stored expiry, if known.
func (m *Manager) logExpiry(name string, expiresAt int64) {
	if expiresAt == 0 {
		return
	}
	remaining := expiresAt - m.now().Unix()
	if remaining > 0 {
		m.logger.Info("Stored credential lifetime",
			zap.String("credential", name),
			zap.Int64("expires_in_s", remaining))
	} else {
		m.logger.Warn("Stored credential has expired", zap.String("credential", name))
	}
}
