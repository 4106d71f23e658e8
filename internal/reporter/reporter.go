// Package reporter assembles and sends device health reports. It is gated
// by the token lifecycle manager: a report is only sent while the device
// holds a usable access token.
package reporter

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/junctionrelay/device-agent/internal/collector"
	"github.com/junctionrelay/device-agent/internal/models"
	"github.com/junctionrelay/device-agent/internal/sensor"
	"github.com/junctionrelay/device-agent/internal/token"
)

// collectTimeout bounds stat collection per report.
const collectTimeout = 10 * time.Second

// CredentialSource yields the current access token. *token.Manager
// satisfies it.
type CredentialSource interface {
	Credential() (string, error)
}

// HealthSender posts a health report. *cloud.Client satisfies it.
type HealthSender interface {
	SendHealth(ctx context.Context, accessToken string, report models.HealthReport) error
}

// Reporter builds health reports from system stats and buffered sensor
// readings and sends them to the cloud service.
type Reporter struct {
	creds    CredentialSource
	sender   HealthSender
	registry *collector.Registry
	sensors  *sensor.Buffer
	logger   *zap.Logger
}

// New creates a Reporter.
func New(creds CredentialSource, sender HealthSender, registry *collector.Registry, sensors *sensor.Buffer, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		creds:    creds,
		sender:   sender,
		registry: registry,
		sensors:  sensors,
		logger:   logger,
	}
}

// Send assembles and posts one health report. Without a usable credential
// it does nothing and the sensor buffer keeps accumulating. Once a send is
// attempted the buffer is cleared regardless of the outcome.
func (r *Reporter) Send(ctx context.Context) {
	cred, err := r.creds.Credential()
	if err != nil {
		if errors.Is(err, token.ErrNoCredential) {
			r.logger.Debug("No credential, skipping health report")
			return
		}
		r.logger.Error("Credential lookup failed", zap.Error(err))
		return
	}

	collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	data := collector.BuildStats(r.registry.CollectAll(collectCtx))
	cancel()

	for name, value := range r.sensors.Drain() {
		data[name] = value
	}

	report := models.HealthReport{
		Status:     "online",
		SensorData: data,
	}
	if err := r.sender.SendHealth(ctx, cred, report); err != nil {
		r.logger.Warn("Health report failed", zap.Error(err))
		return
	}

	r.logger.Debug("Health report sent", zap.Int("sensor_fields", len(data)))
}
