// CPU temperature collector. Reads thermal sensors via gopsutil and picks
// the hottest CPU-related reading. Hosts without thermal sensors simply
// omit the temperature from health reports.
package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// Sensor name substrings that identify CPU temperature sensors.
// Linux: coretemp_core_0_input, k10temp_tctl_input, cpu_thermal (Pi).
var cpuSensorKeys = []string{
	"cpu", "core", "package", "tctl", "tdie", "k10temp", "coretemp",
}

// maxValidTemp is the highest reading (°C) considered plausible.
// Anything above is likely a sensor error.
const maxValidTemp = 150.0

// TemperatureCollector collects the CPU temperature in degrees Celsius.
type TemperatureCollector struct{}

// NewTemperatureCollector creates a new temperature collector.
func NewTemperatureCollector() *TemperatureCollector {
	return &TemperatureCollector{}
}

// Name returns the collector identifier.
func (c *TemperatureCollector) Name() string { return "temperature" }

// Collect returns the maximum CPU sensor reading, or an error when no
// usable sensor is present.
func (c *TemperatureCollector) Collect(ctx context.Context) (interface{}, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var max float64
	found := false
	for _, t := range temps {
		if t.Temperature <= 0 || t.Temperature > maxValidTemp {
			continue
		}
		key := strings.ToLower(t.SensorKey)
		for _, want := range cpuSensorKeys {
			if strings.Contains(key, want) {
				if !found || t.Temperature > max {
					max = t.Temperature
					found = true
				}
				break
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("no cpu temperature sensor found")
	}
	return max, nil
}

// IsAvailable returns true — availability is determined per collection,
// since sensors can appear or disappear with drivers.
func (c *TemperatureCollector) IsAvailable() bool { return true }
