// Package models defines the wire payload types exchanged with the cloud service.
package models

// HealthReport is the body of a device health POST. SensorData carries the
// merged system statistics and buffered sensor readings as a flat map.
// Field casing matches the cloud ingestion API.
type HealthReport struct {
	Status     string                 `json:"Status"`
	SensorData map[string]interface{} `json:"SensorData"`
}
