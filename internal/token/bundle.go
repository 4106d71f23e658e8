package token

import (
	"encoding/json"
	"fmt"
)

// Bundle is the out-of-band registration input pasted by the operator:
// a one-time registration token plus a human-readable device name.
type Bundle struct {
	Token      string `json:"token"`
	DeviceName string `json:"deviceName"`
}

// ParseBundle parses and validates a registration token bundle.
// Both fields are required.
func ParseBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("invalid registration bundle: %w", err)
	}
	if b.Token == "" || b.DeviceName == "" {
		return Bundle{}, fmt.Errorf("registration bundle must contain token and deviceName")
	}
	return b, nil
}
