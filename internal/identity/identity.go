// Package identity derives a stable local device identifier.
// It prefers a hardware network address; hosts without one get a
// generated identifier instead.
package identity

import (
	"strings"

	"github.com/google/uuid"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// DeviceID returns an identifier for this host: the hardware address of the
// first non-loopback network interface, uppercased, or a freshly generated
// UUID when no hardware address is available. Callers are expected to
// persist the result; a UUID fallback is only stable across restarts once
// stored in the credential record.
func DeviceID() string {
	if mac := hardwareAddress(); mac != "" {
		return mac
	}
	return uuid.NewString()
}

// hardwareAddress returns the first usable MAC address, or "".
func hardwareAddress() string {
	interfaces, err := psnet.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range interfaces {
		if isLoopback(iface) || iface.HardwareAddr == "" {
			continue
		}
		return strings.ToUpper(iface.HardwareAddr)
	}
	return ""
}

func isLoopback(iface psnet.InterfaceStat) bool {
	if iface.Name == "lo" {
		return true
	}
	for _, flag := range iface.Flags {
		if strings.EqualFold(flag, "loopback") {
			return true
		}
	}
	return false
}
