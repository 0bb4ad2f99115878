// Package util provides shared utility functions.
package util

import (
	"net"

	"github.com/google/uuid"
)

// DeviceID returns the hardware address of the first up, non-loopback
// interface, formatted as "aa:bb:cc:dd:ee:ff". Hosts without one (containers
// with only a loopback device) get a random UUID instead, stable for the life
// of the process only.
func DeviceID() string {
	if mac := firstHardwareAddr(); mac != "" {
		return mac
	}
	return uuid.NewString()
}

func firstHardwareAddr() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

// ClientID returns a unique pub/sub client identifier for the given device.
func ClientID(prefix, deviceID string) string {
	return prefix + "-" + deviceID + "-" + uuid.NewString()[:8]
}
