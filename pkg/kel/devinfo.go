// pkg/kel/devinfo.go
package kel

import (
	"strconv"
	"strings"
)

// DeviceInfoLines is the number of lines :SYST:DEVINFO? answers with
const DeviceInfoLines = 7

// DeviceInfo is the network and serial configuration block reported by
// :SYST:DEVINFO?
type DeviceInfo struct {
	Raw      string   `json:"raw" yaml:"raw"`
	DHCP     bool     `json:"dhcp" yaml:"dhcp"`
	IP       string   `json:"ip" yaml:"ip"`
	Netmask  string   `json:"netmask" yaml:"netmask"`
	Gateway  string   `json:"gateway" yaml:"gateway"`
	MAC      string   `json:"mac" yaml:"mac"`
	Port     int      `json:"port" yaml:"port"`
	BaudRate BaudRate `json:"baud_rate" yaml:"baud_rate"`
}

// ParseDeviceInfo decodes the KEY:VALUE lines of a :SYST:DEVINFO? reply.
// Keys are matched case-insensitively; unknown keys are ignored.
func ParseDeviceInfo(reply string) (*DeviceInfo, error) {
	info := &DeviceInfo{Raw: reply}
	seen := 0

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, decodeErr(line, "device info line has no key")
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "DHCP":
			state, err := ParseOnOffState(value)
			if err != nil {
				return nil, err
			}
			info.DHCP = state == On
		case "IP":
			info.IP = value
		case "NETMASK":
			info.Netmask = value
		case "GATEWAY":
			info.Gateway = value
		case "MAC":
			info.MAC = value
		case "PORT":
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, decodeErr(value, "malformed port")
			}
			info.Port = port
		case "BAUDRATE":
			rate, err := strconv.Atoi(value)
			if err != nil {
				return nil, decodeErr(value, "malformed baud rate")
			}
			if info.BaudRate, err = BaudRateFromRate(rate); err != nil {
				return nil, err
			}
		default:
			continue
		}
		seen++
	}

	if seen == 0 {
		return nil, decodeErr(reply, "empty device info")
	}
	return info, nil
}
