// internal/driver/korad/kel_settings.go
package korad

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"eload-service/pkg/kel"
)

// Settings groups the system configuration of the load
type Settings struct {
	*channel

	Beep         *OnOffButton
	Lock         *OnOffButton
	DHCP         *OnOffButton
	Trigger      *OnOffButton
	Compensation *OnOffButton
}

func newSettings(ch *channel) *Settings {
	return &Settings{
		channel:      ch,
		Beep:         newOnOffButton(ch, ":SYST:BEEP ON", ":SYST:BEEP OFF", ":SYST:BEEP?"),
		Lock:         newOnOffButton(ch, ":SYST:LOCK ON", ":SYST:LOCK OFF", ":SYST:LOCK?"),
		DHCP:         newOnOffButton(ch, ":SYST:DHCP 1", ":SYST:DHCP 0", ":SYST:DHCP?"),
		Trigger:      newOnOffButton(ch, ":SYST:EXIT ON", ":SYST:EXIT OFF", ":SYST:EXIT?"),
		Compensation: newOnOffButton(ch, ":SYST:COMP ON", ":SYST:COMP OFF", ":SYST:COMP?"),
	}
}

// Only the upper limits can be changed on the device, so the lower ones are
// not exposed.

// Limit reads the upper limit of a quantity
func (s *Settings) Limit(ctx context.Context, q kel.Quantity) (float64, error) {
	verb, unit, err := lookupQuantity(q)
	if err != nil {
		return 0, err
	}
	return s.queryLimit(ctx, verb+":UPP?", unit)
}

// SetLimit programs the upper limit of a quantity
func (s *Settings) SetLimit(ctx context.Context, q kel.Quantity, value float64) error {
	verb, unit, err := lookupQuantity(q)
	if err != nil {
		return err
	}
	return s.setValue(ctx, verb+":UPP", value, unit)
}

// CurrentLimit reads the upper current limit
func (s *Settings) CurrentLimit(ctx context.Context) (float64, error) {
	return s.Limit(ctx, kel.QuantityCurrent)
}

// SetCurrentLimit programs the upper current limit
func (s *Settings) SetCurrentLimit(ctx context.Context, value float64) error {
	return s.SetLimit(ctx, kel.QuantityCurrent, value)
}

// VoltageLimit reads the upper voltage limit
func (s *Settings) VoltageLimit(ctx context.Context) (float64, error) {
	return s.Limit(ctx, kel.QuantityVoltage)
}

// SetVoltageLimit programs the upper voltage limit
func (s *Settings) SetVoltageLimit(ctx context.Context, value float64) error {
	return s.SetLimit(ctx, kel.QuantityVoltage, value)
}

// ResistanceLimit reads the upper resistance limit
func (s *Settings) ResistanceLimit(ctx context.Context) (float64, error) {
	return s.Limit(ctx, kel.QuantityResistance)
}

// SetResistanceLimit programs the upper resistance limit
func (s *Settings) SetResistanceLimit(ctx context.Context, value float64) error {
	return s.SetLimit(ctx, kel.QuantityResistance, value)
}

// PowerLimit reads the upper power limit
func (s *Settings) PowerLimit(ctx context.Context) (float64, error) {
	return s.Limit(ctx, kel.QuantityPower)
}

// SetPowerLimit programs the upper power limit
func (s *Settings) SetPowerLimit(ctx context.Context, value float64) error {
	return s.SetLimit(ctx, kel.QuantityPower, value)
}

// FactoryReset restores the factory defaults
func (s *Settings) FactoryReset(ctx context.Context) error {
	return s.send(ctx, ":SYST:FACTRESET")
}

// BaudRate reads the serial rate
func (s *Settings) BaudRate(ctx context.Context) (kel.BaudRate, error) {
	reply, err := s.query(ctx, ":SYST:BAUD?")
	if err != nil {
		return 0, err
	}
	return kel.ParseBaudRate(reply)
}

// SetBaudRate changes the serial rate. The link has to be reopened at the
// new rate afterwards.
func (s *Settings) SetBaudRate(ctx context.Context, rate kel.BaudRate) error {
	if rate.Rate() == 0 {
		return &kel.ValidationError{Rule: kel.RuleBaudRate, Message: "unknown baud rate"}
	}
	return s.send(ctx, fmt.Sprintf(":SYST:BAUD %d", rate.Rate()))
}

// SubnetMask reads the subnet mask
func (s *Settings) SubnetMask(ctx context.Context) (string, error) {
	return s.queryString(ctx, ":SYST:SMASK?")
}

// SetSubnetMask programs the subnet mask
func (s *Settings) SetSubnetMask(ctx context.Context, value string) error {
	return s.sendAddress(ctx, ":SYST:SMASK", value)
}

// IPAddress reads the IP address
func (s *Settings) IPAddress(ctx context.Context) (string, error) {
	return s.queryString(ctx, ":SYST:IPAD?")
}

// SetIPAddress programs the IP address
func (s *Settings) SetIPAddress(ctx context.Context, value string) error {
	return s.sendAddress(ctx, ":SYST:IPAD", value)
}

// Gateway reads the gateway address
func (s *Settings) Gateway(ctx context.Context) (string, error) {
	return s.queryString(ctx, ":SYST:GATE?")
}

// SetGateway programs the gateway address
func (s *Settings) SetGateway(ctx context.Context, value string) error {
	return s.sendAddress(ctx, ":SYST:GATE", value)
}

// MACAddress reads the MAC address
func (s *Settings) MACAddress(ctx context.Context) (string, error) {
	return s.queryString(ctx, ":SYST:MAC?")
}

// SetMACAddress programs the MAC address. Colon separators are sent as
// dashes.
func (s *Settings) SetMACAddress(ctx context.Context, value string) error {
	if !validMAC(strings.ToLower(value)) {
		return &kel.ValidationError{Rule: kel.RuleAddress, Message: fmt.Sprintf("invalid MAC address: %q", value)}
	}
	return s.send(ctx, ":SYST:MAC "+strings.ReplaceAll(value, ":", "-"))
}

// Port reads the network port
func (s *Settings) Port(ctx context.Context) (int, error) {
	reply, err := s.queryString(ctx, ":SYST:PORT?")
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(reply)
	if err != nil {
		return 0, &kel.DecodeError{Token: reply, Message: "malformed port"}
	}
	return port, nil
}

// SetPort programs the network port
func (s *Settings) SetPort(ctx context.Context, port int) error {
	if port < 1 || port > 65535 {
		return &kel.ValidationError{Rule: kel.RulePort, Message: fmt.Sprintf("invalid port number: %d", port)}
	}
	return s.send(ctx, fmt.Sprintf(":SYST:PORT %d", port))
}

func (s *Settings) queryString(ctx context.Context, command string) (string, error) {
	reply, err := s.query(ctx, command)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (s *Settings) sendAddress(ctx context.Context, verb, value string) error {
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return &kel.ValidationError{Rule: kel.RuleAddress, Message: fmt.Sprintf("invalid IP address: %q", value)}
	}
	return s.send(ctx, verb+" "+addr.String())
}

// macPattern matches six lowercase hex octets, either unseparated or all
// separated by the same '-' or ':'
var macPattern = regexp.MustCompile(`^[0-9a-f]{2}(?:(?:-[0-9a-f]{2}){5}|(?::[0-9a-f]{2}){5}|(?:[0-9a-f]{2}){5})$`)

func validMAC(s string) bool {
	return macPattern.MatchString(s)
}
