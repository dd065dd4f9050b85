// pkg/kel/enums.go
package kel

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Mode represents the load function as reported by :FUNC?
type Mode string

const (
	ModeConstantVoltage    Mode = "CV"
	ModeConstantCurrent    Mode = "CC"
	ModeConstantResistance Mode = "CR"
	ModeConstantPower      Mode = "CW"
	ModeBattery            Mode = "BATTERY"
	ModeShort              Mode = "SHORt" // literal device output
	ModeOCP                Mode = "OCP"
	ModeList               Mode = "LIST"
	ModeOPP                Mode = "OPP"
	ModeDynamicCV          Mode = "CONTINUOUS CV"
	ModeDynamicCC          Mode = "CONTINUOUS CC"
	ModeDynamicCR          Mode = "CONTINUOUS CR"
	ModeDynamicCW          Mode = "CONTINUOUS CW"
	ModeDynamicPulse       Mode = "PULSE"
	ModeDynamicToggle      Mode = "TOGGLE"
)

var modes = map[string]Mode{
	string(ModeConstantVoltage):    ModeConstantVoltage,
	string(ModeConstantCurrent):    ModeConstantCurrent,
	string(ModeConstantResistance): ModeConstantResistance,
	string(ModeConstantPower):      ModeConstantPower,
	string(ModeBattery):            ModeBattery,
	string(ModeShort):              ModeShort,
	string(ModeOCP):                ModeOCP,
	string(ModeList):               ModeList,
	string(ModeOPP):                ModeOPP,
	string(ModeDynamicCV):          ModeDynamicCV,
	string(ModeDynamicCC):          ModeDynamicCC,
	string(ModeDynamicCR):          ModeDynamicCR,
	string(ModeDynamicCW):          ModeDynamicCW,
	string(ModeDynamicPulse):       ModeDynamicPulse,
	string(ModeDynamicToggle):      ModeDynamicToggle,
}

// Modes returns every known mode
func Modes() []Mode {
	return []Mode{
		ModeConstantVoltage, ModeConstantCurrent, ModeConstantResistance, ModeConstantPower,
		ModeBattery, ModeShort, ModeOCP, ModeList, ModeOPP,
		ModeDynamicCV, ModeDynamicCC, ModeDynamicCR, ModeDynamicCW, ModeDynamicPulse, ModeDynamicToggle,
	}
}

// ParseMode decodes a :FUNC? token
func ParseMode(token string) (Mode, error) {
	if mode, ok := modes[token]; ok {
		return mode, nil
	}
	return "", decodeErr(token, "unknown mode token")
}

// Token returns the wire token
func (m Mode) Token() string {
	return string(m)
}

// Settable reports whether :FUNC accepts the mode directly
func (m Mode) Settable() bool {
	switch m {
	case ModeConstantVoltage, ModeConstantCurrent, ModeConstantResistance, ModeConstantPower, ModeShort:
		return true
	}
	return false
}

// Dynamic reports whether the mode is one of the dynamic waveform modes
func (m Mode) Dynamic() bool {
	switch m {
	case ModeDynamicCV, ModeDynamicCC, ModeDynamicCR, ModeDynamicCW, ModeDynamicPulse, ModeDynamicToggle:
		return true
	}
	return false
}

// BaudRate is a serial rate supported by the device. The zero value is 9600.
type BaudRate int

const (
	Baud9600 BaudRate = iota
	Baud19200
	Baud38400
	Baud57600
	Baud115200
)

var (
	baudRates = [...]int{
		Baud9600:   9600,
		Baud19200:  19200,
		Baud38400:  38400,
		Baud57600:  57600,
		Baud115200: 115200,
	}

	baudByRate = map[int]BaudRate{
		9600:   Baud9600,
		19200:  Baud19200,
		38400:  Baud38400,
		57600:  Baud57600,
		115200: Baud115200,
	}
)

// BaudRateFromIndex decodes the index form used by :STAT?
func BaudRateFromIndex(index int) (BaudRate, error) {
	if index < 0 || index >= len(baudRates) {
		return 0, decodeErr(strconv.Itoa(index), "unknown baud rate index")
	}
	return BaudRate(index), nil
}

// BaudRateFromRate decodes the literal rate used by :SYST:BAUD
func BaudRateFromRate(rate int) (BaudRate, error) {
	if b, ok := baudByRate[rate]; ok {
		return b, nil
	}
	return 0, decodeErr(strconv.Itoa(rate), "unknown baud rate")
}

// ParseBaudRate decodes a :SYST:BAUD? reply. The literal rate is tried
// first, then the index form.
func ParseBaudRate(token string) (BaudRate, error) {
	n, err := strconv.Atoi(strings.TrimSpace(token))
	if err != nil {
		return 0, decodeErr(token, "malformed baud rate")
	}
	if b, ok := baudByRate[n]; ok {
		return b, nil
	}
	return BaudRateFromIndex(n)
}

// Index returns the status-line form
func (b BaudRate) Index() int {
	return int(b)
}

// Rate returns the literal baud rate
func (b BaudRate) Rate() int {
	if b < 0 || int(b) >= len(baudRates) {
		return 0
	}
	return baudRates[b]
}

func (b BaudRate) String() string {
	return strconv.Itoa(b.Rate())
}

// MarshalText renders the literal rate, the form :SYST:BAUD and the
// network settings use
func (b BaudRate) MarshalText() ([]byte, error) {
	if b.Rate() == 0 {
		return nil, fmt.Errorf("invalid baud rate index %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText accepts a literal rate
func (b *BaudRate) UnmarshalText(text []byte) error {
	rate, err := strconv.Atoi(strings.TrimSpace(string(text)))
	if err != nil {
		return decodeErr(string(text), "malformed baud rate")
	}
	parsed, err := BaudRateFromRate(rate)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalJSON renders the literal rate as a number
func (b BaudRate) MarshalJSON() ([]byte, error) {
	return b.MarshalText()
}

// UnmarshalJSON accepts the literal rate as a number or a string
func (b *BaudRate) UnmarshalJSON(data []byte) error {
	return b.UnmarshalText(bytes.Trim(data, `"`))
}

// OnOffState is a two-valued device setting
type OnOffState int

const (
	Off OnOffState = 0
	On  OnOffState = 1
)

// ParseOnOffState accepts both the numeric (0/1) and the textual (OFF/ON) form
func ParseOnOffState(token string) (OnOffState, error) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "0", "OFF":
		return Off, nil
	case "1", "ON":
		return On, nil
	}
	return Off, decodeErr(token, "unknown on/off token")
}

// Numeric returns the 0/1 wire form
func (s OnOffState) Numeric() int {
	return int(s)
}

// Token returns the OFF/ON wire form
func (s OnOffState) Token() string {
	if s == On {
		return "ON"
	}
	return "OFF"
}

func (s OnOffState) String() string {
	if s == On {
		return "on"
	}
	return "off"
}
