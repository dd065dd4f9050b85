// pkg/kel/dynamic.go
package kel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quantity names the device-wide limit a dynamic list is checked against
type Quantity string

const (
	QuantityCurrent    Quantity = "current"
	QuantityVoltage    Quantity = "voltage"
	QuantityResistance Quantity = "resistance"
	QuantityPower      Quantity = "power"
)

var dynamicUnits = []Unit{AmpHour, Volt, SlewRate, Hertz, Percent, Ampere, Ohm, Watt, Second}

// DynamicList is one of the six :DYN waveform programs
type DynamicList interface {
	// Tag is the leading numeric field of the :DYN command
	Tag() int
	// Mode is the :FUNC? state the device reports once the program is active
	Mode() Mode
	// LimitQuantity selects the live limit passed to Validate
	LimitQuantity() Quantity
	Command() string
	Validate(limit float64) error

	dynamicList()
}

// CVList toggles between two voltages (:DYN 1)
type CVList struct {
	Voltage1  float64 `json:"voltage1" yaml:"voltage1"`
	Voltage2  float64 `json:"voltage2" yaml:"voltage2"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	DutyCycle float64 `json:"duty_cycle" yaml:"duty_cycle"`
}

func (*CVList) Tag() int                { return 1 }
func (*CVList) Mode() Mode              { return ModeDynamicCV }
func (*CVList) LimitQuantity() Quantity { return QuantityVoltage }
func (*CVList) dynamicList()            {}

func (l *CVList) Command() string {
	return dynCommand(l.Tag(),
		FormatValue(l.Voltage1, Volt),
		FormatValue(l.Voltage2, Volt),
		FormatValue(l.Frequency, Hertz),
		FormatValue(l.DutyCycle, Percent),
	)
}

func (l *CVList) Validate(limit float64) error {
	if err := checkLevels(l.Voltage1, l.Voltage2, limit, "voltage value out of set limits"); err != nil {
		return err
	}
	return checkDutyCycle(l.DutyCycle)
}

// CCList toggles between two currents with slopes (:DYN 2)
type CCList struct {
	Slope1    float64 `json:"slope1" yaml:"slope1"`
	Slope2    float64 `json:"slope2" yaml:"slope2"`
	Current1  float64 `json:"current1" yaml:"current1"`
	Current2  float64 `json:"current2" yaml:"current2"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	DutyCycle float64 `json:"duty_cycle" yaml:"duty_cycle"`
}

func (*CCList) Tag() int                { return 2 }
func (*CCList) Mode() Mode              { return ModeDynamicCC }
func (*CCList) LimitQuantity() Quantity { return QuantityCurrent }
func (*CCList) dynamicList()            {}

func (l *CCList) Command() string {
	return dynCommand(l.Tag(),
		FormatValue(l.Slope1, SlewRate),
		FormatValue(l.Slope2, SlewRate),
		FormatValue(l.Current1, Ampere),
		FormatValue(l.Current2, Ampere),
		FormatValue(l.Frequency, Hertz),
		FormatValue(l.DutyCycle, Percent),
	)
}

func (l *CCList) Validate(limit float64) error {
	if err := checkLevels(l.Current1, l.Current2, limit, "current value out of set limits"); err != nil {
		return err
	}
	return checkDutyCycle(l.DutyCycle)
}

// CRList toggles between two resistances (:DYN 3)
type CRList struct {
	Resistance1 float64 `json:"resistance1" yaml:"resistance1"`
	Resistance2 float64 `json:"resistance2" yaml:"resistance2"`
	Frequency   float64 `json:"frequency" yaml:"frequency"`
	DutyCycle   float64 `json:"duty_cycle" yaml:"duty_cycle"`
}

func (*CRList) Tag() int                { return 3 }
func (*CRList) Mode() Mode              { return ModeDynamicCR }
func (*CRList) LimitQuantity() Quantity { return QuantityResistance }
func (*CRList) dynamicList()            {}

func (l *CRList) Command() string {
	return dynCommand(l.Tag(),
		FormatValue(l.Resistance1, Ohm),
		FormatValue(l.Resistance2, Ohm),
		FormatValue(l.Frequency, Hertz),
		FormatValue(l.DutyCycle, Percent),
	)
}

func (l *CRList) Validate(limit float64) error {
	if err := checkLevels(l.Resistance1, l.Resistance2, limit, "resistance value out of set limits"); err != nil {
		return err
	}
	return checkDutyCycle(l.DutyCycle)
}

// CWList toggles between two power levels (:DYN 4)
type CWList struct {
	Power1    float64 `json:"power1" yaml:"power1"`
	Power2    float64 `json:"power2" yaml:"power2"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	DutyCycle float64 `json:"duty_cycle" yaml:"duty_cycle"`
}

func (*CWList) Tag() int                { return 4 }
func (*CWList) Mode() Mode              { return ModeDynamicCW }
func (*CWList) LimitQuantity() Quantity { return QuantityPower }
func (*CWList) dynamicList()            {}

func (l *CWList) Command() string {
	return dynCommand(l.Tag(),
		FormatValue(l.Power1, Watt),
		FormatValue(l.Power2, Watt),
		FormatValue(l.Frequency, Hertz),
		FormatValue(l.DutyCycle, Percent),
	)
}

func (l *CWList) Validate(limit float64) error {
	if err := checkLevels(l.Power1, l.Power2, limit, "power value out of set limits"); err != nil {
		return err
	}
	return checkDutyCycle(l.DutyCycle)
}

// PulseList emits a single current pulse per trigger (:DYN 5)
type PulseList struct {
	Slope1   float64 `json:"slope1" yaml:"slope1"`
	Slope2   float64 `json:"slope2" yaml:"slope2"`
	Current1 float64 `json:"current1" yaml:"current1"`
	Current2 float64 `json:"current2" yaml:"current2"`
	Duration float64 `json:"duration" yaml:"duration"`
}

func (*PulseList) Tag() int                { return 5 }
func (*PulseList) Mode() Mode              { return ModeDynamicPulse }
func (*PulseList) LimitQuantity() Quantity { return QuantityCurrent }
func (*PulseList) dynamicList()            {}

func (l *PulseList) Command() string {
	return dynCommand(l.Tag(),
		FormatValue(l.Slope1, SlewRate),
		FormatValue(l.Slope2, SlewRate),
		FormatValue(l.Current1, Ampere),
		FormatValue(l.Current2, Ampere),
		FormatValue(l.Duration, Second),
	)
}

func (l *PulseList) Validate(limit float64) error {
	return checkLevels(l.Current1, l.Current2, limit, "current value out of set limits")
}

// ToggleList flips between two currents on each trigger (:DYN 6)
type ToggleList struct {
	Slope1   float64 `json:"slope1" yaml:"slope1"`
	Slope2   float64 `json:"slope2" yaml:"slope2"`
	Current1 float64 `json:"current1" yaml:"current1"`
	Current2 float64 `json:"current2" yaml:"current2"`
}

func (*ToggleList) Tag() int                { return 6 }
func (*ToggleList) Mode() Mode              { return ModeDynamicToggle }
func (*ToggleList) LimitQuantity() Quantity { return QuantityCurrent }
func (*ToggleList) dynamicList()            {}

func (l *ToggleList) Command() string {
	return dynCommand(l.Tag(),
		FormatValue(l.Slope1, SlewRate),
		FormatValue(l.Slope2, SlewRate),
		FormatValue(l.Current1, Ampere),
		FormatValue(l.Current2, Ampere),
	)
}

func (l *ToggleList) Validate(limit float64) error {
	return checkLevels(l.Current1, l.Current2, limit, "current value out of set limits")
}

// ParseDynamicList decodes a :DYN? reply into the variant named by its
// leading tag
func ParseDynamicList(reply string) (DynamicList, error) {
	fields := strings.Split(stripUnits(strings.TrimSpace(reply), dynamicUnits...), ",")
	tag, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, decodeErr(fields[0], "malformed dynamic mode tag")
	}

	want := map[int]int{1: 4, 2: 6, 3: 4, 4: 4, 5: 5, 6: 4}[tag]
	if want == 0 {
		return nil, &ModeError{Mode: fields[0], Err: ErrInvalidDynamicMode}
	}
	if len(fields)-1 != want {
		return nil, decodeErr(reply, fmt.Sprintf("dynamic mode %d expects %d fields, got %d", tag, want, len(fields)-1))
	}

	v := make([]float64, want)
	for i := range v {
		var ok bool
		if v[i], ok = parseNumber(fields[i+1]); !ok {
			return nil, decodeErr(fields[i+1], "malformed numeric field")
		}
	}

	switch tag {
	case 1:
		return &CVList{Voltage1: v[0], Voltage2: v[1], Frequency: v[2], DutyCycle: v[3]}, nil
	case 2:
		return &CCList{Slope1: v[0], Slope2: v[1], Current1: v[2], Current2: v[3], Frequency: v[4], DutyCycle: v[5]}, nil
	case 3:
		return &CRList{Resistance1: v[0], Resistance2: v[1], Frequency: v[2], DutyCycle: v[3]}, nil
	case 4:
		return &CWList{Power1: v[0], Power2: v[1], Frequency: v[2], DutyCycle: v[3]}, nil
	case 5:
		return &PulseList{Slope1: v[0], Slope2: v[1], Current1: v[2], Current2: v[3], Duration: v[4]}, nil
	default:
		return &ToggleList{Slope1: v[0], Slope2: v[1], Current1: v[2], Current2: v[3]}, nil
	}
}

// NewDynamicList returns an empty list of the variant selected by tag, ready
// to be filled from a request body or a file
func NewDynamicList(tag int) (DynamicList, error) {
	switch tag {
	case 1:
		return &CVList{}, nil
	case 2:
		return &CCList{}, nil
	case 3:
		return &CRList{}, nil
	case 4:
		return &CWList{}, nil
	case 5:
		return &PulseList{}, nil
	case 6:
		return &ToggleList{}, nil
	}
	return nil, &ModeError{Mode: strconv.Itoa(tag), Err: ErrInvalidDynamicMode}
}

func dynCommand(tag int, fields ...string) string {
	return fmt.Sprintf(":DYN %d,%s", tag, strings.Join(fields, ","))
}

// checkLevels rejects the pair only when both levels exceed the limit; a
// single level above it is left for the device to handle.
func checkLevels(level1, level2, limit float64, message string) error {
	if level2 > limit && limit < level1 {
		return &LimitExceededError{Value: math.Max(level1, level2), Limit: limit, Message: message}
	}
	return nil
}

func checkDutyCycle(duty float64) error {
	if duty >= 100 {
		return &LimitExceededError{Value: duty, Limit: 100, Message: "duty cycle must be below 100%"}
	}
	return nil
}
