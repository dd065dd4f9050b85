// pkg/kel/codec.go
package kel

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit is the literal suffix appended to a numeric command field
type Unit string

const (
	Ampere   Unit = "A"
	Volt     Unit = "V"
	Ohm      Unit = "OHM"
	Watt     Unit = "W"
	Second   Unit = "S"
	Hertz    Unit = "HZ"
	Percent  Unit = "%"
	AmpHour  Unit = "AH"
	Minute   Unit = "M"
	SlewRate Unit = "A/uS"
	Unitless Unit = ""
)

const valueFmt = "%5.4f"

// Longest first so that "AH" wins over "A" and "A/uS" over "S".
var knownUnits = []Unit{SlewRate, Ohm, AmpHour, Hertz, Ampere, Volt, Watt, Second, Percent, Minute}

// FormatValue renders v with four decimals followed by the unit suffix
func FormatValue(v float64, unit Unit) string {
	return fmt.Sprintf(valueFmt, v) + string(unit)
}

// ParseValue strips the unit suffix from a reply and parses the remainder.
// It reports false for empty or non-numeric replies, which the device sends
// when the queried quantity does not apply to the active mode.
func ParseValue(reply string, unit Unit) (float64, bool) {
	s := strings.TrimSpace(reply)
	if s == "" {
		return 0, false
	}

	for _, known := range knownUnits {
		if strings.HasSuffix(s, string(known)) {
			if known != unit {
				return 0, false
			}
			s = strings.TrimSuffix(s, string(known))
			break
		}
	}

	return parseNumber(s)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// stripUnits removes every suffix in order from a reply. The order matters
// since some suffixes are substrings of others.
func stripUnits(reply string, units ...Unit) string {
	s := strings.ReplaceAll(reply, " ", "")
	for _, u := range units {
		s = strings.ReplaceAll(s, string(u), "")
	}
	return s
}

// splitFields strips units and splits a comma separated reply into numbers
func splitFields(reply string, want int, units ...Unit) ([]float64, error) {
	fields := strings.Split(stripUnits(strings.TrimSpace(reply), units...), ",")
	if want > 0 && len(fields) != want {
		return nil, decodeErr(reply, fmt.Sprintf("expected %d fields, got %d", want, len(fields)))
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, ok := parseNumber(f)
		if !ok {
			return nil, decodeErr(f, "malformed numeric field")
		}
		values[i] = v
	}
	return values, nil
}
