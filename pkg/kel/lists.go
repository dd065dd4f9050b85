// pkg/kel/lists.go
package kel

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MaxListSlot       = 7
	MaxProtectionSlot = 10
	MaxListSteps      = 84
)

// Suffix removal order for each reply kind
var (
	listUnits    = []Unit{SlewRate, Ampere, Second}
	ocpUnits     = []Unit{Ampere, Second, Volt}
	oppUnits     = []Unit{Ampere, Second, Volt, Watt}
	batteryUnits = []Unit{AmpHour, Minute, Volt, Ampere}
)

// Step is one entry of a LoadList
type Step struct {
	Current      float64 `json:"current" yaml:"current"`
	CurrentSlope float64 `json:"current_slope" yaml:"current_slope"`
	Duration     float64 `json:"duration" yaml:"duration"`
}

// LoadList is a stored step program (:LIST)
type LoadList struct {
	Slot         int     `json:"slot" yaml:"slot"`
	CurrentRange float64 `json:"current_range" yaml:"current_range"`
	Steps        []Step  `json:"steps" yaml:"steps"`
	Loops        int     `json:"loops" yaml:"loops"`
}

// Command renders the :LIST upload line
func (l *LoadList) Command() string {
	var b strings.Builder
	fmt.Fprintf(&b, ":LIST %d,%s,%d,", l.Slot, FormatValue(l.CurrentRange, Ampere), len(l.Steps))
	for _, s := range l.Steps {
		b.WriteString(FormatValue(s.Current, Ampere))
		b.WriteByte(',')
		b.WriteString(FormatValue(s.CurrentSlope, SlewRate))
		b.WriteByte(',')
		b.WriteString(FormatValue(s.Duration, Second))
		b.WriteByte(',')
	}
	b.WriteString(strconv.Itoa(l.Loops))
	return b.String()
}

// Validate checks the list before upload
func (l *LoadList) Validate() error {
	if err := ValidateListSlot(l.Slot); err != nil {
		return err
	}
	if len(l.Steps) > MaxListSteps {
		return validationErr(RuleStepCount, fmt.Sprintf("a maximum of %d steps is allowed", MaxListSteps))
	}
	for i, s := range l.Steps {
		if s.Current > l.CurrentRange {
			return validationErr(RuleStepCurrent,
				fmt.Sprintf("step %d: current set is out of current range (%.4f > %.4f)", i+1, s.Current, l.CurrentRange))
		}
	}
	return nil
}

// ParseLoadList decodes a :RCL:LIST? reply. The reply carries the range,
// the step count, the steps and finally the loop count; the step count is
// taken from the number of fields.
func ParseLoadList(slot int, reply string) (*LoadList, error) {
	fields := strings.Split(stripUnits(strings.TrimSpace(reply), listUnits...), ",")
	if len(fields) < 3 {
		return nil, decodeErr(reply, "list reply too short")
	}

	currentRange, ok := parseNumber(fields[0])
	if !ok {
		return nil, decodeErr(fields[0], "malformed current range")
	}
	loops, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return nil, decodeErr(fields[len(fields)-1], "malformed loop count")
	}

	body := fields[2 : len(fields)-1]
	if len(body)%3 != 0 {
		return nil, decodeErr(reply, "step fields are not a multiple of three")
	}

	steps := make([]Step, 0, len(body)/3)
	for i := 0; i < len(body); i += 3 {
		var v [3]float64
		for j := range v {
			if v[j], ok = parseNumber(body[i+j]); !ok {
				return nil, decodeErr(body[i+j], "malformed step field")
			}
		}
		steps = append(steps, Step{Current: v[0], CurrentSlope: v[1], Duration: v[2]})
	}

	return &LoadList{Slot: slot, CurrentRange: currentRange, Steps: steps, Loops: loops}, nil
}

// OCPList is an over-current protection test program (:OCP)
type OCPList struct {
	Slot           int     `json:"slot" yaml:"slot"`
	OnVoltage      float64 `json:"on_voltage" yaml:"on_voltage"`
	OnDelay        float64 `json:"on_delay" yaml:"on_delay"`
	CurrentRange   float64 `json:"current_range" yaml:"current_range"`
	InitialCurrent float64 `json:"initial_current" yaml:"initial_current"`
	StepCurrent    float64 `json:"step_current" yaml:"step_current"`
	StepDelay      float64 `json:"step_delay" yaml:"step_delay"`
	OffCurrent     float64 `json:"off_current" yaml:"off_current"`
	OCPVoltage     float64 `json:"ocp_voltage" yaml:"ocp_voltage"`
	MaxOvercurrent float64 `json:"max_overcurrent" yaml:"max_overcurrent"`
	MinOvercurrent float64 `json:"min_overcurrent" yaml:"min_overcurrent"`
}

// Command renders the :OCP upload line
func (l *OCPList) Command() string {
	return fmt.Sprintf(":OCP %d,%s", l.Slot, strings.Join([]string{
		FormatValue(l.OnVoltage, Volt),
		FormatValue(l.OnDelay, Second),
		FormatValue(l.CurrentRange, Ampere),
		FormatValue(l.InitialCurrent, Ampere),
		FormatValue(l.StepCurrent, Ampere),
		FormatValue(l.StepDelay, Second),
		FormatValue(l.OffCurrent, Ampere),
		FormatValue(l.OCPVoltage, Volt),
		FormatValue(l.MaxOvercurrent, Ampere),
		FormatValue(l.MinOvercurrent, Ampere),
	}, ","))
}

// Validate checks the program before upload
func (l *OCPList) Validate() error {
	if err := ValidateProtectionSlot(l.Slot); err != nil {
		return err
	}
	if l.InitialCurrent >= l.CurrentRange {
		return validationErr(RuleInitialBelowRange, "current values must be below current range")
	}
	if l.InitialCurrent <= l.MaxOvercurrent {
		return validationErr(RuleInitialAboveMax, "initial current must be above max overcurrent")
	}
	if l.OffCurrent > l.MinOvercurrent {
		return validationErr(RuleOffBelowMin, "off current must be below other current values")
	}
	if l.MaxOvercurrent <= l.MinOvercurrent {
		return validationErr(RuleMaxAboveMin, "max overcurrent must be above min overcurrent")
	}
	if l.StepCurrent > l.InitialCurrent {
		return validationErr(RuleStepBelowInitial, "current step must be same or lower than initial current")
	}
	return nil
}

// ParseOCPList decodes a :RCL:OCP? reply
func ParseOCPList(slot int, reply string) (*OCPList, error) {
	v, err := splitFields(reply, 10, ocpUnits...)
	if err != nil {
		return nil, err
	}
	return &OCPList{
		Slot:           slot,
		OnVoltage:      v[0],
		OnDelay:        v[1],
		CurrentRange:   v[2],
		InitialCurrent: v[3],
		StepCurrent:    v[4],
		StepDelay:      v[5],
		OffCurrent:     v[6],
		OCPVoltage:     v[7],
		MaxOvercurrent: v[8],
		MinOvercurrent: v[9],
	}, nil
}

// OPPList is an over-power protection test program (:OPP)
type OPPList struct {
	Slot         int     `json:"slot" yaml:"slot"`
	OnVoltage    float64 `json:"on_voltage" yaml:"on_voltage"`
	OnDelay      float64 `json:"on_delay" yaml:"on_delay"`
	CurrentRange float64 `json:"current_range" yaml:"current_range"`
	InitialPower float64 `json:"initial_power" yaml:"initial_power"`
	StepPower    float64 `json:"step_power" yaml:"step_power"`
	StepDelay    float64 `json:"step_delay" yaml:"step_delay"`
	OffPower     float64 `json:"off_power" yaml:"off_power"`
	OPPVoltage   float64 `json:"opp_voltage" yaml:"opp_voltage"`
	MaxOverpower float64 `json:"max_overpower" yaml:"max_overpower"`
	MinOverpower float64 `json:"min_overpower" yaml:"min_overpower"`
}

// Command renders the :OPP upload line
func (l *OPPList) Command() string {
	return fmt.Sprintf(":OPP %d,%s", l.Slot, strings.Join([]string{
		FormatValue(l.OnVoltage, Volt),
		FormatValue(l.OnDelay, Second),
		FormatValue(l.CurrentRange, Ampere),
		FormatValue(l.InitialPower, Watt),
		FormatValue(l.StepPower, Watt),
		FormatValue(l.StepDelay, Second),
		FormatValue(l.OffPower, Watt),
		FormatValue(l.OPPVoltage, Volt),
		FormatValue(l.MaxOverpower, Watt),
		FormatValue(l.MinOverpower, Watt),
	}, ","))
}

// Validate checks the program before upload. The range is in amperes and
// the levels in watts, so there is no range rule here.
func (l *OPPList) Validate() error {
	if err := ValidateProtectionSlot(l.Slot); err != nil {
		return err
	}
	// TODO: confirm on hardware that OPP rejects initial <= max-over the same way OCP does.
	if l.InitialPower <= l.MaxOverpower {
		return validationErr(RuleInitialAboveMax, "initial power must be above max overpower")
	}
	if l.OffPower > l.MinOverpower {
		return validationErr(RuleOffBelowMin, "off power must be below other power values")
	}
	if l.MaxOverpower <= l.MinOverpower {
		return validationErr(RuleMaxAboveMin, "max overpower must be above min overpower")
	}
	if l.StepPower > l.InitialPower {
		return validationErr(RuleStepBelowInitial, "power step must be same or lower than initial power")
	}
	return nil
}

// ParseOPPList decodes a :RCL:OPP? reply
func ParseOPPList(slot int, reply string) (*OPPList, error) {
	v, err := splitFields(reply, 10, oppUnits...)
	if err != nil {
		return nil, err
	}
	return &OPPList{
		Slot:         slot,
		OnVoltage:    v[0],
		OnDelay:      v[1],
		CurrentRange: v[2],
		InitialPower: v[3],
		StepPower:    v[4],
		StepDelay:    v[5],
		OffPower:     v[6],
		OPPVoltage:   v[7],
		MaxOverpower: v[8],
		MinOverpower: v[9],
	}, nil
}

// BatteryList is a battery discharge test program (:BATT)
type BatteryList struct {
	Slot             int     `json:"slot" yaml:"slot"`
	CurrentRange     float64 `json:"current_range" yaml:"current_range"`
	DischargeCurrent float64 `json:"discharge_current" yaml:"discharge_current"`
	CutoffVoltage    float64 `json:"cutoff_voltage" yaml:"cutoff_voltage"`
	CutoffCapacity   float64 `json:"cutoff_capacity" yaml:"cutoff_capacity"`
	CutoffTime       float64 `json:"cutoff_time" yaml:"cutoff_time"`
}

// Command renders the :BATT upload line
func (l *BatteryList) Command() string {
	return fmt.Sprintf(":BATT %d,%s,%s,%s,%s,%s", l.Slot,
		FormatValue(l.CurrentRange, Ampere),
		FormatValue(l.DischargeCurrent, Ampere),
		FormatValue(l.CutoffVoltage, Volt),
		FormatValue(l.CutoffCapacity, AmpHour),
		FormatValue(l.CutoffTime, Minute),
	)
}

// Validate checks the program before upload
func (l *BatteryList) Validate() error {
	if err := ValidateProtectionSlot(l.Slot); err != nil {
		return err
	}
	if l.DischargeCurrent >= l.CurrentRange {
		return validationErr(RuleDischargeRange, "discharge current has to be lower than current range")
	}
	return nil
}

// ParseBatteryList decodes a :RCL:BATT? reply
func ParseBatteryList(slot int, reply string) (*BatteryList, error) {
	v, err := splitFields(reply, 5, batteryUnits...)
	if err != nil {
		return nil, err
	}
	return &BatteryList{
		Slot:             slot,
		CurrentRange:     v[0],
		DischargeCurrent: v[1],
		CutoffVoltage:    v[2],
		CutoffCapacity:   v[3],
		CutoffTime:       v[4],
	}, nil
}

// ValidateListSlot checks a :LIST storage slot
func ValidateListSlot(slot int) error {
	if slot < 1 || slot > MaxListSlot {
		return validationErr(RuleSlotRange, fmt.Sprintf("save-slot can only be from 1-%d", MaxListSlot))
	}
	return nil
}

// ValidateProtectionSlot checks an OCP, OPP or BATT storage slot
func ValidateProtectionSlot(slot int) error {
	if slot < 1 || slot > MaxProtectionSlot {
		return validationErr(RuleSlotRange, fmt.Sprintf("save-slot can only be from 1-%d", MaxProtectionSlot))
	}
	return nil
}
