package kel

import (
	"errors"
	"math"
	"strings"
	"testing"
)

const tolerance = 1e-4

func near(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

// deviceEcho simulates what the load returns for a stored program: the
// upload line without its verb and, for slotted programs, without the slot.
func deviceEcho(command string, slotted bool) string {
	_, args, _ := strings.Cut(command, " ")
	if slotted {
		_, args, _ = strings.Cut(args, ",")
	}
	return args
}

func validLoadList(steps int) *LoadList {
	l := &LoadList{Slot: 3, CurrentRange: 10, Loops: 2}
	for i := 0; i < steps; i++ {
		l.Steps = append(l.Steps, Step{Current: float64(i%10) + 0.5, CurrentSlope: 0.25, Duration: 1.5})
	}
	return l
}

func TestLoadListCommand(t *testing.T) {
	l := &LoadList{
		Slot:         1,
		CurrentRange: 5,
		Steps: []Step{
			{Current: 1, CurrentSlope: 0.1, Duration: 2},
			{Current: 2.5, CurrentSlope: 0.2, Duration: 0.5},
		},
		Loops: 3,
	}
	want := ":LIST 1,5.0000A,2,1.0000A,0.1000A/uS,2.0000S,2.5000A,0.2000A/uS,0.5000S,3"
	if got := l.Command(); got != want {
		t.Errorf("Command() = %q, want %q", got, want)
	}
}

func TestLoadListValidate(t *testing.T) {
	tests := []struct {
		name     string
		list     *LoadList
		wantRule Rule
	}{
		{"valid", validLoadList(10), ""},
		{"max steps", validLoadList(MaxListSteps), ""},
		{"empty", validLoadList(0), ""},
		{"too many steps", validLoadList(MaxListSteps + 1), RuleStepCount},
		{"slot zero", func() *LoadList { l := validLoadList(2); l.Slot = 0; return l }(), RuleSlotRange},
		{"slot eight", func() *LoadList { l := validLoadList(2); l.Slot = 8; return l }(), RuleSlotRange},
		{"current above range", func() *LoadList {
			l := validLoadList(2)
			l.Steps[1].Current = 10.5
			return l
		}(), RuleStepCurrent},
		{"current equals range", func() *LoadList {
			l := validLoadList(2)
			l.Steps[1].Current = 10
			return l
		}(), ""},
		{"slot checked before count", func() *LoadList {
			l := validLoadList(MaxListSteps + 1)
			l.Slot = 9
			return l
		}(), RuleSlotRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.list.Validate()
			assertRule(t, err, tt.wantRule)
		})
	}
}

func TestLoadListRoundTrip(t *testing.T) {
	orig := validLoadList(12)
	got, err := ParseLoadList(orig.Slot, deviceEcho(orig.Command(), true))
	if err != nil {
		t.Fatalf("ParseLoadList() error: %v", err)
	}
	if got.Slot != orig.Slot || got.Loops != orig.Loops || !near(got.CurrentRange, orig.CurrentRange) {
		t.Fatalf("header mismatch: got %+v", got)
	}
	if len(got.Steps) != len(orig.Steps) {
		t.Fatalf("got %d steps, want %d", len(got.Steps), len(orig.Steps))
	}
	for i := range orig.Steps {
		o, g := orig.Steps[i], got.Steps[i]
		if !near(o.Current, g.Current) || !near(o.CurrentSlope, g.CurrentSlope) || !near(o.Duration, g.Duration) {
			t.Errorf("step %d = %+v, want %+v", i, g, o)
		}
	}
}

func TestParseLoadListStepCountFromFields(t *testing.T) {
	// header claims 5 steps, the body only carries one
	got, err := ParseLoadList(2, "4.0000A, 5,1.0000A,0.1000A/uS,1.0000S,7")
	if err != nil {
		t.Fatalf("ParseLoadList() error: %v", err)
	}
	if len(got.Steps) != 1 || got.Loops != 7 {
		t.Errorf("got %d steps and %d loops", len(got.Steps), got.Loops)
	}
}

func TestParseLoadListMalformed(t *testing.T) {
	for _, reply := range []string{"", "1.0A,1", "1.0A,1,1.0A,2.0A/uS,3", "1.0A,1,x,1,1,1", "1.0A,1,1,1,1,loops"} {
		_, err := ParseLoadList(1, reply)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("ParseLoadList(%q) error = %v, want DecodeError", reply, err)
		}
	}
}

func validOCPList() *OCPList {
	return &OCPList{
		Slot:           1,
		OnVoltage:      10,
		OnDelay:        4,
		CurrentRange:   20,
		InitialCurrent: 15,
		StepCurrent:    1,
		StepDelay:      1,
		OffCurrent:     5,
		OCPVoltage:     30,
		MaxOvercurrent: 10.52,
		MinOvercurrent: 8.34,
	}
}

func TestOCPListValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(l *OCPList)
		wantRule Rule
	}{
		{"valid", func(l *OCPList) {}, ""},
		{"slot", func(l *OCPList) { l.Slot = 11 }, RuleSlotRange},
		{"initial at range", func(l *OCPList) { l.InitialCurrent = 20 }, RuleInitialBelowRange},
		{"max over above initial", func(l *OCPList) { l.MaxOvercurrent = 16 }, RuleInitialAboveMax},
		{"off above min over", func(l *OCPList) { l.OffCurrent = 9 }, RuleOffBelowMin},
		{"off equals min over", func(l *OCPList) { l.OffCurrent = 8.34 }, ""},
		{"min over above max over", func(l *OCPList) { l.MinOvercurrent = 11; l.OffCurrent = 5 }, RuleMaxAboveMin},
		{"step above initial", func(l *OCPList) { l.StepCurrent = 15.5 }, RuleStepBelowInitial},
		{"step equals initial", func(l *OCPList) { l.StepCurrent = 15 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validOCPList()
			tt.mutate(l)
			assertRule(t, l.Validate(), tt.wantRule)
		})
	}
}

func TestOCPListMaxOverMessage(t *testing.T) {
	l := validOCPList()
	l.MaxOvercurrent = 16
	err := l.Validate()
	if err == nil || err.Error() != "initial current must be above max overcurrent" {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestOCPListCommandAndRoundTrip(t *testing.T) {
	l := validOCPList()
	want := ":OCP 1,10.0000V,4.0000S,20.0000A,15.0000A,1.0000A,1.0000S,5.0000A,30.0000V,10.5200A,8.3400A"
	if got := l.Command(); got != want {
		t.Fatalf("Command() = %q, want %q", got, want)
	}

	got, err := ParseOCPList(l.Slot, deviceEcho(l.Command(), true))
	if err != nil {
		t.Fatalf("ParseOCPList() error: %v", err)
	}
	if *got != *l {
		t.Errorf("round trip = %+v, want %+v", got, l)
	}
}

func validOPPList() *OPPList {
	return &OPPList{
		Slot:         4,
		OnVoltage:    12,
		OnDelay:      2,
		CurrentRange: 30,
		InitialPower: 100,
		StepPower:    5,
		StepDelay:    1,
		OffPower:     20,
		OPPVoltage:   10,
		MaxOverpower: 80,
		MinOverpower: 40,
	}
}

func TestOPPListValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(l *OPPList)
		wantRule Rule
	}{
		{"valid", func(l *OPPList) {}, ""},
		{"slot", func(l *OPPList) { l.Slot = 0 }, RuleSlotRange},
		{"initial equals max over", func(l *OPPList) { l.MaxOverpower = 100 }, RuleInitialAboveMax},
		{"off above min over", func(l *OPPList) { l.OffPower = 41 }, RuleOffBelowMin},
		{"max over equals min over", func(l *OPPList) { l.MinOverpower = 80; l.OffPower = 10 }, RuleMaxAboveMin},
		{"step above initial", func(l *OPPList) { l.StepPower = 101 }, RuleStepBelowInitial},
		{"no range rule", func(l *OPPList) { l.CurrentRange = 1 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validOPPList()
			tt.mutate(l)
			assertRule(t, l.Validate(), tt.wantRule)
		})
	}
}

func TestOPPListRoundTrip(t *testing.T) {
	l := validOPPList()
	if !strings.HasPrefix(l.Command(), ":OPP 4,12.0000V,2.0000S,30.0000A,100.0000W") {
		t.Fatalf("Command() = %q", l.Command())
	}
	got, err := ParseOPPList(l.Slot, deviceEcho(l.Command(), true))
	if err != nil {
		t.Fatalf("ParseOPPList() error: %v", err)
	}
	if *got != *l {
		t.Errorf("round trip = %+v, want %+v", got, l)
	}
}

func TestBatteryList(t *testing.T) {
	l := &BatteryList{Slot: 2, CurrentRange: 10, DischargeCurrent: 2.5, CutoffVoltage: 3.1, CutoffCapacity: 2.2, CutoffTime: 120}
	want := ":BATT 2,10.0000A,2.5000A,3.1000V,2.2000AH,120.0000M"
	if got := l.Command(); got != want {
		t.Fatalf("Command() = %q, want %q", got, want)
	}
	assertRule(t, l.Validate(), "")

	got, err := ParseBatteryList(l.Slot, deviceEcho(l.Command(), true))
	if err != nil {
		t.Fatalf("ParseBatteryList() error: %v", err)
	}
	if *got != *l {
		t.Errorf("round trip = %+v, want %+v", got, l)
	}

	l.DischargeCurrent = 10
	assertRule(t, l.Validate(), RuleDischargeRange)
	l.Slot = 11
	assertRule(t, l.Validate(), RuleSlotRange)
}

func TestParseProtectionListFieldCount(t *testing.T) {
	if _, err := ParseOCPList(1, "1V,2S,3A"); err == nil {
		t.Error("ParseOCPList() should reject a short reply")
	}
	if _, err := ParseBatteryList(1, "1A,2A,3V,4AH,5M,6"); err == nil {
		t.Error("ParseBatteryList() should reject a long reply")
	}
}

func assertRule(t *testing.T, err error, want Rule) {
	t.Helper()
	if want == "" {
		if err != nil {
			t.Fatalf("Validate() unexpected error: %v", err)
		}
		return
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Validate() error = %v, want ValidationError %s", err, want)
	}
	if validationErr.Rule != want {
		t.Errorf("Validate() rule = %s, want %s", validationErr.Rule, want)
	}
}
