package korad

import (
	"context"
	"errors"
	"testing"

	"eload-service/pkg/kel"
)

func TestSetListRecallsSlot(t *testing.T) {
	ctx := context.Background()
	list := &kel.LoadList{
		Slot:         2,
		CurrentRange: 5,
		Steps:        []kel.Step{{Current: 1, CurrentSlope: 0.1, Duration: 2}},
		Loops:        1,
	}

	load, ft := newTestLoad()
	if err := load.SetList(ctx, list, true); err != nil {
		t.Fatalf("SetList() error: %v", err)
	}
	assertSent(t, ft, list.Command(), ":RCL:LIST 2")

	load, ft = newTestLoad()
	if err := load.SetList(ctx, list, false); err != nil {
		t.Fatalf("SetList() error: %v", err)
	}
	assertSent(t, ft, list.Command())
}

func TestSetListValidatesBeforeSending(t *testing.T) {
	list := &kel.LoadList{Slot: 1, CurrentRange: 5, Loops: 1}
	for i := 0; i <= kel.MaxListSteps; i++ {
		list.Steps = append(list.Steps, kel.Step{Current: 1, CurrentSlope: 1, Duration: 1})
	}

	load, ft := newTestLoad()
	err := load.SetList(context.Background(), list, true)
	var validationErr *kel.ValidationError
	if !errors.As(err, &validationErr) || validationErr.Rule != kel.RuleStepCount {
		t.Fatalf("SetList() error = %v, want step count violation", err)
	}
	assertSent(t, ft)
}

func TestGetList(t *testing.T) {
	load, ft := newTestLoad("5.0000A,2,1.0000A,0.1000A/uS,2.0000S,2.0000A,0.2000A/uS,1.0000S,3")
	list, err := load.GetList(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetList() error: %v", err)
	}
	if list.Slot != 4 || len(list.Steps) != 2 || list.Loops != 3 || list.Steps[1].Current != 2 {
		t.Errorf("GetList() = %+v", list)
	}
	assertSent(t, ft, ":RCL:LIST 4", ":RCL:LIST?")
}

func TestRecallSlotRanges(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		recall func(l *Load) error
	}{
		{"list zero", func(l *Load) error { return l.RecallList(ctx, 0) }},
		{"list eight", func(l *Load) error { return l.RecallList(ctx, 8) }},
		{"ocp eleven", func(l *Load) error { return l.RecallOCP(ctx, 11) }},
		{"opp zero", func(l *Load) error { return l.RecallOPP(ctx, 0) }},
		{"battery eleven", func(l *Load) error { return l.RecallBattery(ctx, 11) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			load, ft := newTestLoad()
			var validationErr *kel.ValidationError
			if err := tt.recall(load); !errors.As(err, &validationErr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			assertSent(t, ft)
		})
	}
}

func TestOCPAndOPPRoundTrip(t *testing.T) {
	ctx := context.Background()

	ocp := &kel.OCPList{
		Slot: 1, OnVoltage: 10, OnDelay: 4, CurrentRange: 20, InitialCurrent: 15, StepCurrent: 1,
		StepDelay: 1, OffCurrent: 5, OCPVoltage: 30, MaxOvercurrent: 10.52, MinOvercurrent: 8.34,
	}
	load, ft := newTestLoad("10.0000V,4.0000S,20.0000A,15.0000A,1.0000A,1.0000S,5.0000A,30.0000V,10.5200A,8.3400A")
	if err := load.SetOCP(ctx, ocp, false); err != nil {
		t.Fatalf("SetOCP() error: %v", err)
	}
	got, err := load.GetOCP(ctx, 1)
	if err != nil {
		t.Fatalf("GetOCP() error: %v", err)
	}
	if *got != *ocp {
		t.Errorf("GetOCP() = %+v, want %+v", got, ocp)
	}
	assertSent(t, ft, ocp.Command(), ":RCL:OCP 1", ":RCL:OCP?")

	opp := &kel.OPPList{
		Slot: 10, OnVoltage: 12, OnDelay: 2, CurrentRange: 30, InitialPower: 100, StepPower: 5,
		StepDelay: 1, OffPower: 20, OPPVoltage: 10, MaxOverpower: 80, MinOverpower: 40,
	}
	load, ft = newTestLoad()
	if err := load.SetOPP(ctx, opp, true); err != nil {
		t.Fatalf("SetOPP() error: %v", err)
	}
	assertSent(t, ft, opp.Command(), ":RCL:OPP 10")
}

func TestSetOCPRejectsInvalidList(t *testing.T) {
	ocp := &kel.OCPList{
		Slot: 1, OnVoltage: 10, OnDelay: 4, CurrentRange: 20, InitialCurrent: 15, StepCurrent: 1,
		StepDelay: 1, OffCurrent: 5, OCPVoltage: 30, MaxOvercurrent: 16, MinOvercurrent: 8.34,
	}
	load, ft := newTestLoad()
	err := load.SetOCP(context.Background(), ocp, true)
	if err == nil || err.Error() != "initial current must be above max overcurrent" {
		t.Fatalf("SetOCP() error = %v", err)
	}
	assertSent(t, ft)
}

func TestBattery(t *testing.T) {
	ctx := context.Background()
	batt := &kel.BatteryList{Slot: 3, CurrentRange: 10, DischargeCurrent: 2, CutoffVoltage: 3, CutoffCapacity: 2.5, CutoffTime: 60}

	load, ft := newTestLoad("10.0000A,2.0000A,3.0000V,2.5000AH,60.0000M")
	if err := load.SetBattery(ctx, batt, true); err != nil {
		t.Fatalf("SetBattery() error: %v", err)
	}
	got, err := load.GetBattery(ctx, 3)
	if err != nil {
		t.Fatalf("GetBattery() error: %v", err)
	}
	if *got != *batt {
		t.Errorf("GetBattery() = %+v, want %+v", got, batt)
	}
	assertSent(t, ft, batt.Command(), ":RCL:BATT 3", ":RCL:BATT 3", ":RCL:BATT?")
}

func TestDynamicListRequiresDynamicMode(t *testing.T) {
	load, ft := newTestLoad("CC")
	_, err := load.DynamicList(context.Background())
	if !errors.Is(err, kel.ErrNotDynamicMode) {
		t.Fatalf("DynamicList() error = %v, want ErrNotDynamicMode", err)
	}
	var modeErr *kel.ModeError
	if !errors.As(err, &modeErr) || modeErr.Mode != "CC" {
		t.Errorf("ModeError = %+v", modeErr)
	}
	assertSent(t, ft, ":FUNC?")
}

func TestDynamicList(t *testing.T) {
	load, ft := newTestLoad("CONTINUOUS CR", "3,10.0000OHM,20.0000OHM,5.0000HZ,25.0000%")
	list, err := load.DynamicList(context.Background())
	if err != nil {
		t.Fatalf("DynamicList() error: %v", err)
	}
	if _, ok := list.(*kel.CRList); !ok {
		t.Errorf("DynamicList() = %T, want *kel.CRList", list)
	}
	assertSent(t, ft, ":FUNC?", ":DYN?")

	load, _ = newTestLoad("PULSE", "8,1,2,3")
	if _, err := load.DynamicList(context.Background()); !errors.Is(err, kel.ErrInvalidDynamicMode) {
		t.Errorf("DynamicList() error = %v, want ErrInvalidDynamicMode", err)
	}
}

func TestSetDynamicListUsesMatchingLimit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		list      kel.DynamicList
		limitCmd  string
		limit     string
		wantLimit bool
	}{
		{"cv", &kel.CVList{Voltage1: 5, Voltage2: 10, Frequency: 1, DutyCycle: 50}, ":VOLT:UPP?", "120.0000V", false},
		{"cc", &kel.CCList{Current1: 1, Current2: 2, Frequency: 1, DutyCycle: 50}, ":CURR:UPP?", "30.0000A", false},
		{"cr above", &kel.CRList{Resistance1: 200, Resistance2: 300, DutyCycle: 50}, ":RES:UPP?", "100.0000OHM", true},
		{"cw", &kel.CWList{Power1: 10, Power2: 20, DutyCycle: 50}, ":POW:UPP?", "300.0000W", false},
		{"pulse", &kel.PulseList{Current1: 1, Current2: 2, Duration: 1}, ":CURR:UPP?", "30.0000A", false},
		{"toggle above", &kel.ToggleList{Current1: 31, Current2: 32}, ":CURR:UPP?", "30.0000A", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			load, ft := newTestLoad(tt.limit, "echo")
			err := load.SetDynamicList(ctx, tt.list, true)
			if tt.wantLimit {
				var limitErr *kel.LimitExceededError
				if !errors.As(err, &limitErr) {
					t.Fatalf("SetDynamicList() error = %v, want LimitExceededError", err)
				}
				assertSent(t, ft, tt.limitCmd)
				return
			}
			if err != nil {
				t.Fatalf("SetDynamicList() error: %v", err)
			}
			assertSent(t, ft, tt.limitCmd, tt.list.Command(), ":DYN?")
		})
	}
}
