package kel

import (
	"errors"
	"reflect"
	"testing"
)

func TestDynamicListCommands(t *testing.T) {
	tests := []struct {
		name string
		list DynamicList
		want string
	}{
		{
			name: "cv",
			list: &CVList{Voltage1: 5, Voltage2: 10, Frequency: 50, DutyCycle: 40},
			want: ":DYN 1,5.0000V,10.0000V,50.0000HZ,40.0000%",
		},
		{
			name: "cc",
			list: &CCList{Slope1: 0.1, Slope2: 0.2, Current1: 1, Current2: 2, Frequency: 10, DutyCycle: 50},
			want: ":DYN 2,0.1000A/uS,0.2000A/uS,1.0000A,2.0000A,10.0000HZ,50.0000%",
		},
		{
			name: "cr",
			list: &CRList{Resistance1: 10, Resistance2: 20, Frequency: 5, DutyCycle: 25},
			want: ":DYN 3,10.0000OHM,20.0000OHM,5.0000HZ,25.0000%",
		},
		{
			name: "cw",
			list: &CWList{Power1: 10, Power2: 30, Frequency: 1, DutyCycle: 75},
			want: ":DYN 4,10.0000W,30.0000W,1.0000HZ,75.0000%",
		},
		{
			name: "pulse",
			list: &PulseList{Slope1: 0.5, Slope2: 0.5, Current1: 1, Current2: 3, Duration: 2},
			want: ":DYN 5,0.5000A/uS,0.5000A/uS,1.0000A,3.0000A,2.0000S",
		},
		{
			name: "toggle",
			list: &ToggleList{Slope1: 0.5, Slope2: 0.25, Current1: 1, Current2: 3},
			want: ":DYN 6,0.5000A/uS,0.2500A/uS,1.0000A,3.0000A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.list.Command(); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDynamicListRoundTrip(t *testing.T) {
	lists := []DynamicList{
		&CVList{Voltage1: 5, Voltage2: 10, Frequency: 50, DutyCycle: 40},
		&CCList{Slope1: 0.1, Slope2: 0.2, Current1: 1, Current2: 2, Frequency: 10, DutyCycle: 50},
		&CRList{Resistance1: 10, Resistance2: 20, Frequency: 5, DutyCycle: 25},
		&CWList{Power1: 10, Power2: 30, Frequency: 1, DutyCycle: 75},
		&PulseList{Slope1: 0.5, Slope2: 0.5, Current1: 1, Current2: 3, Duration: 2},
		&ToggleList{Slope1: 0.5, Slope2: 0.25, Current1: 1, Current2: 3},
	}

	for _, orig := range lists {
		got, err := ParseDynamicList(deviceEcho(orig.Command(), false))
		if err != nil {
			t.Fatalf("ParseDynamicList(%q) error: %v", orig.Command(), err)
		}
		if !reflect.DeepEqual(got, orig) {
			t.Errorf("round trip of tag %d = %+v, want %+v", orig.Tag(), got, orig)
		}
		if got.Mode() != orig.Mode() {
			t.Errorf("Mode() = %q, want %q", got.Mode(), orig.Mode())
		}
	}
}

func TestParseDynamicListDispatch(t *testing.T) {
	got, err := ParseDynamicList("3,10.0000OHM,20.0000OHM,5.0000HZ,25.0000%")
	if err != nil {
		t.Fatalf("ParseDynamicList() error: %v", err)
	}
	cr, ok := got.(*CRList)
	if !ok {
		t.Fatalf("ParseDynamicList() = %T, want *CRList", got)
	}
	if cr.Resistance1 != 10 || cr.Resistance2 != 20 || cr.Frequency != 5 || cr.DutyCycle != 25 {
		t.Errorf("CRList = %+v", cr)
	}
	if cr.LimitQuantity() != QuantityResistance {
		t.Errorf("LimitQuantity() = %q", cr.LimitQuantity())
	}
}

func TestParseDynamicListErrors(t *testing.T) {
	_, err := ParseDynamicList("9,1,2,3,4")
	if !errors.Is(err, ErrInvalidDynamicMode) {
		t.Errorf("unknown tag error = %v, want ErrInvalidDynamicMode", err)
	}
	var modeErr *ModeError
	if !errors.As(err, &modeErr) || modeErr.Mode != "9" {
		t.Errorf("unknown tag error = %#v, want ModeError for \"9\"", err)
	}

	var decodeErr *DecodeError
	for _, reply := range []string{"", "x,1,2", "1,5V,10V,50HZ", "2,1,2,3,4,5,6,7", "1,5V,abc,50HZ,40%"} {
		if _, err := ParseDynamicList(reply); !errors.As(err, &decodeErr) {
			t.Errorf("ParseDynamicList(%q) error = %v, want DecodeError", reply, err)
		}
	}
}

func TestDynamicListValidate(t *testing.T) {
	tests := []struct {
		name    string
		list    DynamicList
		limit   float64
		wantErr bool
	}{
		{"cv within", &CVList{Voltage1: 5, Voltage2: 10, Frequency: 1, DutyCycle: 50}, 12, false},
		{"cv both above", &CVList{Voltage1: 15, Voltage2: 20, Frequency: 1, DutyCycle: 50}, 12, true},
		{"cv one above", &CVList{Voltage1: 5, Voltage2: 20, Frequency: 1, DutyCycle: 50}, 12, false},
		{"cv at limit", &CVList{Voltage1: 12, Voltage2: 12, Frequency: 1, DutyCycle: 50}, 12, false},
		{"cc duty 100", &CCList{Current1: 1, Current2: 2, Frequency: 1, DutyCycle: 100}, 30, true},
		{"cc duty 99.9", &CCList{Current1: 1, Current2: 2, Frequency: 1, DutyCycle: 99.9}, 30, false},
		{"cr both above", &CRList{Resistance1: 200, Resistance2: 300, DutyCycle: 10}, 100, true},
		{"cw duty", &CWList{Power1: 1, Power2: 2, DutyCycle: 150}, 300, true},
		{"pulse both above", &PulseList{Current1: 31, Current2: 32, Duration: 1}, 30, true},
		{"pulse ok", &PulseList{Current1: 1, Current2: 2, Duration: 1}, 30, false},
		{"toggle both above", &ToggleList{Current1: 40, Current2: 35}, 30, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.list.Validate(tt.limit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%v) error = %v, wantErr %v", tt.limit, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var limitErr *LimitExceededError
			if !errors.As(err, &limitErr) {
				t.Fatalf("Validate() error = %T, want *LimitExceededError", err)
			}
		})
	}
}

func TestDutyCycleLimitFields(t *testing.T) {
	err := (&CVList{Voltage1: 1, Voltage2: 2, DutyCycle: 120}).Validate(10)
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Validate() error = %v", err)
	}
	if limitErr.Value != 120 || limitErr.Limit != 100 {
		t.Errorf("LimitExceededError = %+v, want value 120 limit 100", limitErr)
	}
}

func TestNewDynamicList(t *testing.T) {
	for tag := 1; tag <= 6; tag++ {
		list, err := NewDynamicList(tag)
		if err != nil {
			t.Fatalf("NewDynamicList(%d) error: %v", tag, err)
		}
		if list.Tag() != tag {
			t.Errorf("NewDynamicList(%d).Tag() = %d", tag, list.Tag())
		}
	}

	for _, tag := range []int{0, 7} {
		_, err := NewDynamicList(tag)
		var modeErr *ModeError
		if !errors.As(err, &modeErr) || !errors.Is(err, ErrInvalidDynamicMode) {
			t.Errorf("NewDynamicList(%d) error = %v, want ModeError", tag, err)
		}
	}
}
