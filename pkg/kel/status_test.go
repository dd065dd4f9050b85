package kel

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Status
		wantErr bool
	}{
		{
			name: "five fields",
			line: "1,4,0,1,0",
			want: Status{Raw: "1,4,0,1,0", Beep: On, BaudRate: Baud115200, Lock: Off, Trigger: On, Comm: Off},
		},
		{
			name: "sixth field ignored",
			line: "0,0,1,0,1,7\n",
			want: Status{Raw: "0,0,1,0,1,7", Beep: Off, BaudRate: Baud9600, Lock: On, Trigger: Off, Comm: On},
		},
		{name: "too short", line: "1,4,0", wantErr: true},
		{name: "bad baud index", line: "1,9,0,1,0", wantErr: true},
		{name: "bad on off", line: "2,4,0,1,0", wantErr: true},
		{name: "not numeric", line: "a,4,0,1,0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.line)
			if tt.wantErr {
				var decodeErr *DecodeError
				if !errors.As(err, &decodeErr) {
					t.Fatalf("ParseStatus(%q) error = %v, want DecodeError", tt.line, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus(%q) error: %v", tt.line, err)
			}
			if *got != tt.want {
				t.Errorf("ParseStatus(%q) = %+v, want %+v", tt.line, *got, tt.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	s, err := ParseStatus("1,4,0,1,0")
	if err != nil {
		t.Fatal(err)
	}
	want := "Beep: on, Lock: off, Baudrate: 115200, Trigger: on, Comm: off"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseDeviceInfo(t *testing.T) {
	reply := "DHCP:0\nIP:192.168.1.198\nNETMASK:255.255.255.0\nGateWay:192.168.1.1\nMAC:70-2f-eb-48-4d-56\nPORT:18190\nBAUDRATE:115200"

	info, err := ParseDeviceInfo(reply)
	if err != nil {
		t.Fatalf("ParseDeviceInfo() error: %v", err)
	}

	if info.DHCP {
		t.Error("DHCP = true, want false")
	}
	if info.IP != "192.168.1.198" || info.Netmask != "255.255.255.0" || info.Gateway != "192.168.1.1" {
		t.Errorf("addresses = %s %s %s", info.IP, info.Netmask, info.Gateway)
	}
	if info.MAC != "70-2f-eb-48-4d-56" {
		t.Errorf("MAC = %q", info.MAC)
	}
	if info.Port != 18190 || info.BaudRate != Baud115200 {
		t.Errorf("Port = %d, BaudRate = %v", info.Port, info.BaudRate)
	}
}

func TestParseDeviceInfoErrors(t *testing.T) {
	for _, reply := range []string{"", "garbage", "PORT:abc", "BAUDRATE:1234", "DHCP:5"} {
		if _, err := ParseDeviceInfo(reply); err == nil {
			t.Errorf("ParseDeviceInfo(%q) should fail", reply)
		}
	}
}
