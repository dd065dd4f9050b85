package discovery

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"eload-service/internal/model"
	"eload-service/pkg/driver"
)

// identityLink answers *IDN? with a fixed string
type identityLink struct {
	identity string
	openErr  error
	open     bool
	pending  bool
	closed   int
}

func (l *identityLink) Open(ctx context.Context) error {
	if l.openErr != nil {
		return l.openErr
	}
	l.open = true
	return nil
}

func (l *identityLink) Close() error {
	l.open = false
	l.closed++
	return nil
}

func (l *identityLink) IsOpen() bool { return l.open }

func (l *identityLink) Send(ctx context.Context, line string) error {
	l.pending = line == "*IDN?" && l.identity != ""
	return nil
}

func (l *identityLink) Receive(ctx context.Context, lines int) (string, error) {
	if !l.pending {
		return "", errors.New("timed out waiting for reply")
	}
	l.pending = false
	return l.identity, nil
}

func (l *identityLink) Stats() driver.LinkStats { return driver.LinkStats{IsConnected: l.open} }

func TestModelFromIdentity(t *testing.T) {
	tests := []struct {
		identity string
		want     string
	}{
		{"KORAD-KEL103 V3.30 SN:12345678", "KEL103"},
		{"KORAD KEL102 V1.10 SN:00000001", "KEL102"},
		{"kel103 v3.30", "KEL103"},
		{"RND 320-KEL103 V3.30", "KEL103"},
		{"KORAD KA3005P V5.8 SN:1", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			if got := ModelFromIdentity(tt.identity); got != tt.want {
				t.Errorf("ModelFromIdentity(%q) = %q, want %q", tt.identity, got, tt.want)
			}
		})
	}
}

func TestProbeClosesLink(t *testing.T) {
	link := &identityLink{identity: "KORAD-KEL103 V3.30"}

	identity, err := Probe(context.Background(), link)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if identity != "KORAD-KEL103 V3.30" {
		t.Errorf("identity = %q", identity)
	}
	if link.closed != 1 || link.open {
		t.Errorf("link was not closed (closed=%d open=%v)", link.closed, link.open)
	}
}

func TestProbeAddresses(t *testing.T) {
	links := map[string]*identityLink{
		"/dev/ttyACM0": {identity: "KORAD-KEL103 V3.30 SN:1"},
		"/dev/ttyACM1": {identity: "KORAD KA3005P V5.8"},
		"/dev/ttyACM2": {openErr: errors.New("permission denied")},
		"/dev/ttyACM3": {},
	}
	dial := func(address string) (driver.Link, error) {
		if link, ok := links[address]; ok {
			return link, nil
		}
		return nil, errors.New("no such port")
	}

	addresses := []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyACM2", "/dev/ttyACM3", "/dev/ttyACM4"}
	found, err := ProbeAddresses(context.Background(), model.ConnectionTypeSerial, addresses, dial, zap.NewNop())
	if err != nil {
		t.Fatalf("ProbeAddresses() error = %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("found %d loads, want 1", len(found))
	}
	load := found[0]
	if load.Address != "/dev/ttyACM0" || load.Model != "KEL103" || load.ConnectionType != model.ConnectionTypeSerial {
		t.Errorf("found = %+v", load)
	}
}

func TestProbeAddressesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dialed := 0
	dial := func(address string) (driver.Link, error) {
		dialed++
		return &identityLink{identity: "KORAD-KEL103"}, nil
	}

	_, err := ProbeAddresses(ctx, model.ConnectionTypeUDP, []string{"10.0.0.1", "10.0.0.2"}, dial, zap.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if dialed != 0 {
		t.Errorf("dialed %d addresses after cancel", dialed)
	}
}

type stubScanner struct {
	scannerType string
	available   bool
	loads       []*DiscoveredLoad
	err         error
}

func (s *stubScanner) Scan(ctx context.Context) ([]*DiscoveredLoad, error) { return s.loads, s.err }
func (s *stubScanner) GetScannerType() string                             { return s.scannerType }
func (s *stubScanner) IsAvailable() bool                                  { return s.available }

func TestScannerManager(t *testing.T) {
	sm := NewScannerManager(zap.NewNop())
	sm.RegisterScanner(&stubScanner{
		scannerType: "serial",
		available:   true,
		loads:       []*DiscoveredLoad{{Address: "/dev/ttyACM0", Model: "KEL103"}},
	})
	sm.RegisterScanner(&stubScanner{
		scannerType: "network",
		available:   true,
		err:         errors.New("network unreachable"),
	})
	sm.RegisterScanner(&stubScanner{scannerType: "bluetooth"})

	loads, err := sm.ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}
	if len(loads) != 1 || loads[0].Address != "/dev/ttyACM0" {
		t.Errorf("ScanAll() = %+v", loads)
	}

	available := sm.GetAvailableScanners()
	if len(available) != 2 || available[0] != "network" || available[1] != "serial" {
		t.Errorf("GetAvailableScanners() = %v", available)
	}

	if _, err := sm.ScanByType(context.Background(), "bluetooth"); err == nil {
		t.Error("expected error for unavailable scanner")
	}
	if _, err := sm.ScanByType(context.Background(), "usb"); err == nil {
		t.Error("expected error for unknown scanner")
	}
}
