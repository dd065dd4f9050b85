package network

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"eload-service/pkg/driver"
)

func TestExpandTargets(t *testing.T) {
	tests := []struct {
		name      string
		targets   []string
		wantCount int
		wantFirst string
		wantLast  string
		wantErr   bool
	}{
		{
			name:      "single host",
			targets:   []string{"192.168.1.198"},
			wantCount: 1,
			wantFirst: "192.168.1.198",
			wantLast:  "192.168.1.198",
		},
		{
			name:      "class c prefix",
			targets:   []string{"192.168.1.0/24"},
			wantCount: 254,
			wantFirst: "192.168.1.1",
			wantLast:  "192.168.1.254",
		},
		{
			name:      "unmasked prefix",
			targets:   []string{"10.0.0.77/30"},
			wantCount: 2,
			wantFirst: "10.0.0.77",
			wantLast:  "10.0.0.78",
		},
		{
			name:      "host route",
			targets:   []string{"10.0.0.5/32"},
			wantCount: 1,
			wantFirst: "10.0.0.5",
			wantLast:  "10.0.0.5",
		},
		{
			name:      "mixed",
			targets:   []string{"10.0.0.9", "10.0.1.0/30"},
			wantCount: 3,
			wantFirst: "10.0.0.9",
			wantLast:  "10.0.1.2",
		},
		{
			name:    "too large",
			targets: []string{"10.0.0.0/16"},
			wantErr: true,
		},
		{
			name:    "garbage",
			targets: []string{"kel103.local"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hosts, err := ExpandTargets(tt.targets)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExpandTargets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(hosts) != tt.wantCount {
				t.Fatalf("got %d hosts, want %d", len(hosts), tt.wantCount)
			}
			if hosts[0] != tt.wantFirst || hosts[len(hosts)-1] != tt.wantLast {
				t.Errorf("range = %s..%s, want %s..%s", hosts[0], hosts[len(hosts)-1], tt.wantFirst, tt.wantLast)
			}
		})
	}
}

func TestScannerAvailability(t *testing.T) {
	if NewScanner(zap.NewNop(), nil).IsAvailable() {
		t.Error("scanner without targets reports available")
	}
	if !NewScanner(zap.NewNop(), &Config{Targets: []string{"10.0.0.5"}}).IsAvailable() {
		t.Error("scanner with targets reports unavailable")
	}
}

func TestDialHostUsesConfiguredPort(t *testing.T) {
	s := NewScanner(zap.NewNop(), &Config{})
	s.config.Network.Port = 18190

	link, err := s.dialHost("192.168.1.198")
	if err != nil {
		t.Fatalf("dialHost() error = %v", err)
	}
	if link.IsOpen() {
		t.Error("dialHost() returned an open link")
	}
}

// udpLoad replies to every query with identity when it is set
type udpLoad struct {
	identity string
	pending  bool
}

func (l *udpLoad) Open(ctx context.Context) error { return nil }
func (l *udpLoad) Close() error                   { return nil }
func (l *udpLoad) IsOpen() bool                   { return true }
func (l *udpLoad) Send(ctx context.Context, line string) error {
	l.pending = l.identity != ""
	return nil
}
func (l *udpLoad) Receive(ctx context.Context, lines int) (string, error) {
	if !l.pending {
		return "", errors.New("timed out waiting for reply")
	}
	l.pending = false
	return l.identity, nil
}
func (l *udpLoad) Stats() driver.LinkStats { return driver.LinkStats{} }

func TestScanKeepsTargetOrder(t *testing.T) {
	s := NewScanner(zap.NewNop(), &Config{Targets: []string{"10.0.0.0/28"}, Workers: 4})

	var mu sync.Mutex
	dialed := 0
	s.dial = func(host string) (driver.Link, error) {
		mu.Lock()
		dialed++
		mu.Unlock()
		switch host {
		case "10.0.0.3", "10.0.0.12":
			return &udpLoad{identity: "KORAD-KEL103 V3.30 SN:" + host}, nil
		}
		return &udpLoad{}, nil
	}

	loads, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if dialed != 14 {
		t.Errorf("dialed %d hosts, want 14", dialed)
	}
	if len(loads) != 2 || loads[0].Address != "10.0.0.3" || loads[1].Address != "10.0.0.12" {
		t.Errorf("loads = %+v", loads)
	}
}
