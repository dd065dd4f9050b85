package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/driver"
	"eload-service/internal/model"
	"eload-service/internal/protocol"
	"eload-service/internal/repository"
	"eload-service/internal/utils"
	pkgdriver "eload-service/pkg/driver"
	"eload-service/pkg/kel"
)

// fakeLink answers queries from a command table and records every line
type fakeLink struct {
	mu      sync.Mutex
	open    bool
	openErr error
	replies map[string]string
	sent    []string
	pending []string
}

func newFakeLink(replies map[string]string) *fakeLink {
	if replies == nil {
		replies = map[string]string{}
	}
	if _, ok := replies["*IDN?"]; !ok {
		replies["*IDN?"] = "KORAD KEL103 V3.30 SN:00000001"
	}
	return &fakeLink{replies: replies}
}

func (f *fakeLink) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeLink) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeLink) Send(ctx context.Context, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, line)
	if reply, ok := f.replies[line]; ok {
		f.pending = append(f.pending, reply)
	}
	return nil
}

func (f *fakeLink) Receive(ctx context.Context, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return "", protocol.ErrReadTimeout
	}
	reply := f.pending[0]
	f.pending = f.pending[1:]
	return reply, nil
}

func (f *fakeLink) Stats() pkgdriver.LinkStats {
	return pkgdriver.LinkStats{IsConnected: f.IsOpen()}
}

func (f *fakeLink) sentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// recordingHandler captures events delivered by the service
type recordingHandler struct {
	mu           sync.Mutex
	commands     []*pkgdriver.CommandResult
	measurements []*pkgdriver.Measurement
	linkErrors   []error
	statuses     []string
}

func (h *recordingHandler) OnCommandCompleted(result *pkgdriver.CommandResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, result)
}

func (h *recordingHandler) OnMeasurement(sample *pkgdriver.Measurement) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.measurements = append(h.measurements, sample)
}

func (h *recordingHandler) OnLinkError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.linkErrors = append(h.linkErrors, err)
}

func (h *recordingHandler) OnStatusChanged(oldStatus, newStatus string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, newStatus)
}

func (h *recordingHandler) measurementCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.measurements)
}

func testConfig() *config.Config {
	return &config.Config{
		Device: config.DeviceConfig{
			ID:                  "kel-test",
			Model:               "KEL103",
			ConnectionType:      "serial",
			Serial:              config.SerialConfig{Port: "/dev/null", BaudRate: 115200},
			OperationTimeout:    time.Second,
			MeasurementInterval: time.Hour,
		},
	}
}

func newTestService(t *testing.T, link *fakeLink) (*LoadService, repository.CommandRepository, *recordingHandler) {
	t.Helper()
	registry := driver.NewRegistry(zap.NewNop())
	driver.RegisterDefaultDrivers(registry, zap.NewNop())

	repo := repository.NewMemoryCommandRepository(100)
	svc, err := NewLoadService(testConfig(), link, registry, repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLoadService() error: %v", err)
	}
	handler := &recordingHandler{}
	svc.AddEventHandler(handler)
	return svc, repo, handler
}

func startService(t *testing.T, svc *LoadService) {
	t.Helper()
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
}

func TestStartIdentifiesLoad(t *testing.T) {
	link := newFakeLink(nil)
	svc, _, handler := newTestService(t, link)
	startService(t, svc)

	device := svc.Device()
	if !device.IsOnline() {
		t.Errorf("status = %s, want ONLINE", device.Status)
	}
	if device.Identity != "KORAD KEL103 V3.30 SN:00000001" {
		t.Errorf("identity = %q", device.Identity)
	}
	if device.ConnectionType != model.ConnectionTypeSerial || device.Address != "/dev/null" {
		t.Errorf("device = %+v", device)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.statuses) != 2 || handler.statuses[0] != "CONNECTING" || handler.statuses[1] != "ONLINE" {
		t.Errorf("status changes = %v", handler.statuses)
	}
}

func TestStartReportsOpenFailure(t *testing.T) {
	link := newFakeLink(nil)
	link.openErr = errors.New("no such port")
	svc, _, _ := newTestService(t, link)

	err := svc.Start(context.Background())
	t.Cleanup(func() { _ = svc.Stop() })
	if err == nil {
		t.Fatal("Start() should fail when the link cannot be opened")
	}
	if svc.Device().Status != model.DeviceStatusError {
		t.Errorf("status = %s, want ERROR", svc.Device().Status)
	}

	_, err = svc.Identity(context.Background())
	if !errors.Is(err, protocol.ErrNotOpen) {
		t.Errorf("Identity() error = %v, want ErrNotOpen", err)
	}
}

func TestCommandAuditRecords(t *testing.T) {
	link := newFakeLink(map[string]string{
		":CURR:UPP?": "30.0000A",
	})
	svc, repo, handler := newTestService(t, link)
	startService(t, svc)

	ctx := context.Background()
	if err := svc.SetSetpoint(ctx, kel.QuantityCurrent, 2.5); err != nil {
		t.Fatalf("SetSetpoint() error: %v", err)
	}

	var limitErr *kel.LimitExceededError
	if err := svc.SetSetpoint(ctx, kel.QuantityCurrent, 31); !errors.As(err, &limitErr) {
		t.Fatalf("SetSetpoint(31) error = %v, want LimitExceededError", err)
	}

	if _, err := svc.Status(ctx); err == nil {
		t.Fatal("Status() without a reply should fail")
	}

	records, total, err := repo.List(ctx, &model.CommandFilter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}

	want := []model.CommandStatus{model.CommandStatusTimeout, model.CommandStatusRejected, model.CommandStatusSuccess}
	for i, record := range records {
		if record.Status != want[i] {
			t.Errorf("record %d (%s) status = %s, want %s", i, record.Operation, record.Status, want[i])
		}
		if record.DeviceID != "kel-test" {
			t.Errorf("record %d device = %q", i, record.DeviceID)
		}
		if record.IsSuccess() != (want[i] == model.CommandStatusSuccess) {
			t.Errorf("record %d IsSuccess() = %t", i, record.IsSuccess())
		}
	}
	if records[1].ErrorCode == nil || *records[1].ErrorCode != "LIMIT_EXCEEDED" {
		t.Errorf("rejected record error code = %v", records[1].ErrorCode)
	}

	handler.mu.Lock()
	commands := len(handler.commands)
	linkErrors := len(handler.linkErrors)
	var succeeded []bool
	for _, result := range handler.commands {
		succeeded = append(succeeded, result.Success)
	}
	handler.mu.Unlock()
	if fmt.Sprint(succeeded) != "[true false false]" {
		t.Errorf("command results success = %v, want [true false false]", succeeded)
	}
	if commands != 3 {
		t.Errorf("command events = %d, want 3", commands)
	}
	if linkErrors != 1 {
		t.Errorf("link errors = %d, want 1 (the timeout only)", linkErrors)
	}
	if svc.Device().Status != model.DeviceStatusError {
		t.Errorf("status after timeout = %s, want ERROR", svc.Device().Status)
	}
}

func TestRequestIDIsRecorded(t *testing.T) {
	link := newFakeLink(nil)
	svc, repo, _ := newTestService(t, link)
	startService(t, svc)

	ctx := utils.WithRequestID(context.Background(), "req-42")
	if err := svc.Trigger(ctx); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}

	records, _, _ := repo.List(context.Background(), &model.CommandFilter{Operation: "trigger"})
	if len(records) != 1 || records[0].RequestID == nil || *records[0].RequestID != "req-42" {
		t.Fatalf("records = %+v", records)
	}
}

func TestToggles(t *testing.T) {
	link := newFakeLink(map[string]string{":SYST:DHCP?": "1", ":INP?": "OFF"})
	svc, _, _ := newTestService(t, link)
	startService(t, svc)
	ctx := context.Background()

	if state, err := svc.Toggle(ctx, ToggleDHCP); err != nil || state != kel.On {
		t.Errorf("Toggle(dhcp) = %v, %v", state, err)
	}
	if state, err := svc.Toggle(ctx, ToggleInput); err != nil || state != kel.Off {
		t.Errorf("Toggle(input) = %v, %v", state, err)
	}
	if err := svc.SetToggle(ctx, ToggleBeep, kel.Off); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetToggle(ctx, "fan", kel.On); !errors.Is(err, ErrUnknownSetting) {
		t.Errorf("SetToggle(fan) error = %v", err)
	}

	sent := strings.Join(link.sentLines(), "|")
	if !strings.HasSuffix(sent, ":SYST:DHCP?|:INP?|:SYST:BEEP OFF") {
		t.Errorf("sent = %s", sent)
	}
}

func TestNetworkSettings(t *testing.T) {
	link := newFakeLink(map[string]string{
		":SYST:IPAD?":  "192.168.1.198",
		":SYST:SMASK?": "255.255.255.0",
		":SYST:GATE?":  "192.168.1.1",
		":SYST:MAC?":   "70-2f-eb-48-4d-56",
		":SYST:PORT?":  "18190",
		":SYST:BAUD?":  "115200",
	})
	svc, _, _ := newTestService(t, link)
	startService(t, svc)
	ctx := context.Background()

	settings, err := svc.NetworkSettings(ctx)
	if err != nil {
		t.Fatalf("NetworkSettings() error: %v", err)
	}
	want := NetworkSettings{
		IPAddress: "192.168.1.198", SubnetMask: "255.255.255.0", Gateway: "192.168.1.1",
		MACAddress: "70-2f-eb-48-4d-56", Port: 18190, BaudRate: 115200,
	}
	if *settings != want {
		t.Errorf("NetworkSettings() = %+v", settings)
	}

	ip := "10.0.0.5"
	rate := 4800
	err = svc.UpdateNetwork(ctx, &NetworkUpdate{IPAddress: &ip, BaudRate: &rate})
	var validationErr *kel.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("UpdateNetwork() error = %v, want ValidationError", err)
	}
	sent := link.sentLines()
	if sent[len(sent)-1] != ":SYST:IPAD 10.0.0.5" {
		t.Errorf("last sent = %q", sent[len(sent)-1])
	}
}

func TestBatteryProgress(t *testing.T) {
	link := newFakeLink(map[string]string{":BATT:TIM?": "12.5000M", ":BATT:CAP?": ""})
	svc, _, _ := newTestService(t, link)
	startService(t, svc)

	progress, err := svc.BatteryProgress(context.Background())
	if err != nil {
		t.Fatalf("BatteryProgress() error: %v", err)
	}
	if progress.Minutes == nil || *progress.Minutes != 12.5 {
		t.Errorf("minutes = %v", progress.Minutes)
	}
	if progress.Capacity != nil {
		t.Errorf("capacity = %v, want nil for an empty reply", *progress.Capacity)
	}
}

func TestMeasurementLoop(t *testing.T) {
	link := newFakeLink(map[string]string{
		":MEAS:CURR?": "1.0000A",
		":MEAS:VOLT?": "12.0000V",
		":MEAS:POW?":  "12.0000W",
	})
	cfg := testConfig()
	cfg.Device.MeasurementInterval = 10 * time.Millisecond

	registry := driver.NewRegistry(zap.NewNop())
	driver.RegisterDefaultDrivers(registry, zap.NewNop())
	svc, err := NewLoadService(cfg, link, registry, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	handler := &recordingHandler{}
	svc.AddEventHandler(handler)
	startService(t, svc)

	deadline := time.Now().Add(2 * time.Second)
	for handler.measurementCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if handler.measurementCount() < 2 {
		t.Fatal("no measurements published")
	}

	handler.mu.Lock()
	sample := handler.measurements[0]
	handler.mu.Unlock()
	if sample.Voltage == nil || *sample.Voltage != 12 {
		t.Errorf("sample = %+v", sample)
	}

	if _, _, err := svc.Commands(context.Background(), &model.CommandFilter{}); !errors.Is(err, ErrAuditDisabled) {
		t.Errorf("Commands() error = %v, want ErrAuditDisabled", err)
	}
}

func TestHealth(t *testing.T) {
	link := newFakeLink(nil)
	svc, _, _ := newTestService(t, link)

	if health := svc.Health(); health.HealthScore != 0 || health.ErrorRate != nil {
		t.Errorf("offline health = %+v", health)
	}

	startService(t, svc)
	if err := svc.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	health := svc.Health()
	if health.HealthScore != 100 || health.ErrorRate == nil || *health.ErrorRate != 0 {
		t.Errorf("health = %+v", health)
	}
}

func TestCommandStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.CommandStatus
	}{
		{"success", nil, model.CommandStatusSuccess},
		{"validation", &kel.ValidationError{Rule: kel.RuleSlotRange, Message: "x"}, model.CommandStatusRejected},
		{"mode", &kel.ModeError{Mode: "CC", Err: kel.ErrNotDynamicMode}, model.CommandStatusRejected},
		{"timeout", context.DeadlineExceeded, model.CommandStatusTimeout},
		{"read timeout", protocol.ErrReadTimeout, model.CommandStatusTimeout},
		{"decode", &kel.DecodeError{Token: "x", Message: "y"}, model.CommandStatusFailed},
		{"other", errors.New("broken pipe"), model.CommandStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CommandStatus(tt.err); got != tt.want {
				t.Errorf("CommandStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsLinkFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", &kel.ValidationError{Rule: kel.RuleSlotRange, Message: "x"}, false},
		{"limit", &kel.LimitExceededError{Value: 2, Limit: 1, Message: "x"}, false},
		{"mode", &kel.ModeError{Mode: "CC", Err: kel.ErrNotDynamicMode}, false},
		{"decode", fmt.Errorf("failed to read mode: %w", &kel.DecodeError{Token: "BOGUS", Message: "y"}), false},
		{"read timeout", protocol.ErrReadTimeout, true},
		{"not open", protocol.ErrNotOpen, true},
		{"io", errors.New("broken pipe"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLinkFailure(tt.err); got != tt.want {
				t.Errorf("isLinkFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeErrorKeepsLinkOpen(t *testing.T) {
	link := newFakeLink(map[string]string{":FUNC?": "BOGUS"})

	cfg := testConfig()
	cfg.Device.HealthCheckInterval = 20 * time.Millisecond
	registry := driver.NewRegistry(zap.NewNop())
	driver.RegisterDefaultDrivers(registry, zap.NewNop())
	svc, err := NewLoadService(cfg, link, registry, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	handler := &recordingHandler{}
	svc.AddEventHandler(handler)
	startService(t, svc)

	_, err = svc.Function(context.Background())
	var decodeErr *kel.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Function() error = %v, want DecodeError", err)
	}

	// give the health loop a few ticks to react
	time.Sleep(100 * time.Millisecond)

	if status := svc.Device().Status; status != model.DeviceStatusOnline {
		t.Errorf("status = %s, want ONLINE", status)
	}
	identities := 0
	for _, line := range link.sentLines() {
		if line == "*IDN?" {
			identities++
		}
	}
	if identities != 1 {
		t.Errorf("*IDN? sent %d times, link was reopened", identities)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.linkErrors) != 0 {
		t.Errorf("link errors = %v", handler.linkErrors)
	}
}
