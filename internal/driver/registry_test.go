package driver

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"eload-service/internal/driver/korad"
	"eload-service/internal/utils"
	"eload-service/pkg/driver"
)

type nopTransport struct{}

func (nopTransport) Send(ctx context.Context, line string) error { return nil }
func (nopTransport) Receive(ctx context.Context, lines int) (string, error) {
	return "KORAD KEL103 V3.30 SN:00000000", nil
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	calls := 0
	registry.Register("kel103", func(tr driver.Transport, logger *utils.DeviceLogger) *korad.Load {
		calls++
		return korad.NewLoad(tr, logger)
	})

	if !registry.IsSupported(" KEL103") {
		t.Error("IsSupported(KEL103) = false")
	}
	if registry.IsSupported("KEL102") {
		t.Error("IsSupported(KEL102) = true without a wildcard")
	}
	if _, err := registry.CreateLoad("KEL102", nopTransport{}, nil); err == nil {
		t.Error("CreateLoad(KEL102) should fail without a wildcard")
	}

	load, err := registry.CreateLoad("KEL103", nopTransport{}, nil)
	if err != nil || load == nil || calls != 1 {
		t.Fatalf("CreateLoad() = %v, %v (calls %d)", load, err, calls)
	}
	id, err := load.Identity(context.Background())
	if err != nil || id == "" {
		t.Errorf("Identity() = %q, %v", id, err)
	}
}

func TestDefaultDrivers(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	RegisterDefaultDrivers(registry, zap.NewNop())

	for _, model := range []string{"KEL103", "KEL102", "KEL203"} {
		if !registry.IsSupported(model) {
			t.Errorf("IsSupported(%s) = false", model)
		}
	}
	models := registry.ListModels()
	want := []string{"*", "KEL102", "KEL103"}
	if len(models) != len(want) {
		t.Fatalf("ListModels() = %v", models)
	}
	for i := range want {
		if models[i] != want[i] {
			t.Errorf("ListModels()[%d] = %q, want %q", i, models[i], want[i])
		}
	}
}
