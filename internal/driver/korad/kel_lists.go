// internal/driver/korad/kel_lists.go
package korad

import (
	"context"
	"fmt"

	"eload-service/pkg/kel"
)

// Stored programs. Set* validates, uploads and by default recalls the slot
// so the program becomes active; Get* recalls the slot and reads it back.

// SetList uploads a step program
func (l *Load) SetList(ctx context.Context, list *kel.LoadList, recall bool) error {
	if err := list.Validate(); err != nil {
		return err
	}
	if err := l.send(ctx, list.Command()); err != nil {
		return err
	}
	if recall {
		return l.RecallList(ctx, list.Slot)
	}
	return nil
}

// RecallList activates a stored step program
func (l *Load) RecallList(ctx context.Context, slot int) error {
	if err := kel.ValidateListSlot(slot); err != nil {
		return err
	}
	return l.send(ctx, fmt.Sprintf(":RCL:LIST %d", slot))
}

// GetList reads back a stored step program
func (l *Load) GetList(ctx context.Context, slot int) (*kel.LoadList, error) {
	if err := l.RecallList(ctx, slot); err != nil {
		return nil, err
	}
	reply, err := l.query(ctx, ":RCL:LIST?")
	if err != nil {
		return nil, err
	}
	return kel.ParseLoadList(slot, reply)
}

// SetOCP uploads an over-current protection test
func (l *Load) SetOCP(ctx context.Context, list *kel.OCPList, recall bool) error {
	if err := list.Validate(); err != nil {
		return err
	}
	if err := l.send(ctx, list.Command()); err != nil {
		return err
	}
	if recall {
		return l.RecallOCP(ctx, list.Slot)
	}
	return nil
}

// RecallOCP activates a stored over-current protection test
func (l *Load) RecallOCP(ctx context.Context, slot int) error {
	if err := kel.ValidateProtectionSlot(slot); err != nil {
		return err
	}
	return l.send(ctx, fmt.Sprintf(":RCL:OCP %d", slot))
}

// GetOCP reads back a stored over-current protection test
func (l *Load) GetOCP(ctx context.Context, slot int) (*kel.OCPList, error) {
	if err := l.RecallOCP(ctx, slot); err != nil {
		return nil, err
	}
	reply, err := l.query(ctx, ":RCL:OCP?")
	if err != nil {
		return nil, err
	}
	return kel.ParseOCPList(slot, reply)
}

// SetOPP uploads an over-power protection test
func (l *Load) SetOPP(ctx context.Context, list *kel.OPPList, recall bool) error {
	if err := list.Validate(); err != nil {
		return err
	}
	if err := l.send(ctx, list.Command()); err != nil {
		return err
	}
	if recall {
		return l.RecallOPP(ctx, list.Slot)
	}
	return nil
}

// RecallOPP activates a stored over-power protection test
func (l *Load) RecallOPP(ctx context.Context, slot int) error {
	if err := kel.ValidateProtectionSlot(slot); err != nil {
		return err
	}
	return l.send(ctx, fmt.Sprintf(":RCL:OPP %d", slot))
}

// GetOPP reads back a stored over-power protection test
func (l *Load) GetOPP(ctx context.Context, slot int) (*kel.OPPList, error) {
	if err := l.RecallOPP(ctx, slot); err != nil {
		return nil, err
	}
	reply, err := l.query(ctx, ":RCL:OPP?")
	if err != nil {
		return nil, err
	}
	return kel.ParseOPPList(slot, reply)
}

// SetBattery uploads a battery discharge test
func (l *Load) SetBattery(ctx context.Context, list *kel.BatteryList, recall bool) error {
	if err := list.Validate(); err != nil {
		return err
	}
	if err := l.send(ctx, list.Command()); err != nil {
		return err
	}
	if recall {
		return l.RecallBattery(ctx, list.Slot)
	}
	return nil
}

// RecallBattery activates a stored battery discharge test
func (l *Load) RecallBattery(ctx context.Context, slot int) error {
	if err := kel.ValidateProtectionSlot(slot); err != nil {
		return err
	}
	return l.send(ctx, fmt.Sprintf(":RCL:BATT %d", slot))
}

// GetBattery reads back a stored battery discharge test
func (l *Load) GetBattery(ctx context.Context, slot int) (*kel.BatteryList, error) {
	if err := l.RecallBattery(ctx, slot); err != nil {
		return nil, err
	}
	reply, err := l.query(ctx, ":RCL:BATT?")
	if err != nil {
		return nil, err
	}
	return kel.ParseBatteryList(slot, reply)
}

// DynamicList reads the active dynamic program. The device has to be in one
// of the dynamic modes.
func (l *Load) DynamicList(ctx context.Context) (kel.DynamicList, error) {
	mode, err := l.Function(ctx)
	if err != nil {
		return nil, err
	}
	if !mode.Dynamic() {
		return nil, &kel.ModeError{Mode: mode.Token(), Err: kel.ErrNotDynamicMode}
	}

	reply, err := l.query(ctx, ":DYN?")
	if err != nil {
		return nil, err
	}
	return kel.ParseDynamicList(reply)
}

// SetDynamicList validates the program against the live limit of its
// quantity and uploads it
func (l *Load) SetDynamicList(ctx context.Context, list kel.DynamicList, recall bool) error {
	limit, err := l.Settings.Limit(ctx, list.LimitQuantity())
	if err != nil {
		return err
	}
	if err := list.Validate(limit); err != nil {
		return err
	}
	if err := l.send(ctx, list.Command()); err != nil {
		return err
	}
	if recall {
		_, err = l.RecallDynamicList(ctx)
	}
	return err
}

// RecallDynamicList queries :DYN? and returns the raw reply
func (l *Load) RecallDynamicList(ctx context.Context) (string, error) {
	return l.query(ctx, ":DYN?")
}
