// internal/service/load_operations.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eload-service/internal/driver/korad"
	"eload-service/internal/model"
	"eload-service/internal/repository"
	"eload-service/internal/utils"
	pkgdriver "eload-service/pkg/driver"
	"eload-service/pkg/kel"
)

// Toggle names accepted by Toggle and SetToggle
const (
	ToggleInput        = "input"
	ToggleBeep         = "beep"
	ToggleLock         = "lock"
	ToggleDHCP         = "dhcp"
	ToggleTrigger      = "trigger"
	ToggleCompensation = "compensation"
)

// Toggles lists every toggle name
var Toggles = []string{ToggleInput, ToggleBeep, ToggleLock, ToggleDHCP, ToggleTrigger, ToggleCompensation}

// BatteryProgress is the state of a running battery test
type BatteryProgress struct {
	Minutes  *float64 `json:"minutes" yaml:"minutes"`
	Capacity *float64 `json:"capacity_ah" yaml:"capacity_ah"`
}

// NetworkSettings is the network and serial configuration of the load
type NetworkSettings struct {
	IPAddress  string `json:"ip_address" yaml:"ip_address"`
	SubnetMask string `json:"subnet_mask" yaml:"subnet_mask"`
	Gateway    string `json:"gateway" yaml:"gateway"`
	MACAddress string `json:"mac_address" yaml:"mac_address"`
	Port       int    `json:"port" yaml:"port"`
	BaudRate   int    `json:"baud_rate" yaml:"baud_rate"`
}

// NetworkUpdate changes the fields that are set, in the order they are listed
type NetworkUpdate struct {
	IPAddress  *string `json:"ip_address,omitempty"`
	SubnetMask *string `json:"subnet_mask,omitempty"`
	Gateway    *string `json:"gateway,omitempty"`
	MACAddress *string `json:"mac_address,omitempty"`
	Port       *int    `json:"port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
}

func (u *NetworkUpdate) params() model.JSONObject {
	params := model.JSONObject{}
	if u.IPAddress != nil {
		params["ip_address"] = *u.IPAddress
	}
	if u.SubnetMask != nil {
		params["subnet_mask"] = *u.SubnetMask
	}
	if u.Gateway != nil {
		params["gateway"] = *u.Gateway
	}
	if u.MACAddress != nil {
		params["mac_address"] = *u.MACAddress
	}
	if u.Port != nil {
		params["port"] = *u.Port
	}
	if u.BaudRate != nil {
		params["baud_rate"] = *u.BaudRate
	}
	return params
}

// Identity returns the *IDN? string
func (s *LoadService) Identity(ctx context.Context) (string, error) {
	var identity string
	err := s.do(ctx, "identity", nil, func(ctx context.Context, load *korad.Load) (err error) {
		identity, err = load.Identity(ctx)
		return err
	})
	return identity, err
}

// DeviceInfo returns the decoded :SYST:DEVINFO? block
func (s *LoadService) DeviceInfo(ctx context.Context) (*kel.DeviceInfo, error) {
	var info *kel.DeviceInfo
	err := s.do(ctx, "device_info", nil, func(ctx context.Context, load *korad.Load) (err error) {
		info, err = load.DeviceInfo(ctx)
		return err
	})
	return info, err
}

// Status returns the decoded status line, or nil when the load sent nothing
func (s *LoadService) Status(ctx context.Context) (*kel.Status, error) {
	var status *kel.Status
	err := s.do(ctx, "status", nil, func(ctx context.Context, load *korad.Load) (err error) {
		status, err = load.Status(ctx)
		return err
	})
	return status, err
}

// Function returns the active mode
func (s *LoadService) Function(ctx context.Context) (kel.Mode, error) {
	var mode kel.Mode
	err := s.do(ctx, "function", nil, func(ctx context.Context, load *korad.Load) (err error) {
		mode, err = load.Function(ctx)
		return err
	})
	return mode, err
}

// SetFunction switches the load to a settable mode
func (s *LoadService) SetFunction(ctx context.Context, mode kel.Mode) error {
	return s.do(ctx, "set_function", model.JSONObject{"mode": string(mode)}, func(ctx context.Context, load *korad.Load) error {
		return load.SetFunction(ctx, mode)
	})
}

// Setpoint returns the programmed value of a quantity
func (s *LoadService) Setpoint(ctx context.Context, q kel.Quantity) (*float64, error) {
	var value *float64
	err := s.do(ctx, "setpoint", model.JSONObject{"quantity": string(q)}, func(ctx context.Context, load *korad.Load) (err error) {
		value, err = load.Setpoint(ctx, q)
		return err
	})
	return value, err
}

// SetSetpoint programs a quantity within its live limit
func (s *LoadService) SetSetpoint(ctx context.Context, q kel.Quantity, value float64) error {
	params := model.JSONObject{"quantity": string(q), "value": value}
	return s.do(ctx, "set_setpoint", params, func(ctx context.Context, load *korad.Load) error {
		return load.SetSetpoint(ctx, q, value)
	})
}

// Limit returns the upper limit of a quantity
func (s *LoadService) Limit(ctx context.Context, q kel.Quantity) (float64, error) {
	var limit float64
	err := s.do(ctx, "limit", model.JSONObject{"quantity": string(q)}, func(ctx context.Context, load *korad.Load) (err error) {
		limit, err = load.Settings.Limit(ctx, q)
		return err
	})
	return limit, err
}

// SetLimit changes the upper limit of a quantity
func (s *LoadService) SetLimit(ctx context.Context, q kel.Quantity, value float64) error {
	params := model.JSONObject{"quantity": string(q), "value": value}
	err := s.do(ctx, "set_limit", params, func(ctx context.Context, load *korad.Load) error {
		return load.Settings.SetLimit(ctx, q, value)
	})
	if err == nil {
		s.auditSetting(ctx, string(q)+"_limit", value)
	}
	return err
}

// Measure reads current, voltage and power
func (s *LoadService) Measure(ctx context.Context) (*pkgdriver.Measurement, error) {
	var sample *pkgdriver.Measurement
	err := s.do(ctx, "measure", nil, func(ctx context.Context, load *korad.Load) (err error) {
		sample, err = load.Measure(ctx)
		return err
	})
	return sample, err
}

// Trigger fires a bus trigger
func (s *LoadService) Trigger(ctx context.Context) error {
	return s.do(ctx, "trigger", nil, func(ctx context.Context, load *korad.Load) error {
		return load.Trigger(ctx)
	})
}

// SaveMemory stores the current settings in a front panel memory
func (s *LoadService) SaveMemory(ctx context.Context, number int) error {
	return s.do(ctx, "save_memory", model.JSONObject{"memory": number}, func(ctx context.Context, load *korad.Load) error {
		memory, err := load.Memory(number)
		if err != nil {
			return err
		}
		return memory.Save(ctx)
	})
}

// RecallMemory loads the settings of a front panel memory
func (s *LoadService) RecallMemory(ctx context.Context, number int) error {
	return s.do(ctx, "recall_memory", model.JSONObject{"memory": number}, func(ctx context.Context, load *korad.Load) error {
		memory, err := load.Memory(number)
		if err != nil {
			return err
		}
		return memory.Recall(ctx)
	})
}

// Toggle reads one of the on/off settings by name
func (s *LoadService) Toggle(ctx context.Context, name string) (kel.OnOffState, error) {
	button, ok := s.button(name)
	if !ok {
		return kel.Off, fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}

	var state kel.OnOffState
	err := s.do(ctx, "get_"+name, nil, func(ctx context.Context, load *korad.Load) (err error) {
		state, err = button.Get(ctx)
		return err
	})
	return state, err
}

// SetToggle switches one of the on/off settings by name
func (s *LoadService) SetToggle(ctx context.Context, name string, state kel.OnOffState) error {
	button, ok := s.button(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}

	err := s.do(ctx, "set_"+name, model.JSONObject{"state": state.String()}, func(ctx context.Context, load *korad.Load) error {
		return button.Set(ctx, state)
	})
	if err == nil && name != ToggleInput {
		s.auditSetting(ctx, name, state.String())
	}
	return err
}

func (s *LoadService) button(name string) (*korad.OnOffButton, bool) {
	switch name {
	case ToggleInput:
		return s.load.Input, true
	case ToggleBeep:
		return s.load.Settings.Beep, true
	case ToggleLock:
		return s.load.Settings.Lock, true
	case ToggleDHCP:
		return s.load.Settings.DHCP, true
	case ToggleTrigger:
		return s.load.Settings.Trigger, true
	case ToggleCompensation:
		return s.load.Settings.Compensation, true
	}
	return nil, false
}

// SetList uploads a step program and optionally recalls its slot
func (s *LoadService) SetList(ctx context.Context, list *kel.LoadList, recall bool) error {
	params := model.JSONObject{"slot": list.Slot, "steps": len(list.Steps), "loops": list.Loops, "recall": recall}
	err := s.do(ctx, "set_list", params, func(ctx context.Context, load *korad.Load) error {
		return load.SetList(ctx, list, recall)
	})
	if err == nil {
		s.auditUpload(ctx, "list", list.Slot)
	}
	return err
}

// GetList recalls and reads a step program
func (s *LoadService) GetList(ctx context.Context, slot int) (*kel.LoadList, error) {
	var list *kel.LoadList
	err := s.do(ctx, "get_list", model.JSONObject{"slot": slot}, func(ctx context.Context, load *korad.Load) (err error) {
		list, err = load.GetList(ctx, slot)
		return err
	})
	return list, err
}

// SetOCP uploads an over-current test program
func (s *LoadService) SetOCP(ctx context.Context, list *kel.OCPList, recall bool) error {
	err := s.do(ctx, "set_ocp", model.JSONObject{"slot": list.Slot, "recall": recall}, func(ctx context.Context, load *korad.Load) error {
		return load.SetOCP(ctx, list, recall)
	})
	if err == nil {
		s.auditUpload(ctx, "ocp", list.Slot)
	}
	return err
}

// GetOCP recalls and reads an over-current test program
func (s *LoadService) GetOCP(ctx context.Context, slot int) (*kel.OCPList, error) {
	var list *kel.OCPList
	err := s.do(ctx, "get_ocp", model.JSONObject{"slot": slot}, func(ctx context.Context, load *korad.Load) (err error) {
		list, err = load.GetOCP(ctx, slot)
		return err
	})
	return list, err
}

// SetOPP uploads an over-power test program
func (s *LoadService) SetOPP(ctx context.Context, list *kel.OPPList, recall bool) error {
	err := s.do(ctx, "set_opp", model.JSONObject{"slot": list.Slot, "recall": recall}, func(ctx context.Context, load *korad.Load) error {
		return load.SetOPP(ctx, list, recall)
	})
	if err == nil {
		s.auditUpload(ctx, "opp", list.Slot)
	}
	return err
}

// GetOPP recalls and reads an over-power test program
func (s *LoadService) GetOPP(ctx context.Context, slot int) (*kel.OPPList, error) {
	var list *kel.OPPList
	err := s.do(ctx, "get_opp", model.JSONObject{"slot": slot}, func(ctx context.Context, load *korad.Load) (err error) {
		list, err = load.GetOPP(ctx, slot)
		return err
	})
	return list, err
}

// SetBattery uploads a battery test program
func (s *LoadService) SetBattery(ctx context.Context, list *kel.BatteryList, recall bool) error {
	err := s.do(ctx, "set_battery", model.JSONObject{"slot": list.Slot, "recall": recall}, func(ctx context.Context, load *korad.Load) error {
		return load.SetBattery(ctx, list, recall)
	})
	if err == nil {
		s.auditUpload(ctx, "battery", list.Slot)
	}
	return err
}

// GetBattery recalls and reads a battery test program
func (s *LoadService) GetBattery(ctx context.Context, slot int) (*kel.BatteryList, error) {
	var list *kel.BatteryList
	err := s.do(ctx, "get_battery", model.JSONObject{"slot": slot}, func(ctx context.Context, load *korad.Load) (err error) {
		list, err = load.GetBattery(ctx, slot)
		return err
	})
	return list, err
}

// BatteryProgress reads elapsed time and discharged capacity
func (s *LoadService) BatteryProgress(ctx context.Context) (*BatteryProgress, error) {
	progress := &BatteryProgress{}
	err := s.do(ctx, "battery_progress", nil, func(ctx context.Context, load *korad.Load) (err error) {
		if progress.Minutes, err = load.BatteryTime(ctx); err != nil {
			return err
		}
		progress.Capacity, err = load.BatteryCapacity(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// DynamicList reads the active dynamic program
func (s *LoadService) DynamicList(ctx context.Context) (kel.DynamicList, error) {
	var list kel.DynamicList
	err := s.do(ctx, "get_dynamic", nil, func(ctx context.Context, load *korad.Load) (err error) {
		list, err = load.DynamicList(ctx)
		return err
	})
	return list, err
}

// SetDynamicList uploads a dynamic program checked against the live limit
func (s *LoadService) SetDynamicList(ctx context.Context, list kel.DynamicList, recall bool) error {
	params := model.JSONObject{"tag": list.Tag(), "mode": string(list.Mode()), "recall": recall}
	err := s.do(ctx, "set_dynamic", params, func(ctx context.Context, load *korad.Load) error {
		return load.SetDynamicList(ctx, list, recall)
	})
	if err == nil {
		s.auditUpload(ctx, "dynamic", list.Tag())
	}
	return err
}

// NetworkSettings reads the network and serial settings one by one
func (s *LoadService) NetworkSettings(ctx context.Context) (*NetworkSettings, error) {
	settings := &NetworkSettings{}
	err := s.do(ctx, "get_network", nil, func(ctx context.Context, load *korad.Load) (err error) {
		if settings.IPAddress, err = load.Settings.IPAddress(ctx); err != nil {
			return err
		}
		if settings.SubnetMask, err = load.Settings.SubnetMask(ctx); err != nil {
			return err
		}
		if settings.Gateway, err = load.Settings.Gateway(ctx); err != nil {
			return err
		}
		if settings.MACAddress, err = load.Settings.MACAddress(ctx); err != nil {
			return err
		}
		if settings.Port, err = load.Settings.Port(ctx); err != nil {
			return err
		}
		rate, err := load.Settings.BaudRate(ctx)
		if err != nil {
			return err
		}
		settings.BaudRate = rate.Rate()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// UpdateNetwork writes the fields set in update. Changes already sent stay
// applied when a later field fails.
func (s *LoadService) UpdateNetwork(ctx context.Context, update *NetworkUpdate) error {
	params := update.params()
	err := s.do(ctx, "set_network", params, func(ctx context.Context, load *korad.Load) error {
		settings := load.Settings
		if update.IPAddress != nil {
			if err := settings.SetIPAddress(ctx, *update.IPAddress); err != nil {
				return err
			}
		}
		if update.SubnetMask != nil {
			if err := settings.SetSubnetMask(ctx, *update.SubnetMask); err != nil {
				return err
			}
		}
		if update.Gateway != nil {
			if err := settings.SetGateway(ctx, *update.Gateway); err != nil {
				return err
			}
		}
		if update.MACAddress != nil {
			if err := settings.SetMACAddress(ctx, *update.MACAddress); err != nil {
				return err
			}
		}
		if update.Port != nil {
			if err := settings.SetPort(ctx, *update.Port); err != nil {
				return err
			}
		}
		if update.BaudRate != nil {
			rate, err := kel.BaudRateFromRate(*update.BaudRate)
			if err != nil {
				return &kel.ValidationError{Rule: kel.RuleBaudRate, Message: fmt.Sprintf("unsupported baud rate: %d", *update.BaudRate)}
			}
			if err := settings.SetBaudRate(ctx, rate); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		s.auditSetting(ctx, "network", map[string]interface{}(params))
	}
	return err
}

// FactoryReset restores the factory defaults
func (s *LoadService) FactoryReset(ctx context.Context) error {
	err := s.do(ctx, "factory_reset", nil, func(ctx context.Context, load *korad.Load) error {
		return load.Settings.FactoryReset(ctx)
	})
	if err == nil {
		s.auditSetting(ctx, "factory_reset", true)
	}
	return err
}

// Commands lists audit records
func (s *LoadService) Commands(ctx context.Context, filter *model.CommandFilter) ([]*model.CommandRecord, int, error) {
	if s.commandRepo == nil {
		return nil, 0, ErrAuditDisabled
	}
	records, total, err := s.commandRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list commands: %w", err)
	}
	return records, total, nil
}

// Command returns one audit record
func (s *LoadService) Command(ctx context.Context, id uuid.UUID) (*model.CommandRecord, error) {
	if s.commandRepo == nil {
		return nil, ErrAuditDisabled
	}
	return s.commandRepo.GetByID(ctx, id)
}

// CommandStats summarizes the audit log since the given time
func (s *LoadService) CommandStats(ctx context.Context, since *time.Time) (*repository.CommandStats, error) {
	if s.commandRepo == nil {
		return nil, ErrAuditDisabled
	}
	stats, err := s.commandRepo.GetStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get command stats: %w", err)
	}
	return stats, nil
}

func (s *LoadService) auditSetting(ctx context.Context, setting string, value interface{}) {
	s.auditLogger.LogSettingChange(s.cfg.Device.ID, setting, value, utils.RequestIDFromContext(ctx))
}

func (s *LoadService) auditUpload(ctx context.Context, kind string, slot int) {
	s.auditLogger.LogProgramUpload(s.cfg.Device.ID, kind, slot, utils.RequestIDFromContext(ctx))
}
