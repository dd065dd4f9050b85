// internal/driver/korad/kel_driver.go
package korad

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"eload-service/internal/utils"
	"eload-service/pkg/driver"
	"eload-service/pkg/kel"
)

// MemoryCount is the number of front panel memories
const MemoryCount = 100

// channel is the transport handle shared by the facade and its sub-objects
type channel struct {
	transport driver.Transport
	logger    *utils.DeviceLogger
}

// Load is the command facade for a Korad KEL10x electronic load. Every
// accessor maps to one command line; it is not safe for concurrent use.
type Load struct {
	*channel

	Input    *OnOffButton
	Settings *Settings
	memories []*Memory
}

// NewLoad creates a facade over an open transport
func NewLoad(transport driver.Transport, logger *utils.DeviceLogger) *Load {
	if logger == nil {
		logger = utils.NewDeviceLogger(zap.NewNop(), "", "")
	}
	ch := &channel{transport: transport, logger: logger}

	load := &Load{
		channel:  ch,
		Input:    newOnOffButton(ch, ":INP ON", ":INP OFF", ":INP?"),
		Settings: newSettings(ch),
		memories: make([]*Memory, MemoryCount),
	}
	for i := range load.memories {
		load.memories[i] = &Memory{channel: ch, Number: i + 1}
	}
	return load
}

// Memory returns the front panel memory with the given number (1-100)
func (l *Load) Memory(number int) (*Memory, error) {
	if number < 1 || number > MemoryCount {
		return nil, &kel.ValidationError{
			Rule:    kel.RuleSlotRange,
			Message: fmt.Sprintf("memory can only be from 1-%d", MemoryCount),
		}
	}
	return l.memories[number-1], nil
}

// Trigger fires a bus trigger
func (l *Load) Trigger(ctx context.Context) error {
	return l.send(ctx, "*TRG")
}

// Identity returns the *IDN? model string
func (l *Load) Identity(ctx context.Context) (string, error) {
	reply, err := l.query(ctx, "*IDN?")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// DeviceInfo reads the network and serial configuration block
func (l *Load) DeviceInfo(ctx context.Context) (*kel.DeviceInfo, error) {
	reply, err := l.queryLines(ctx, ":SYST:DEVINFO?", kel.DeviceInfoLines)
	if err != nil {
		return nil, err
	}
	return kel.ParseDeviceInfo(reply)
}

// Status reads the status line. It returns nil without error when the
// device answers with an empty line.
func (l *Load) Status(ctx context.Context) (*kel.Status, error) {
	reply, err := l.query(ctx, ":STAT?")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply) == "" {
		return nil, nil
	}
	return kel.ParseStatus(reply)
}

// Function reads the active mode. An empty reply yields the empty Mode.
func (l *Load) Function(ctx context.Context) (kel.Mode, error) {
	reply, err := l.query(ctx, ":FUNC?")
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", nil
	}
	return kel.ParseMode(reply)
}

// SetFunction switches to one of the directly settable modes
func (l *Load) SetFunction(ctx context.Context, mode kel.Mode) error {
	if !mode.Settable() {
		return &kel.ModeError{Mode: mode.Token(), Err: kel.ErrModeNotSettable}
	}
	return l.send(ctx, ":FUNC "+mode.Token())
}

// Setpoint reads the programmed value of a quantity
func (l *Load) Setpoint(ctx context.Context, q kel.Quantity) (*float64, error) {
	verb, unit, err := lookupQuantity(q)
	if err != nil {
		return nil, err
	}
	return l.queryValue(ctx, verb+"?", unit)
}

// SetSetpoint programs a quantity after checking it against the live
// upper limit. A value equal to the limit is accepted.
func (l *Load) SetSetpoint(ctx context.Context, q kel.Quantity, value float64) error {
	verb, unit, err := lookupQuantity(q)
	if err != nil {
		return err
	}
	limit, err := l.Settings.Limit(ctx, q)
	if err != nil {
		return err
	}
	if value > limit {
		return &kel.LimitExceededError{Value: value, Limit: limit}
	}
	return l.setValue(ctx, verb, value, unit)
}

// Current reads the programmed current
func (l *Load) Current(ctx context.Context) (*float64, error) {
	return l.Setpoint(ctx, kel.QuantityCurrent)
}

// SetCurrent programs the current
func (l *Load) SetCurrent(ctx context.Context, value float64) error {
	return l.SetSetpoint(ctx, kel.QuantityCurrent, value)
}

// Voltage reads the programmed voltage
func (l *Load) Voltage(ctx context.Context) (*float64, error) {
	return l.Setpoint(ctx, kel.QuantityVoltage)
}

// SetVoltage programs the voltage
func (l *Load) SetVoltage(ctx context.Context, value float64) error {
	return l.SetSetpoint(ctx, kel.QuantityVoltage, value)
}

// Resistance reads the programmed resistance
func (l *Load) Resistance(ctx context.Context) (*float64, error) {
	return l.Setpoint(ctx, kel.QuantityResistance)
}

// SetResistance programs the resistance
func (l *Load) SetResistance(ctx context.Context, value float64) error {
	return l.SetSetpoint(ctx, kel.QuantityResistance, value)
}

// Power reads the programmed power
func (l *Load) Power(ctx context.Context) (*float64, error) {
	return l.Setpoint(ctx, kel.QuantityPower)
}

// SetPower programs the power
func (l *Load) SetPower(ctx context.Context, value float64) error {
	return l.SetSetpoint(ctx, kel.QuantityPower, value)
}

// MeasuredCurrent reads the input current
func (l *Load) MeasuredCurrent(ctx context.Context) (*float64, error) {
	return l.queryValue(ctx, ":MEAS:CURR?", kel.Ampere)
}

// MeasuredVoltage reads the input voltage
func (l *Load) MeasuredVoltage(ctx context.Context) (*float64, error) {
	return l.queryValue(ctx, ":MEAS:VOLT?", kel.Volt)
}

// MeasuredPower reads the input power
func (l *Load) MeasuredPower(ctx context.Context) (*float64, error) {
	return l.queryValue(ctx, ":MEAS:POW?", kel.Watt)
}

// Measure reads all measured quantities
func (l *Load) Measure(ctx context.Context) (*driver.Measurement, error) {
	sample := &driver.Measurement{}
	var err error

	if sample.Current, err = l.MeasuredCurrent(ctx); err != nil {
		return nil, err
	}
	if sample.Voltage, err = l.MeasuredVoltage(ctx); err != nil {
		return nil, err
	}
	if sample.Power, err = l.MeasuredPower(ctx); err != nil {
		return nil, err
	}

	sample.Timestamp = time.Now()
	return sample, nil
}

// BatteryTime reads the elapsed battery test time in minutes
func (l *Load) BatteryTime(ctx context.Context) (*float64, error) {
	return l.queryValue(ctx, ":BATT:TIM?", kel.Minute)
}

// BatteryCapacity reads the discharged capacity in amp hours
func (l *Load) BatteryCapacity(ctx context.Context) (*float64, error) {
	return l.queryValue(ctx, ":BATT:CAP?", kel.AmpHour)
}

// OnOffButton is a two-state device toggle
type OnOffButton struct {
	*channel
	onCommand  string
	offCommand string
	getCommand string
}

func newOnOffButton(ch *channel, on, off, get string) *OnOffButton {
	return &OnOffButton{channel: ch, onCommand: on, offCommand: off, getCommand: get}
}

// On switches the toggle on
func (b *OnOffButton) On(ctx context.Context) error {
	return b.send(ctx, b.onCommand)
}

// Off switches the toggle off
func (b *OnOffButton) Off(ctx context.Context) error {
	return b.send(ctx, b.offCommand)
}

// Set switches the toggle to state
func (b *OnOffButton) Set(ctx context.Context, state kel.OnOffState) error {
	if state == kel.On {
		return b.On(ctx)
	}
	return b.Off(ctx)
}

// Get reads the toggle state
func (b *OnOffButton) Get(ctx context.Context) (kel.OnOffState, error) {
	reply, err := b.query(ctx, b.getCommand)
	if err != nil {
		return kel.Off, err
	}
	return kel.ParseOnOffState(reply)
}

// Memory is a front panel memory slot
type Memory struct {
	*channel
	Number int
}

// Save stores the current settings in the memory
func (m *Memory) Save(ctx context.Context) error {
	return m.send(ctx, fmt.Sprintf("*SAV %d", m.Number))
}

// Recall loads the settings stored in the memory
func (m *Memory) Recall(ctx context.Context) error {
	return m.send(ctx, fmt.Sprintf("*RCL %d", m.Number))
}
