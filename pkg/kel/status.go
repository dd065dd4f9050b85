// pkg/kel/status.go
package kel

import (
	"fmt"
	"strconv"
	"strings"
)

const statusFields = 5

// Status is the decoded :STAT? line
type Status struct {
	Raw      string     `json:"raw" yaml:"raw"`
	Beep     OnOffState `json:"beep" yaml:"beep"`
	BaudRate BaudRate   `json:"baud_rate" yaml:"baud_rate"`
	Lock     OnOffState `json:"lock" yaml:"lock"`
	Trigger  OnOffState `json:"trigger" yaml:"trigger"`
	Comm     OnOffState `json:"comm" yaml:"comm"`
}

// ParseStatus decodes beep,baud-index,lock,trigger,comm. The device sends a
// sixth field which is not documented and is ignored.
func ParseStatus(line string) (*Status, error) {
	raw := strings.TrimSpace(line)
	parts := strings.Split(raw, ",")
	if len(parts) < statusFields {
		return nil, decodeErr(raw, fmt.Sprintf("status needs %d fields, got %d", statusFields, len(parts)))
	}

	values := make([]int, statusFields)
	for i := 0; i < statusFields; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return nil, decodeErr(parts[i], "malformed status field")
		}
		values[i] = v
	}

	status := &Status{Raw: raw}
	var err error
	if status.Beep, err = onOffFromInt(values[0]); err != nil {
		return nil, err
	}
	if status.BaudRate, err = BaudRateFromIndex(values[1]); err != nil {
		return nil, err
	}
	if status.Lock, err = onOffFromInt(values[2]); err != nil {
		return nil, err
	}
	if status.Trigger, err = onOffFromInt(values[3]); err != nil {
		return nil, err
	}
	if status.Comm, err = onOffFromInt(values[4]); err != nil {
		return nil, err
	}
	return status, nil
}

func (s *Status) String() string {
	return fmt.Sprintf("Beep: %s, Lock: %s, Baudrate: %d, Trigger: %s, Comm: %s",
		s.Beep, s.Lock, s.BaudRate.Rate(), s.Trigger, s.Comm)
}

func onOffFromInt(v int) (OnOffState, error) {
	switch v {
	case 0:
		return Off, nil
	case 1:
		return On, nil
	}
	return Off, decodeErr(strconv.Itoa(v), "unknown on/off value")
}
