// internal/driver/korad/kel_helper.go
package korad

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eload-service/pkg/kel"
)

// Helper methods shared by the load facade and its sub-objects

// send writes one command line
func (c *channel) send(ctx context.Context, command string) error {
	start := time.Now()
	err := c.transport.Send(ctx, command)
	c.logger.LogCommand(command, "", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to send %q: %w", command, err)
	}
	return nil
}

// query writes a command and reads a single line reply
func (c *channel) query(ctx context.Context, command string) (string, error) {
	return c.queryLines(ctx, command, 1)
}

// queryLines writes a command and reads a reply of the given line count
func (c *channel) queryLines(ctx context.Context, command string, lines int) (string, error) {
	start := time.Now()
	if err := c.transport.Send(ctx, command); err != nil {
		c.logger.LogCommand(command, "", time.Since(start), err)
		return "", fmt.Errorf("failed to send %q: %w", command, err)
	}

	reply, err := c.transport.Receive(ctx, lines)
	c.logger.LogCommand(command, reply, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("failed to read reply to %q: %w", command, err)
	}
	return reply, nil
}

// queryValue reads a scalar; nil means the device sent an empty or
// non-numeric reply
func (c *channel) queryValue(ctx context.Context, command string, unit kel.Unit) (*float64, error) {
	reply, err := c.query(ctx, command)
	if err != nil {
		return nil, err
	}
	v, ok := kel.ParseValue(reply, unit)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// queryLimit reads an upper limit which must be numeric
func (c *channel) queryLimit(ctx context.Context, command string, unit kel.Unit) (float64, error) {
	reply, err := c.query(ctx, command)
	if err != nil {
		return 0, err
	}
	v, ok := kel.ParseValue(reply, unit)
	if !ok {
		return 0, &kel.DecodeError{Token: strings.TrimSpace(reply), Message: "malformed limit reply to " + command}
	}
	return v, nil
}

// setValue formats and sends a scalar setpoint
func (c *channel) setValue(ctx context.Context, verb string, v float64, unit kel.Unit) error {
	return c.send(ctx, verb+" "+kel.FormatValue(v, unit))
}

// quantityCommands maps a limit quantity to its verb and unit
var quantityCommands = map[kel.Quantity]struct {
	verb string
	unit kel.Unit
}{
	kel.QuantityCurrent:    {":CURR", kel.Ampere},
	kel.QuantityVoltage:    {":VOLT", kel.Volt},
	kel.QuantityResistance: {":RES", kel.Ohm},
	kel.QuantityPower:      {":POW", kel.Watt},
}

func lookupQuantity(q kel.Quantity) (string, kel.Unit, error) {
	cmd, ok := quantityCommands[q]
	if !ok {
		return "", "", fmt.Errorf("unknown quantity: %s", q)
	}
	return cmd.verb, cmd.unit, nil
}
