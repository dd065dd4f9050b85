package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"eload-service/internal/service"
	"eload-service/pkg/kel"
)

func parseQuantity(arg string) (kel.Quantity, error) {
	switch q := kel.Quantity(strings.ToLower(arg)); q {
	case kel.QuantityCurrent, kel.QuantityVoltage, kel.QuantityResistance, kel.QuantityPower:
		return q, nil
	}
	return "", fmt.Errorf("unknown quantity %q; must be current, voltage, resistance or power", arg)
}

func newFunctionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "function [MODE]",
		Short: "Read or select the load function (CV, CC, CR, CW, SHORt)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mode kel.Mode
			if len(args) == 1 {
				var err error
				if mode, err = kel.ParseMode(args[0]); err != nil {
					return err
				}
			}

			return withSession(flags, func(ctx context.Context, s *session) error {
				if mode != "" {
					if err := s.svc.SetFunction(ctx, mode); err != nil {
						return err
					}
				} else {
					var err error
					if mode, err = s.svc.Function(ctx); err != nil {
						return err
					}
				}
				return printResult(cmd.OutOrStdout(), flags.output, map[string]interface{}{
					"mode":    mode,
					"dynamic": mode.Dynamic(),
				})
			})
		},
	}
}

func newSetpointCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set QUANTITY [VALUE]",
		Short: "Read or program a setpoint",
		Long: `Read or program the current, voltage, resistance or power setpoint.

A new value is checked against the live upper limit of the quantity before
it is sent.`,
		Example: `  kelctl set current
  kelctl set current 1.5`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuantity(args[0])
			if err != nil {
				return err
			}

			return withSession(flags, func(ctx context.Context, s *session) error {
				if len(args) == 2 {
					value, err := strconv.ParseFloat(args[1], 64)
					if err != nil {
						return fmt.Errorf("invalid value %q: %w", args[1], err)
					}
					if err := s.svc.SetSetpoint(ctx, q, value); err != nil {
						return err
					}
				}
				value, err := s.svc.Setpoint(ctx, q)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, map[string]interface{}{"quantity": q, "value": value})
			})
		},
	}
}

func newLimitCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "limit QUANTITY [VALUE]",
		Short: "Read or change an upper limit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuantity(args[0])
			if err != nil {
				return err
			}

			return withSession(flags, func(ctx context.Context, s *session) error {
				if len(args) == 2 {
					value, err := strconv.ParseFloat(args[1], 64)
					if err != nil {
						return fmt.Errorf("invalid value %q: %w", args[1], err)
					}
					if err := s.svc.SetLimit(ctx, q, value); err != nil {
						return err
					}
				}
				limit, err := s.svc.Limit(ctx, q)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, map[string]interface{}{"quantity": q, "limit": limit})
			})
		},
	}
}

func newToggleCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle NAME [on|off]",
		Short: "Read or switch an on/off setting",
		Long: fmt.Sprintf(`Read or switch an on/off setting of the load.

Settings: %s`, strings.Join(service.Toggles, ", ")),
		Example: `  kelctl toggle input on
  kelctl toggle beep`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(args[0])
			return withSession(flags, func(ctx context.Context, s *session) error {
				if len(args) == 2 {
					state, err := kel.ParseOnOffState(args[1])
					if err != nil {
						return err
					}
					if err := s.svc.SetToggle(ctx, name, state); err != nil {
						return err
					}
				}
				state, err := s.svc.Toggle(ctx, name)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, map[string]string{"name": name, "state": state.String()})
			})
		},
	}
}

func newMemoryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Save or recall front panel memories (1-100)",
	}

	run := func(save bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid memory number %q", args[0])
			}
			return withSession(flags, func(ctx context.Context, s *session) error {
				if save {
					return s.svc.SaveMemory(ctx, number)
				}
				return s.svc.RecallMemory(ctx, number)
			})
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "save N",
		Short: "Store the current settings in memory N",
		Args:  cobra.ExactArgs(1),
		RunE:  run(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "recall N",
		Short: "Load the settings stored in memory N",
		Args:  cobra.ExactArgs(1),
		RunE:  run(false),
	})
	return cmd
}

func newTriggerCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Send a bus trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(flags, func(ctx context.Context, s *session) error {
				return s.svc.Trigger(ctx)
			})
		},
	}
}

type networkFlags struct {
	ip       string
	subnet   string
	gateway  string
	mac      string
	port     int
	baudRate int
}

func newNetworkCmd(flags *globalFlags) *cobra.Command {
	nf := &networkFlags{}

	cmd := &cobra.Command{
		Use:   "network",
		Short: "Read or change the LAN and serial settings of the load",
		Example: `  kelctl network
  kelctl network --ip 192.168.1.198 --gateway 192.168.1.1
  kelctl network --baud 9600`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			update := networkUpdateFromFlags(cmd, nf)
			return withSession(flags, func(ctx context.Context, s *session) error {
				if update != nil {
					if err := s.svc.UpdateNetwork(ctx, update); err != nil {
						return err
					}
				}
				settings, err := s.svc.NetworkSettings(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, settings)
			})
		},
	}

	cmd.Flags().StringVar(&nf.ip, "ip", "", "IP address")
	cmd.Flags().StringVar(&nf.subnet, "subnet", "", "Subnet mask")
	cmd.Flags().StringVar(&nf.gateway, "gateway", "", "Gateway address")
	cmd.Flags().StringVar(&nf.mac, "mac", "", "MAC address (aa:bb:cc:dd:ee:ff)")
	cmd.Flags().IntVar(&nf.port, "lan-port", 0, "LAN port")
	cmd.Flags().IntVar(&nf.baudRate, "baud", 0, "Serial baud rate")
	return cmd
}

// networkUpdateFromFlags returns nil when no setting flag was given
func networkUpdateFromFlags(cmd *cobra.Command, nf *networkFlags) *service.NetworkUpdate {
	update := &service.NetworkUpdate{}
	changed := false
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
			changed = true
		}
	}

	set("ip", func() { update.IPAddress = &nf.ip })
	set("subnet", func() { update.SubnetMask = &nf.subnet })
	set("gateway", func() { update.Gateway = &nf.gateway })
	set("mac", func() { update.MACAddress = &nf.mac })
	set("lan-port", func() { update.Port = &nf.port })
	set("baud", func() { update.BaudRate = &nf.baudRate })

	if !changed {
		return nil
	}
	return update
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "factory-reset",
		Short: "Restore the factory defaults of the load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("factory reset erases all settings; pass --yes to confirm")
			}
			return withSession(flags, func(ctx context.Context, s *session) error {
				return s.svc.FactoryReset(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the reset")
	return cmd
}
