package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"eload-service/internal/config"
	"eload-service/internal/discovery"
	"eload-service/internal/discovery/network"
	"eload-service/internal/discovery/serial"
	"eload-service/internal/protocol"
	"eload-service/internal/utils"
)

func newPortsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports the load may be attached to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := protocol.ListPorts()
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), flags.output, map[string]interface{}{"ports": ports})
		},
	}
}

func newDiscoverCmd(flags *globalFlags) *cobra.Command {
	var (
		targets  []string
		patterns []string
		noSerial bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Probe serial ports and LAN addresses for KEL loads",
		Long: `Probe serial ports and LAN addresses for KEL loads.

Every matching serial port is opened with the configured line settings and
asked for *IDN?. LAN targets are probed over UDP when given with --target.`,
		Example: `  kelctl discover
  kelctl discover --no-serial --target 192.168.1.0/24`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			logger := zap.NewNop()
			if flags.verbose {
				cfg.Logging.Output = "stderr"
				cfg.Logging.Format = "console"
				cfg.Logging.Level = "debug"
				if logger, err = utils.NewLogger(&cfg.Logging); err != nil {
					return err
				}
			}

			sm := discovery.NewScannerManager(logger)
			if !noSerial {
				if len(patterns) == 0 {
					patterns = serial.DefaultPortPatterns()
				}
				serialCfg := &serial.Config{Serial: cfg.Device.Serial, PortPatterns: patterns}
				if serialCfg.Serial.Timeout == 0 || serialCfg.Serial.Timeout > flags.timeout {
					serialCfg.Serial.Timeout = flags.timeout
				}
				sm.RegisterScanner(serial.NewScanner(logger, serialCfg))
			}
			if len(targets) > 0 {
				networkCfg := &network.Config{Targets: targets, Network: cfg.Device.Network}
				if networkCfg.Network.Timeout == 0 || networkCfg.Network.Timeout > flags.timeout {
					networkCfg.Network.Timeout = flags.timeout
				}
				sm.RegisterScanner(network.NewScanner(logger, networkCfg))
			}

			loads, err := sm.ScanAll(cmd.Context())
			if err != nil {
				return err
			}
			if loads == nil {
				loads = []*discovery.DiscoveredLoad{}
			}
			return printResult(cmd.OutOrStdout(), flags.output, map[string]interface{}{"loads": loads})
		},
	}

	cmd.Flags().StringSliceVar(&targets, "target", nil, "LAN address or CIDR prefix to probe (repeatable)")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "Serial port name pattern, e.g. ttyACM*")
	cmd.Flags().BoolVar(&noSerial, "no-serial", false, "Skip the serial ports")
	return cmd
}

func newIdentityCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the *IDN? string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(flags, func(ctx context.Context, s *session) error {
				identity, err := s.svc.Identity(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, map[string]string{"identity": identity})
			})
		},
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the decoded status line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(flags, func(ctx context.Context, s *session) error {
				status, err := s.svc.Status(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, status)
			})
		},
	}
}

func newInfoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the device information block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(flags, func(ctx context.Context, s *session) error {
				info, err := s.svc.DeviceInfo(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, info)
			})
		},
	}
}

func newMeasureCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "measure",
		Short: "Read the measured current, voltage and power",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(flags, func(ctx context.Context, s *session) error {
				sample, err := s.svc.Measure(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, sample)
			})
		},
	}
}

func newBatteryProgressCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "battery-progress",
		Short: "Read elapsed time and discharged capacity of a battery test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(flags, func(ctx context.Context, s *session) error {
				progress, err := s.svc.BatteryProgress(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, progress)
			})
		},
	}
}
