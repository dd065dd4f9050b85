package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalFlags are shared by every subcommand that talks to the load
type globalFlags struct {
	configPath string
	output     string
	timeout    time.Duration
	port       string
	host       string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "kelctl",
		Short: "Control a Korad KEL10x electronic load",
		Long: `kelctl sends SCPI commands to a Korad KEL102/KEL103 electronic load over
its USB serial port or its LAN interface.

The connection is taken from the same configuration file as the service
(device section). --port and --host override it for a single invocation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutput(flags.output)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file (default ./configs/config.yaml)")
	pf.StringVarP(&flags.output, "output", "o", outputYAML, "Output format: yaml|json")
	pf.DurationVar(&flags.timeout, "timeout", 5*time.Second, "Timeout for each command")
	pf.StringVar(&flags.port, "port", "", "Serial port, overrides the configured connection")
	pf.StringVar(&flags.host, "host", "", "LAN address of the load, overrides the configured connection")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log exchanges to stderr")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newPortsCmd(flags))
	rootCmd.AddCommand(newDiscoverCmd(flags))
	rootCmd.AddCommand(newIdentityCmd(flags))
	rootCmd.AddCommand(newStatusCmd(flags))
	rootCmd.AddCommand(newInfoCmd(flags))
	rootCmd.AddCommand(newMeasureCmd(flags))
	rootCmd.AddCommand(newFunctionCmd(flags))
	rootCmd.AddCommand(newSetpointCmd(flags))
	rootCmd.AddCommand(newLimitCmd(flags))
	rootCmd.AddCommand(newToggleCmd(flags))
	rootCmd.AddCommand(newMemoryCmd(flags))
	rootCmd.AddCommand(newTriggerCmd(flags))
	rootCmd.AddCommand(newProgramCmd(flags))
	rootCmd.AddCommand(newDynamicCmd(flags))
	rootCmd.AddCommand(newBatteryProgressCmd(flags))
	rootCmd.AddCommand(newNetworkCmd(flags))
	rootCmd.AddCommand(newResetCmd(flags))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kelctl version %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", commit)
		},
	}
}
