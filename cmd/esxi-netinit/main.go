// esxi-netinit configures ESXi host networking from an OpenStack config
// drive on first boot.
//
// Usage:
//
//	esxi-netinit run [CONFIG_DIR] [--dry-run]   Configure the host
//	esxi-netinit plan [CONFIG_DIR]              Print the actions a run would take
//	esxi-netinit show [CONFIG_DIR]              Print the parsed network model
//	esxi-netinit nics                           List the host's physical NICs
//	esxi-netinit report --report FILE           Print the last run's report
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/glennswest/esxi-netinit/pkg/config"
)

var version = "dev"

var (
	configPath string
	logLevel   string

	cfg config.Config
	log *zap.SugaredLogger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "esxi-netinit",
	Short:             "Configure ESXi networking from OpenStack network_data.json",
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `esxi-netinit reads network_data.json and meta_data.json from the
OpenStack config drive and configures vSwitches, portgroups, VMkernel
interfaces, routes, DNS and the hostname of the ESXi host it runs on.

  esxi-netinit run /vmfs/volumes/config-2/openstack/latest`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.Path(configPath))
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if len(args) > 0 {
			cfg.ConfigDir = args[0]
		}
		applyRunFlags(cmd.Flags())
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		log, err = newLogger(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath+", or $"+config.EnvPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd(),
		newPlanCmd(),
		newShowCmd(),
		newNICsCmd(),
		newReportCmd(),
	)
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar().Named("esxi-netinit"), nil
}
