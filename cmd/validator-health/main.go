package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/emozilla/ethereum-validator-stack/reporter"
	"github.com/emozilla/ethereum-validator-stack/types"
	"github.com/emozilla/ethereum-validator-stack/utils"
)

// exitCode is set by the commands, main applies it after cobra returned
var exitCode int

var rootCmd = &cobra.Command{
	Use:           "validator-health",
	Short:         "Ethereum validator stack health check",
	Long:          "Probes the execution client, the beacon node and the validator client and reduces their state to one verdict.\nExit codes: 0 ok, 1 degraded, 2 critical, 3 unknown.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "validator-health %v\n", utils.GetVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file, if empty string defaults will be used")
	rootCmd.PersistentFlags().String("validator-index", "", "Validator index to check (overrides VALIDATOR_INDEX)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		// configuration and startup errors leave the stack state undetermined
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(reporter.ExitCode(types.SeverityUnknown))
	}

	os.Exit(exitCode)
}

// loadConfig applies defaults, the config file, the environment and the command line flags, in that order.
func loadConfig(cmd *cobra.Command) (*types.Config, logrus.FieldLogger, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := &types.Config{}
	err := utils.ReadConfig(cfg, configPath)
	if err != nil {
		return nil, nil, err
	}

	if cmd.Flags().Changed("validator-index") {
		cfg.Validator.Index, _ = cmd.Flags().GetString("validator-index")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.OutputLevel, _ = cmd.Flags().GetString("log-level")
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.OutputLevel = "debug"
		cfg.Logging.OutputStderr = true
	}
	if cmd.Flags().Lookup("output") != nil && cmd.Flags().Changed("output") {
		cfg.Output.Format, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Lookup("color") != nil && cmd.Flags().Changed("color") {
		cfg.Output.Color, _ = cmd.Flags().GetBool("color")
	}

	logger, err := utils.InitLogger(cfg.Logging.OutputLevel, cfg.Logging.OutputStderr)
	if err != nil {
		return nil, nil, err
	}

	logger.WithFields(logrus.Fields{
		"config":  configPath,
		"version": utils.BuildVersion,
		"release": utils.BuildRelease,
	}).Debugf("starting")

	return cfg, logger, nil
}
