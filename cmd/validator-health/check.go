package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/emozilla/ethereum-validator-stack/reporter"
	"github.com/emozilla/ethereum-validator-stack/services"
	"github.com/emozilla/ethereum-validator-stack/utils"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one health cycle and exit with the verdict",
	RunE:  runCheck,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, checkCmd} {
		cmd.Flags().StringP("output", "o", "", "Output format (text, json)")
		cmd.Flags().Bool("color", false, "Colorize the text output")
	}

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	healthService, err := services.NewHealthService(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := utils.SignalContext(context.Background())
	defer cancel()

	report, err := healthService.RunCycle(ctx)
	if err != nil {
		return err
	}

	rep := reporter.NewReporter(cfg.Output.Color)
	if cfg.Output.Format == "json" {
		err = rep.RenderJSON(cmd.OutOrStdout(), report)
	} else {
		err = rep.Render(cmd.OutOrStdout(), report)
	}
	if err != nil {
		utils.LogError(logger, err, "error writing report", 0)
	}

	exitCode = reporter.ExitCode(report.Overall)
	return nil
}
