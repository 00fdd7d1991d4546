// cmd/wellnavigator/logs.go
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	lt "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/log-turn"
)

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the daily turn logs",
	}
	cmd.AddCommand(newLogsSummaryCmd(), newLogsExportCmd())
	return cmd
}

func openTurnLog() (*lt.Handler, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewStructured("warn", "console", "stderr")
	return lt.NewHandler(&lt.Config{Dir: cfg.TurnLog.Dir, Table: cfg.TurnLog.Table}, nil, log)
}

func newLogsSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Totals across every logged turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openTurnLog()
			if err != nil {
				return err
			}
			s, err := h.Summary()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Turn log summary"))
			fmt.Fprintf(out, "  directory:    %s\n", h.Dir())
			fmt.Fprintf(out, "  days logged:  %d\n", s.UniqueDays)
			fmt.Fprintf(out, "  turns:        %d\n", s.TotalTurns)
			fmt.Fprintf(out, "  tokens:       %d\n", s.TotalTokens)
			fmt.Fprintf(out, "  cost:         $%.4f\n", s.TotalCost)
			fmt.Fprintf(out, "  avg latency:  %.2fs\n", s.AvgLatency)
			return nil
		},
	}
}

func newLogsExportCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the turns in a date range to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openTurnLog()
			if err != nil {
				return err
			}
			path, err := h.Export(from, to)
			if errors.Is(err, lt.ErrNoLogs) {
				fmt.Fprintln(cmd.OutOrStdout(), noteStyle.Render("No turns logged in that range."))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: --from)")
	return cmd
}
