package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billgrid/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the terminal UI",
	Long:  `Launch the interactive line-item grid for billgrid.`,
	RunE:  launchTUI,
}

func launchTUI(cmd *cobra.Command, args []string) error {
	stop := appInstance.ServeMetrics()
	defer stop()

	if err := tui.Run(appInstance); err != nil {
		return fmt.Errorf("failed to run terminal UI: %w", err)
	}
	return nil
}
