package cli

import (
	"github.com/spf13/cobra"

	"github.com/andy/billgrid/internal/app"
)

var appInstance *app.App

var rootCmd = &cobra.Command{
	Use:   "billgrid",
	Short: "Edit billing line items from the terminal",
	Long: `Billgrid keys, reviews and adjudicates bill line items in an
encrypted local database.

By default, running billgrid without arguments launches the interactive TUI.
Use subcommands for CLI operations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appInstance == nil {
			return nil
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			return appInstance.SetLogLevel("debug")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch TUI
		return launchTUI(cmd, args)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetApp sets the app instance for commands to use
func SetApp(a *app.App) {
	appInstance = a
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(billsCmd)
	rootCmd.AddCommand(linesCmd)
	rootCmd.AddCommand(codesCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(tuiCmd)
}
