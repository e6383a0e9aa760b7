package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset data in the database",
	Long: `Reset data in the database.

Examples:
  billgrid reset lines    # Delete all line items and their history
  billgrid reset codes    # Empty the code catalogue
  billgrid reset all      # Wipe everything: bills, line items, codes`,
}

var resetLinesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Delete all line items and their change history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmPrompt("This will delete ALL line items and their history. Continue?") {
			fmt.Println("Cancelled.")
			return nil
		}

		// Order matters due to foreign keys
		if err := clearTables("line_item_history", "bill_line_items"); err != nil {
			return err
		}

		fmt.Println("All line items have been deleted.")
		return nil
	},
}

var resetCodesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Delete the code catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmPrompt("This will delete ALL catalogue codes. Continue?") {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := clearTables("codes"); err != nil {
			return err
		}

		fmt.Println("The code catalogue has been emptied.")
		return nil
	},
}

var resetAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Delete ALL data: bills, line items, codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmPrompt("This will delete ALL data (bills, line items, history, codes). Continue?") {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := clearTables("line_item_history", "bill_line_items", "bills", "codes"); err != nil {
			return err
		}

		fmt.Println("All data has been deleted.")
		return nil
	},
}

func clearTables(tables ...string) error {
	db := appInstance.DB
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func init() {
	resetCmd.AddCommand(resetLinesCmd)
	resetCmd.AddCommand(resetCodesCmd)
	resetCmd.AddCommand(resetAllCmd)
}
