package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/grid"
	"github.com/andy/billgrid/internal/service"
)

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Edit bill line items",
	Long: `Add, edit, delete, duplicate, and bulk-update the line items of a bill.

Fields are given as name=value pairs, for example:
  billgrid lines add BILL-2026-001 cpt=99213 charge=125.00 start=2026-03-01`,
}

var linesListCmd = &cobra.Command{
	Use:   "list [bill]",
	Short: "List the line items of a bill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return billsShowCmd.RunE(cmd, args)
	},
}

var linesAddCmd = &cobra.Command{
	Use:   "add [bill] [field=value]...",
	Short: "Add a line item through the draft row",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{}

		fields, values, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		_, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		existing := make(map[string]bool)
		for _, r := range c.Rows() {
			existing[r.ID] = true
		}

		// The first value promotes the draft; the rest are saved onto the
		// created row.
		run, err := c.SetField(domain.DraftID, fields[0], values[0])
		if err != nil {
			return fmt.Errorf("failed to set %s: %w", fields[0], err)
		}
		c.Drive(run)
		if err := notices.err(); err != nil {
			return err
		}

		var created domain.LineItem
		for _, r := range c.Rows() {
			if !r.IsSentinel() && !existing[r.ID] {
				created = r
			}
		}
		if created.ID == "" {
			return fmt.Errorf("line item was not created")
		}

		for i := 1; i < len(fields); i++ {
			run, err := c.SetField(created.ID, fields[i], values[i])
			if err != nil {
				return fmt.Errorf("failed to set %s: %w", fields[i], err)
			}
			c.Drive(run)
		}
		return notices.err()
	},
}

var linesSetCmd = &cobra.Command{
	Use:   "set [bill] [line] [field=value]...",
	Short: "Edit cells of one line item",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{}

		fields, values, err := parseAssignments(args[2:])
		if err != nil {
			return err
		}

		_, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		line, err := resolveLine(c, args[1])
		if err != nil {
			return err
		}

		for i, f := range fields {
			run, err := c.SetField(line.ID, f, values[i])
			if err != nil {
				return fmt.Errorf("failed to set %s: %w", f, err)
			}
			c.Drive(run)
		}
		if err := notices.err(); err != nil {
			return err
		}
		fmt.Printf("✓ Line %d updated\n", line.LineNumber)
		return nil
	},
}

var linesDeleteCmd = &cobra.Command{
	Use:   "delete [bill] [line]...",
	Short: "Delete line items and renumber the rest",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{}

		_, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := selectLines(c, args[1:]); err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		if !force && !confirmPrompt(fmt.Sprintf("Delete %d line item(s)?", len(c.SelectedIDs()))) {
			fmt.Println("Cancelled.")
			return nil
		}

		run, err := c.DeleteSelected()
		if err != nil {
			return fmt.Errorf("failed to delete line items: %w", err)
		}
		c.Drive(run)
		return notices.err()
	},
}

var linesDuplicateCmd = &cobra.Command{
	Use:   "duplicate [bill] [line]...",
	Short: "Append copies of line items to the end of the bill",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{}

		_, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := selectLines(c, args[1:]); err != nil {
			return err
		}

		copies, _ := cmd.Flags().GetInt("copies")
		counts := make(map[string]int)
		for _, id := range c.SelectedIDs() {
			counts[id] = copies
		}

		confirmed, _ := cmd.Flags().GetBool("yes")
		run, err := c.DuplicateSelected(counts, confirmed)
		if errors.Is(err, grid.ErrConfirmationRequired) {
			if !confirmPrompt(fmt.Sprintf("Create %d copies?", copies*len(counts))) {
				fmt.Println("Cancelled.")
				return nil
			}
			run, err = c.DuplicateSelected(counts, true)
		}
		if err != nil {
			return fmt.Errorf("failed to duplicate line items: %w", err)
		}
		c.Drive(run)
		return notices.err()
	},
}

var linesBulkCmd = &cobra.Command{
	Use:   "bulk [bill] [field] [value]",
	Short: "Assign one value to a field across many rows",
	Long: `Assign one value to a field across all rows, blank rows only, or the
rows following an anchor line.

Examples:
  billgrid lines bulk BILL-2026-001 account 4410
  billgrid lines bulk BILL-2026-001 medicare Yes --scope blank
  billgrid lines bulk BILL-2026-001 start 2026-03-01 --scope following --from 3 --count 4`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{}

		f, err := domain.ParseField(args[1])
		if err != nil {
			return err
		}

		_, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		scope, anchor, err := scopeFromFlags(cmd, c)
		if err != nil {
			return err
		}

		run, err := c.ApplyBulk(f, args[2], scope, anchor)
		if err != nil {
			return fmt.Errorf("failed to apply bulk update: %w", err)
		}
		c.Drive(run)
		return notices.err()
	},
}

var linesPayCmd = &cobra.Command{
	Use:   "pay [bill]",
	Short: "Compute a payment column from charges",
	Long: `Fill a payment column from each row's charge, either as a percentage of
the charge or as the same fixed amount on every row.

Examples:
  billgrid lines pay BILL-2026-001 --percent 80
  billgrid lines pay BILL-2026-001 --field patient --amount 20 --scope blank`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{}

		name, _ := cmd.Flags().GetString("field")
		f, err := domain.ParseField(name)
		if err != nil {
			return err
		}

		var op grid.PaymentOp
		switch {
		case cmd.Flags().Changed("amount"):
			amount, _ := cmd.Flags().GetFloat64("amount")
			op = grid.FixedAmount(amount)
		case cmd.Flags().Changed("percent"):
			percent, _ := cmd.Flags().GetFloat64("percent")
			op = grid.Percentage(percent)
		default:
			op = grid.Percentage(appInstance.Config.Grid.DefaultPaymentPercent)
		}

		_, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		scope, anchor, err := scopeFromFlags(cmd, c)
		if err != nil {
			return err
		}

		run, err := c.ApplyPayment(f, op, scope, anchor)
		if err != nil {
			return fmt.Errorf("failed to apply payment: %w", err)
		}
		c.Drive(run)
		return notices.err()
	},
}

var linesExportCmd = &cobra.Command{
	Use:   "export [bill]",
	Short: "Export line items to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{quiet: true}

		bill, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		path, _ := cmd.Flags().GetString("output")
		if path == "" {
			path = filepath.Join(appInstance.Config.Export.OutputDir, service.ExportFileName(bill))
		}

		if err := service.ExportWorkbook(path, bill, c.Rows()); err != nil {
			return fmt.Errorf("failed to export bill: %w", err)
		}

		fmt.Printf("✓ Exported %d line item(s) to %s\n", c.Footer().Lines, path)
		return nil
	},
}

var linesHistoryCmd = &cobra.Command{
	Use:   "history [bill] [line]",
	Short: "Show the change history of a line item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{quiet: true}

		_, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		line, err := resolveLine(c, args[1])
		if err != nil {
			return err
		}

		history, err := appInstance.History.History(ctx, line.ID)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		if len(history) == 0 {
			fmt.Printf("No changes recorded for line %d\n", line.LineNumber)
			return nil
		}

		fmt.Printf("%-16s %-18s %-16s %-16s %s\n", "Changed", "Field", "Old", "New", "Reason")
		fmt.Println("--------------------------------------------------------------------------------")
		for _, h := range history {
			fmt.Printf("%-16s %-18s %-16s %-16s %s\n",
				h.ChangedAt.Local().Format("2006-01-02 15:04"),
				truncate(h.FieldName, 18),
				truncate(h.OldValue, 16),
				truncate(h.NewValue, 16),
				h.ChangeReason,
			)
		}
		return nil
	},
}

func selectLines(c *grid.Controller, refs []string) error {
	for _, ref := range refs {
		line, err := resolveLine(c, ref)
		if err != nil {
			return err
		}
		c.Select(line.ID, true)
	}
	return nil
}

func scopeFromFlags(cmd *cobra.Command, c *grid.Controller) (grid.Scope, string, error) {
	name, _ := cmd.Flags().GetString("scope")
	count, _ := cmd.Flags().GetInt("count")

	scope, err := grid.ParseScope(name, count)
	if err != nil {
		return grid.Scope{}, "", err
	}
	if scope.Kind != grid.ScopeFollowing {
		return scope, "", nil
	}

	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		return grid.Scope{}, "", fmt.Errorf("--from is required with --scope following")
	}
	anchor, err := resolveLine(c, from)
	if err != nil {
		return grid.Scope{}, "", err
	}
	return scope, anchor.ID, nil
}

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("scope", "all", "Rows to update: all, blank, following")
	cmd.Flags().Int("count", 1, "Number of rows for --scope following")
	cmd.Flags().String("from", "", "Anchor line for --scope following")
}

func init() {
	linesCmd.AddCommand(linesListCmd)
	linesCmd.AddCommand(linesAddCmd)
	linesCmd.AddCommand(linesSetCmd)
	linesCmd.AddCommand(linesDeleteCmd)
	linesCmd.AddCommand(linesDuplicateCmd)
	linesCmd.AddCommand(linesBulkCmd)
	linesCmd.AddCommand(linesPayCmd)
	linesCmd.AddCommand(linesExportCmd)
	linesCmd.AddCommand(linesHistoryCmd)

	linesDeleteCmd.Flags().BoolP("force", "f", false, "Skip the confirmation prompt")

	linesDuplicateCmd.Flags().IntP("copies", "n", 1, "Copies of each line")
	linesDuplicateCmd.Flags().BoolP("yes", "y", false, "Confirm large batches without prompting")

	addScopeFlags(linesBulkCmd)
	addScopeFlags(linesPayCmd)
	linesPayCmd.Flags().String("field", "approved", "Payment column: approved, third-party, patient")
	linesPayCmd.Flags().Float64("percent", 0, "Percentage of the charge")
	linesPayCmd.Flags().Float64("amount", 0, "Fixed amount for every row")

	linesExportCmd.Flags().StringP("output", "o", "", "Output path (default: export dir from config)")
}
