package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/grid"
	"github.com/andy/billgrid/internal/service"
)

var billsCmd = &cobra.Command{
	Use:   "bills",
	Short: "Manage bills",
	Long:  `Create, list, validate, and adjudicate bills.`,
}

var billsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bills",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var stage *domain.Stage
		if cmd.Flags().Changed("stage") {
			s, _ := cmd.Flags().GetString("stage")
			parsed, err := domain.ParseStage(s)
			if err != nil {
				return err
			}
			stage = &parsed
		}

		bills, err := appInstance.BillService.ListBills(ctx, stage)
		if err != nil {
			return fmt.Errorf("failed to list bills: %w", err)
		}

		if len(bills) == 0 {
			fmt.Println("No bills found")
			return nil
		}

		fmt.Printf("%-18s %-13s %-6s %-14s %-16s\n", "Number", "Stage", "Lines", "Charge", "Updated")
		fmt.Println("----------------------------------------------------------------------")

		for _, bill := range bills {
			fmt.Printf("%-18s %-13s %-6d %-14s %-16s\n",
				truncate(bill.Number, 18),
				bill.Stage.Label(),
				bill.LineCount,
				domain.FormatMoney(bill.TotalCharge),
				bill.UpdatedAt.Local().Format("2006-01-02 15:04"),
			)
		}

		fmt.Printf("\nTotal: %d bill(s)\n", len(bills))
		return nil
	},
}

var billsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new bill in the Keying stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		prefix, _ := cmd.Flags().GetString("prefix")
		if prefix == "" {
			prefix = appInstance.Config.Grid.BillPrefix
		}

		bill, err := appInstance.BillService.CreateBill(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to create bill: %w", err)
		}

		fmt.Printf("✓ Bill created: %s\n", bill.Number)
		fmt.Printf("  ID: %s\n", bill.ID)
		return nil
	},
}

var billsShowCmd = &cobra.Command{
	Use:   "show [bill]",
	Short: "Show a bill and its line items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{quiet: true}

		bill, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		fmt.Printf("Bill %s (%s)\n", bill.Number, c.Stage().Label())
		if c.ReadOnly() {
			fmt.Println("Adjudicated bills are read-only.")
		}
		fmt.Println()
		printLines(c)
		printDuplicates(c)
		return nil
	},
}

var billsStageCmd = &cobra.Command{
	Use:   "stage [bill] [stage]",
	Short: "Move a bill to Keying, Bill Review or Quote View",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{}

		stage, err := domain.ParseStage(args[1])
		if err != nil {
			return err
		}

		_, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		run, err := c.SetStage(stage)
		if err != nil {
			return fmt.Errorf("failed to set stage: %w", err)
		}
		c.Drive(run)
		return notices.err()
	},
}

var billsValidateCmd = &cobra.Command{
	Use:   "validate [bill]",
	Short: "Run the validation rules and print a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{quiet: true}

		bill, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		run, err := c.Validate()
		if err != nil {
			return fmt.Errorf("failed to validate bill: %w", err)
		}
		c.Drive(run)

		if res, ok := c.LastValidation(); ok {
			if err := printReport(cmd, bill, res); err != nil {
				return err
			}
		}
		return notices.err()
	},
}

var billsAdjudicateCmd = &cobra.Command{
	Use:   "adjudicate [bill]",
	Short: "Validate a bill and lock it when no errors remain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		notices := &noticePrinter{}

		bill, c, err := openGrid(ctx, args[0], notices)
		if err != nil {
			return err
		}
		defer c.Close()

		run, err := c.CommitAdjudication()
		if err != nil {
			return fmt.Errorf("failed to adjudicate bill: %w", err)
		}
		c.Drive(run)

		if c.Stage() != domain.StageAdjudicated {
			if res, ok := c.LastValidation(); ok {
				if err := printReport(cmd, bill, res); err != nil {
					return err
				}
			}
		}
		return notices.err()
	},
}

var billsDeleteCmd = &cobra.Command{
	Use:   "delete [bill]",
	Short: "Delete an editable bill and all of its line items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		bill, err := appInstance.BillService.ResolveBill(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve bill: %w", err)
		}

		force, _ := cmd.Flags().GetBool("force")
		if !force && !confirmPrompt(fmt.Sprintf("Delete bill %s and its line items?", bill.Number)) {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := appInstance.BillService.DeleteBill(ctx, bill.ID); err != nil {
			return fmt.Errorf("failed to delete bill: %w", err)
		}

		fmt.Printf("✓ Bill %s deleted\n", bill.Number)
		return nil
	},
}

func printLines(c *grid.Controller) {
	fmt.Printf("%-4s %-10s %-8s %-5s %-28s %-12s %-12s %-8s %-7s\n",
		"#", "Start", "Proc", "Mod", "Description", "Charge", "Approved", "Medicare", "Status")
	fmt.Println("----------------------------------------------------------------------------------------------------")

	for _, r := range c.Rows() {
		if r.IsSentinel() {
			continue
		}
		fmt.Printf("%-4d %-10s %-8s %-5s %-28s %-12s %-12s %-8s %-7s\n",
			r.LineNumber,
			r.Computed.StartDate,
			truncate(r.Fields.ProcedureCode, 8),
			truncate(r.Fields.Modifier, 5),
			truncate(r.Fields.Description, 28),
			r.Computed.Charge,
			r.Computed.Approved,
			r.Fields.MedicareStatus,
			r.Validation.Status,
		)
	}
	printFooter(c.Footer())
}

func printDuplicates(c *grid.Controller) {
	dup := c.Duplicates()
	fmt.Printf("\nDuplicates: %s\n", dup.Message())
	if !dup.HasWarnings() {
		return
	}
	for _, r := range c.Rows() {
		if r.Duplicate == domain.DuplicateNone {
			continue
		}
		for _, m := range r.Matches {
			fmt.Printf("  line %d  %-19s %s (charge %s)\n",
				r.LineNumber, r.Duplicate.Label(), m, domain.FormatAmount(m.Charge))
		}
	}
}

func printReport(cmd *cobra.Command, bill *domain.Bill, res domain.ValidationResult) error {
	md := service.ValidationMarkdown(bill, res)
	if raw, _ := cmd.Flags().GetBool("raw"); raw {
		fmt.Println(md)
		return nil
	}

	width := 80
	style := "notty"
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		style = "dark"
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			width = w
		}
	}

	out, err := service.RenderMarkdown(md, style, width)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func init() {
	billsCmd.AddCommand(billsListCmd)
	billsCmd.AddCommand(billsCreateCmd)
	billsCmd.AddCommand(billsShowCmd)
	billsCmd.AddCommand(billsStageCmd)
	billsCmd.AddCommand(billsValidateCmd)
	billsCmd.AddCommand(billsAdjudicateCmd)
	billsCmd.AddCommand(billsDeleteCmd)

	billsListCmd.Flags().String("stage", "", "Filter by stage (keying, billReview, quote, adjudicated)")
	billsCreateCmd.Flags().String("prefix", "", "Bill number prefix (default from config)")
	billsValidateCmd.Flags().Bool("raw", false, "Print the report as markdown")
	billsAdjudicateCmd.Flags().Bool("raw", false, "Print the report as markdown")
	billsDeleteCmd.Flags().BoolP("force", "f", false, "Skip the confirmation prompt")
}
