package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/billgrid/internal/domain"
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Manage the code catalogue",
	Long:  `Import, search, and describe revenue, place-of-service, procedure, modifier, and remark codes.`,
}

var codesImportCmd = &cobra.Command{
	Use:   "import [workbook.xlsx]",
	Short: "Import codes from an Excel workbook",
	Long: `Import codes from every sheet whose first row is a Type | Code | Description
header. Existing codes are updated in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		n, err := appInstance.CodeService.Import(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to import codes: %w", err)
		}

		total, err := appInstance.CodeService.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count codes: %w", err)
		}

		fmt.Printf("✓ Imported %d code(s)\n", n)
		fmt.Printf("  Catalogue size: %d\n", total)
		return nil
	},
}

var codesSearchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search codes by code or description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		types, err := codeTypesFlag(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		matches, err := appInstance.CodeService.Search(ctx, args[0], types, limit)
		if err != nil {
			return fmt.Errorf("failed to search codes: %w", err)
		}

		if len(matches) == 0 {
			fmt.Println("No codes found")
			return nil
		}

		fmt.Printf("%-16s %-12s %s\n", "Type", "Code", "Description")
		fmt.Println("----------------------------------------------------------------------")
		for _, m := range matches {
			fmt.Printf("%-16s %-12s %s\n", truncate(m.CodeType, 16), m.CodeName, truncate(m.Description, 60))
		}
		return nil
	},
}

var codesDescribeCmd = &cobra.Command{
	Use:   "describe [code]",
	Short: "Show the description of an exact code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		types, err := codeTypesFlag(cmd)
		if err != nil {
			return err
		}

		match, err := appInstance.CodeService.Describe(ctx, args[0], types)
		if err != nil {
			return fmt.Errorf("failed to describe code: %w", err)
		}
		if match == nil {
			fmt.Printf("%s: no description available\n", args[0])
			return nil
		}

		fmt.Printf("%s (%s)\n", match.CodeName, match.CodeType)
		fmt.Printf("  %s\n", match.Description)
		return nil
	},
}

// codeTypesFlag maps --field to the catalogue types that field searches
func codeTypesFlag(cmd *cobra.Command) ([]string, error) {
	name, _ := cmd.Flags().GetString("field")
	if name == "" {
		return nil, nil
	}
	f, err := domain.ParseField(name)
	if err != nil {
		return nil, err
	}
	if !f.IsCode() {
		return nil, fmt.Errorf("%s is not a code field", f)
	}
	return f.Spec().CodeTypes, nil
}

func init() {
	codesCmd.AddCommand(codesImportCmd)
	codesCmd.AddCommand(codesSearchCmd)
	codesCmd.AddCommand(codesDescribeCmd)

	codesSearchCmd.Flags().String("field", "", "Restrict to the code types of a field (e.g. procedure, pos)")
	codesSearchCmd.Flags().Int("limit", 10, "Maximum results")
	codesDescribeCmd.Flags().String("field", "", "Restrict to the code types of a field")
}
