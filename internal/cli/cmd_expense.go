package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"budgetwise/internal/core"
	"budgetwise/internal/expenses"
)

func (r *runner) expenseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "expense",
		Aliases: []string{"expenses"},
		Short:   "Categorize and list expenses",
	}
	cmd.AddCommand(r.expenseAddCommand(), r.expenseImportCommand(), r.expenseListCommand(), r.expenseClearCommand())
	return cmd
}

func (r *runner) expenseAddCommand() *cobra.Command {
	var in expenses.Input
	cmd := &cobra.Command{
		Use:   "add DESCRIPTION AMOUNT",
		Short: "Categorize one expense and add it to the log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			in.Description = args[0]
			in.Amount = amount.InexactFloat64()

			rec, err := r.app.Expenses.CategorizeAndAppend(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out(), "%s  %s  %.0f%% (%s)\n",
				rec.Description, rec.Category, rec.Confidence*100, rec.Method)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Merchant, "merchant", "", "merchant name")
	f.StringVar(&in.Notes, "notes", "", "free-form notes")
	f.StringSliceVar(&in.Tags, "tag", nil, "tag (repeatable)")
	return cmd
}

func (r *runner) expenseImportCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Categorize a CSV or JSON file of expenses in one batch",
		Long: "Each CSV line is `description,amount`; JSON is an array of {description, amount}.\n" +
			"Rows without a description or a positive amount are skipped. Use - to read stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := r.readInput(args[0])
			if err != nil {
				return err
			}
			f, err := batchFormat(format, args[0])
			if err != nil {
				return err
			}

			recs, err := r.app.Expenses.BatchCategorizeAndAppend(cmd.Context(), raw, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out(), "Imported %d expenses\n", len(recs))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "csv or json (default: from file extension, else csv)")
	return cmd
}

func (r *runner) readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(r.opts.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func batchFormat(flag, path string) (expenses.Format, error) {
	if flag != "" {
		return expenses.ParseFormat(flag)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return expenses.FormatJSON, nil
	}
	return expenses.FormatCSV, nil
}

func (r *runner) expenseListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the expense log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			recs := r.app.Expenses.Records()
			if len(recs) == 0 {
				fmt.Fprintln(r.out(), "No expenses yet")
				return nil
			}
			if limit > 0 && len(recs) > limit {
				recs = recs[:limit]
			}

			tw := tabwriter.NewWriter(r.out(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tDESCRIPTION\tAMOUNT\tCATEGORY\tCONFIDENCE")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\n",
					rec.Timestamp.Local().Format("2006-01-02 15:04"),
					rec.Description,
					core.RoundAmount(rec.Amount).StringFixed(2),
					rec.Category,
					rec.Confidence*100)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show (0 for all)")
	return cmd
}

func (r *runner) expenseClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the local expense log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.app.Expenses.Clear(cmd.Context()); err != nil {
				return err
			}
			r.app.Analytics.Invalidate()
			fmt.Fprintln(r.out(), "Expense log cleared")
			return nil
		},
	}
}
