package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"budgetwise/internal/analytics"
	"budgetwise/internal/core"
)

func (r *runner) analyticsCommand() *cobra.Command {
	var (
		rangeFlag  string
		categories []string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Summarize the expense log",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			tr, err := core.ParseTimeRange(rangeFlag)
			if err != nil {
				return err
			}
			f := analytics.Filter{Range: tr}
			for _, c := range categories {
				cat, err := core.ParseCategory(c)
				if err != nil {
					return err
				}
				f.Categories = append(f.Categories, cat)
			}

			snap := r.app.Snapshot(f, r.opts.Now())
			if asJSON {
				enc := json.NewEncoder(r.out())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return printSnapshot(r, snap)
		},
	}
	f := cmd.Flags()
	f.StringVar(&rangeFlag, "range", string(core.Range30Days), "7d, 30d, 90d, ytd or all")
	f.StringSliceVar(&categories, "category", nil, "Needs, Wants or Savings (repeatable; default all)")
	f.BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}

func printSnapshot(r *runner, s core.AnalyticsSnapshot) error {
	w := r.out()
	fmt.Fprintf(w, "Total:        %s over %d expenses\n", core.RoundAmount(s.TotalAmount).StringFixed(2), s.TransactionCount)
	fmt.Fprintf(w, "Confidence:   %.1f%% average\n", s.AverageConfidence*100)
	fmt.Fprintf(w, "Processing:   min %.1fms  avg %.1fms  max %.1fms\n",
		s.ProcessingTime.Min, s.ProcessingTime.Avg, s.ProcessingTime.Max)

	fmt.Fprintln(w, "\nBy category:")
	for _, c := range core.Categories() {
		amount, ok := s.CategoryBreakdown[c]
		if !ok {
			continue
		}
		share := 0.0
		if s.TotalAmount > 0 {
			share = amount / s.TotalAmount * 100
		}
		fmt.Fprintf(w, "  %-8s %10s  %5.1f%%\n", c, core.RoundAmount(amount).StringFixed(2), share)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nLast 7 days:")
	for _, d := range s.DailyTrend {
		fmt.Fprintf(tw, "  %s\t%s\t%d\n", d.Date, core.RoundAmount(d.Amount).StringFixed(2), d.Count)
	}
	fmt.Fprintln(tw, "\nLast 6 months:\tNeeds\tWants\tSavings")
	for _, m := range s.MonthlyTrend {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", m.Label,
			core.RoundAmount(m.Needs).StringFixed(2),
			core.RoundAmount(m.Wants).StringFixed(2),
			core.RoundAmount(m.Savings).StringFixed(2))
	}
	fmt.Fprintln(tw, "\nConfidence:")
	for _, b := range s.ConfidenceHistogram {
		fmt.Fprintf(tw, "  %s\t%s %d\n", b.Label, strings.Repeat("#", min(b.Count, 40)), b.Count)
	}
	return tw.Flush()
}
