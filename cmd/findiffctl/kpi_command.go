package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	kpimodels "findiff/internal/kpi/models"
	kpisvc "findiff/internal/kpi/service"
	kpistore "findiff/internal/kpi/store"
)

var kpiColumns = []kpimodels.Type{
	kpimodels.TypeHorizontalAudit,
	kpimodels.TypeVerticalAudit,
	kpimodels.TypeReturnedShuffle,
}

func newKPICommand(ctx *commandContext) *cobra.Command {
	var from, to, search string

	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Summarize reviewer KPI per user",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := kpimodels.Filter{Search: search}
			var err error
			if filter.Created.From, err = parseDay(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if filter.Created.To, err = parseDay(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if !filter.Created.To.IsZero() {
				filter.Created.To = filter.Created.To.Add(24*time.Hour - time.Nanosecond)
			}

			users, err := ctx.users(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()
			db, err := ctx.database(cmd.Context())
			if err != nil {
				return err
			}

			svc := kpisvc.New(kpistore.NewPostgres(db), users, kpisvc.WithLogger(ctx.log()))
			summary, err := svc.Summary(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKPI(summary))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day to include (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Match username or nickname")
	return cmd
}

func renderKPI(summary []*kpimodels.SummaryRow) string {
	if len(summary) == 0 {
		return "No KPI recorded"
	}
	headers := []string{"User", "Nickname"}
	aligns := []columnAlignment{alignLeft, alignLeft}
	for _, t := range kpiColumns {
		headers = append(headers, string(t))
		aligns = append(aligns, alignRight)
	}
	rows := make([][]string, 0, len(summary))
	for _, s := range summary {
		row := []string{s.Username, s.Nickname}
		for _, t := range kpiColumns {
			row = append(row, strconv.Itoa(s.Totals[t]))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}
