package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
)

// NewRootCmd builds the slactl command tree.
func NewRootCmd(factory BackendFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "slactl",
		Short:         "Operate helpdesk SLA tracking",
		Long:          "slactl runs breach sweeps and prints SLA reports against the helpdesk database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		sweepCmd(factory),
		checkCmd(factory),
		policiesCmd(factory),
		atRiskCmd(factory),
		complianceCmd(factory),
		trendCmd(factory),
	)
	return root
}

func run(cmd *cobra.Command, factory BackendFactory, fn func(ctx context.Context, b *Backend) error) error {
	return withBackend(factory, fn)(cmd.Context())
}

func sweepCmd(factory BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-evaluate breach flags on every open tracked ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, factory, func(ctx context.Context, b *Backend) error {
				res, err := b.SLA.CheckAllBreaches(ctx)
				if err != nil {
					return fmt.Errorf("sweep failed: %w", err)
				}
				printSweep(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func printSweep(out io.Writer, res service.SweepResult) {
	fmt.Fprintf(out, "Checked:             %d\n", res.Checked)
	fmt.Fprintf(out, "Response breached:   %d\n", res.ResponseBreached)
	fmt.Fprintf(out, "Resolution breached: %d\n", res.ResolutionBreached)
	newly := fmt.Sprint(res.NewlyBreached)
	if res.NewlyBreached > 0 {
		newly = red.Sprint(newly)
	}
	fmt.Fprintf(out, "Newly breached:      %s\n", newly)
	if res.Failed > 0 {
		fmt.Fprintf(out, "Failed:              %s\n", yellow.Sprint(res.Failed))
	}
	fmt.Fprintf(out, "Took:                %s\n", res.Duration.Round(time.Millisecond))
}

func checkCmd(factory BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "check <ticket-id>",
		Short: "Evaluate breach flags for one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, factory, func(ctx context.Context, b *Backend) error {
				flags, err := b.SLA.CheckBreaches(ctx, args[0])
				if err != nil {
					return fmt.Errorf("check %s failed: %w", args[0], err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "response:   %s\n", breachLabel(flags.ResponseBreached))
				fmt.Fprintf(out, "resolution: %s\n", breachLabel(flags.ResolutionBreached))
				return nil
			})
		},
	}
}

func breachLabel(breached bool) string {
	if breached {
		return red.Sprint("BREACHED")
	}
	return green.Sprint("ok")
}

func policiesCmd(factory BackendFactory) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List SLA policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, factory, func(ctx context.Context, b *Backend) error {
				policies, err := b.SLA.ListPolicies(ctx)
				if err != nil {
					return fmt.Errorf("failed to list policies: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tRESPONSE\tRESOLUTION\tACTIVE")
				for _, p := range policies {
					if !all && !p.IsActive {
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%dh\t%dh\t%t\n",
						p.ID, p.Name, p.Priority, p.ResponseTimeHours, p.ResolutionTimeHours, p.IsActive)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include inactive policies")
	return cmd
}

func atRiskCmd(factory BackendFactory) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "at-risk",
		Short: "List open tickets about to miss a deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("hours") && hours <= 0 {
				return fmt.Errorf("--hours must be at least 1, got %d", hours)
			}
			return run(cmd, factory, func(ctx context.Context, b *Backend) error {
				tickets, err := b.Reports.GetTicketsAtRisk(ctx, hours)
				if err != nil {
					return fmt.Errorf("failed to list at-risk tickets: %w", err)
				}
				out := cmd.OutOrStdout()
				if len(tickets) == 0 {
					fmt.Fprintln(out, green.Sprint("No tickets at risk."))
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tPRIORITY\tSTATUS\tAT RISK\tNEXT DUE")
				for _, t := range tickets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						t.ExternalKey, priorityLabel(t.Priority), t.Status, riskKinds(t), formatDue(t.NextDue()))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "Warning window in hours, at least 1 (omit to use SLA_AT_RISK_HOURS)")
	return cmd
}

func priorityLabel(p domain.TicketPriority) string {
	switch p {
	case domain.TicketPriorityCritical:
		return red.Sprint(p)
	case domain.TicketPriorityHigh:
		return yellow.Sprint(p)
	default:
		return string(p)
	}
}

func riskKinds(t domain.AtRiskTicket) string {
	var kinds []string
	if t.ResponseAtRisk {
		kinds = append(kinds, "response")
	}
	if t.ResolutionAtRisk {
		kinds = append(kinds, "resolution")
	}
	return strings.Join(kinds, ",")
}

func formatDue(due *time.Time) string {
	if due == nil {
		return "-"
	}
	return due.UTC().Format(time.RFC3339)
}

func complianceCmd(factory BackendFactory) *cobra.Command {
	var (
		groupBy string
		days    int
	)
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Print SLA compliance by department or agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, factory, func(ctx context.Context, b *Backend) error {
				rows, err := b.Reports.GetComplianceReport(ctx, service.ComplianceQuery{
					GroupBy:    domain.ComplianceGroupBy(groupBy),
					PeriodDays: days,
				})
				if err != nil {
					return fmt.Errorf("failed to build compliance report: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "GROUP\tTOTAL\tRESPONSE\tRESOLUTION\tCOMPLIANCE")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
						groupName(r), r.Total, r.ResponseBreached, r.ResolutionBreached, complianceLabel(r.ComplianceRate))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&groupBy, "group-by", "department", "Grouping: department or agent")
	cmd.Flags().IntVar(&days, "days", 0, "Trailing window in days (default from SLA_COMPLIANCE_PERIOD_DAYS)")
	return cmd
}

func groupName(r domain.ComplianceRow) string {
	if r.GroupName != "" {
		return r.GroupName
	}
	if r.GroupID != "" {
		return r.GroupID
	}
	return "(unassigned)"
}

func complianceLabel(rate float64) string {
	s := fmt.Sprintf("%.2f%%", rate)
	switch {
	case rate >= 95:
		return green.Sprint(s)
	case rate >= 80:
		return yellow.Sprint(s)
	default:
		return red.Sprint(s)
	}
}

func trendCmd(factory BackendFactory) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Print daily created and breached counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, factory, func(ctx context.Context, b *Backend) error {
				points, err := b.Reports.GetBreachTrend(ctx, days)
				if err != nil {
					return fmt.Errorf("failed to build trend: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DAY\tCREATED\tRESPONSE\tRESOLUTION")
				for _, p := range points {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", p.Day.Format("2006-01-02"), p.Created, p.ResponseBreached, p.ResolutionBreached)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Number of days (default from SLA_TREND_DAYS)")
	return cmd
}
