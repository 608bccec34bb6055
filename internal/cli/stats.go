package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/notchnoti/notchstore/internal/model"
	"github.com/notchnoti/notchstore/internal/theme"
)

// NewStatsCommand creates the stats command group.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize work sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "today",
		Short: "Totals for sessions started today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := a.sessions.AggregateToday(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "aggregating today", err)
			}
			return a.out.Render(day, func(w io.Writer) {
				fmt.Fprintln(w, theme.HeaderStyle.Render("Today"))
				renderDay(w, day)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "week",
		Short: "Daily totals for the last seven days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			trend, err := a.sessions.AggregateWeeklyTrend(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "aggregating weekly trend", err)
			}
			return a.out.Render(trend, func(w io.Writer) {
				renderTrend(w, trend)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "projects",
		Short: "Totals per project over recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.sessions.AggregateByProject(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "aggregating projects", err)
			}
			return a.out.Render(projects, func(w io.Writer) {
				renderProjects(w, projects)
			})
		},
	})

	return cmd
}

func renderDay(w io.Writer, d model.DailySummary) {
	row(w, "Sessions", humanize.Comma(int64(d.SessionCount)))
	row(w, "Time", formatDuration(d.TotalDuration))
	row(w, "Activities", humanize.Comma(int64(d.TotalActivities)))
	row(w, "Pace", fmt.Sprintf("%.2f/min", d.AveragePace))

	if len(d.ActivityCounts) == 0 {
		return
	}
	types := make([]model.ActivityType, 0, len(d.ActivityCounts))
	for t := range d.ActivityCounts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if d.ActivityCounts[types[i]] != d.ActivityCounts[types[j]] {
			return d.ActivityCounts[types[i]] > d.ActivityCounts[types[j]]
		}
		return types[i] < types[j]
	})
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s %d", t, d.ActivityCounts[t])
	}
	row(w, "Breakdown", strings.Join(parts, ", "))
}

func renderTrend(w io.Writer, trend []model.DailySummary) {
	fmt.Fprintln(w, theme.HeaderStyle.Render("Last 7 days"))

	peak := 0
	for _, d := range trend {
		peak = max(peak, d.TotalActivities)
	}
	for _, d := range trend {
		bar := ""
		if peak > 0 {
			bar = strings.Repeat("#", d.TotalActivities*20/peak)
		}
		fmt.Fprintf(w, "%s %3d sessions %8s %5d activities %s\n",
			theme.LabelStyle.Render(d.Date.Format("Mon Jan 02")),
			d.SessionCount,
			formatDuration(d.TotalDuration),
			d.TotalActivities,
			theme.MutedStyle.Render(bar))
	}
}

func renderProjects(w io.Writer, projects []model.ProjectSummary) {
	fmt.Fprintln(w, theme.HeaderStyle.Render("Projects"))
	if len(projects) == 0 {
		fmt.Fprintln(w, theme.MutedStyle.Render("no sessions"))
		return
	}
	for _, p := range projects {
		fmt.Fprintf(w, "%s %3d sessions %8s %5d activities %s\n",
			theme.LabelStyle.Render(p.ProjectName),
			p.SessionCount,
			formatDuration(p.TotalDuration),
			p.TotalActivities,
			theme.MutedStyle.Render("last active "+humanize.Time(p.LastActive)))
	}
}
