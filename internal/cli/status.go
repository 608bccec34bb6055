package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/notchnoti/notchstore/internal/model"
	"github.com/notchnoti/notchstore/internal/theme"
)

// statusReport is the result of the status command.
type statusReport struct {
	Path             string             `json:"path"`
	State            string             `json:"state"`
	InMemoryFallback bool               `json:"in_memory_fallback"`
	Rebuilt          bool               `json:"rebuilt"`
	RebuiltAt        *time.Time         `json:"rebuilt_at,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
	Notifications    int                `json:"notifications"`
	ActiveSession    *model.WorkSession `json:"active_session,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage health and record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			st := a.manager.Open()
			report := statusReport{
				Path:             st.Path,
				State:            st.State.String(),
				InMemoryFallback: st.InMemoryFallback,
				Rebuilt:          st.Rebuilt,
			}
			if st.Rebuilt {
				report.RebuiltAt = &st.RebuiltAt
			}
			if st.LastError != nil {
				report.LastError = st.LastError.Error()
			}

			if report.Notifications, err = a.notifications.Count(ctx); err != nil {
				return WrapExitError(ExitFailure, "counting notifications", err)
			}
			if report.ActiveSession, err = a.sessions.CurrentSession(ctx); err != nil {
				return WrapExitError(ExitFailure, "loading current session", err)
			}

			return a.out.Render(report, func(w io.Writer) {
				renderStatus(w, report, time.Now())
			})
		},
	}
}

func renderStatus(w io.Writer, r statusReport, now time.Time) {
	fmt.Fprintln(w, theme.HeaderStyle.Render("notchstore"))
	row(w, "Store", r.Path)
	row(w, "State", theme.StateStyle(r.State).Render(r.State))
	if r.InMemoryFallback {
		row(w, "Durability", theme.StateStyle("degraded").Render("in-memory, changes will be lost"))
	}
	if r.RebuiltAt != nil {
		row(w, "Rebuilt", humanize.Time(*r.RebuiltAt))
	}
	if r.LastError != "" {
		row(w, "Last error", theme.MutedStyle.Render(r.LastError))
	}
	row(w, "Notifications", humanize.Comma(int64(r.Notifications)))

	if s := r.ActiveSession; s != nil {
		row(w, "Active session", fmt.Sprintf("%s, %s, %d activities",
			s.ProjectName, formatDuration(s.Duration(now)), len(s.Activities)))
	} else {
		row(w, "Active session", theme.MutedStyle.Render("none"))
	}
}

func row(w io.Writer, label, value string) {
	fmt.Fprintln(w, theme.LabelStyle.Render(label)+value)
}

// formatDuration renders d at minute precision, e.g. "1h 5m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
