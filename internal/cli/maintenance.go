package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notchnoti/notchstore/internal/maintenance"
	"github.com/notchnoti/notchstore/internal/theme"
)

// NewCleanupCommand creates the cleanup command, a single retention pass.
func NewCleanupCommand(opts *RootOptions) *cobra.Command {
	var keep, sessionDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the retention policy once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			policy := a.cfg.Retention
			if cmd.Flags().Changed("keep") {
				policy.KeepNotifications = keep
			}
			if cmd.Flags().Changed("session-days") {
				policy.SessionMaxAgeDays = sessionDays
			}
			if policy.KeepNotifications < 0 || policy.SessionMaxAgeDays < 0 {
				return NewExitError(ExitCommandError, "--keep and --session-days must not be negative")
			}

			r := maintenance.New(a.notifications, a.sessions, policy, a.logger)
			res := r.RunNow(cmd.Context())
			if res.Err != nil {
				return WrapExitError(ExitFailure, "retention pass", res.Err)
			}
			return a.out.Render(res, func(w io.Writer) {
				renderResult(w, res)
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "notifications to keep (default from config)")
	cmd.Flags().IntVar(&sessionDays, "session-days", 0, "maximum session age in days (default from config)")

	return cmd
}

// NewMaintainCommand creates the maintain command, which runs the retention
// schedule in the foreground until interrupted.
func NewMaintainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run the retention schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := maintenance.New(a.notifications, a.sessions, a.cfg.Retention, a.logger)
			if err := r.Start(); err != nil {
				return WrapExitError(ExitCommandError, "starting maintenance", err)
			}
			defer r.Stop()

			a.logger.Info("maintenance running", zap.String("store", a.manager.Path()))
			for {
				select {
				case <-ctx.Done():
					return nil
				case res := <-r.Results():
					if err := a.out.Render(res, func(w io.Writer) { renderResult(w, res) }); err != nil {
						return err
					}
				}
			}
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored record and start with an empty store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "reset deletes all data; pass --yes to confirm")
			}

			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.manager.Reset(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "resetting store", err)
			}
			st := a.manager.Status()
			return a.out.Render(map[string]string{"path": st.Path, "state": st.State.String()}, func(w io.Writer) {
				fmt.Fprintf(w, "store %s reset (%s)\n", st.Path, theme.StateStyle(st.State.String()).Render(st.State.String()))
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")

	return cmd
}

func renderResult(w io.Writer, res maintenance.Result) {
	fmt.Fprintf(w, "%s removed %s notifications and %s sessions in %s\n",
		theme.MutedStyle.Render(res.StartedAt.Format("15:04:05")),
		humanize.Comma(res.NotificationsDeleted),
		humanize.Comma(res.SessionsDeleted),
		res.Duration.Round(time.Millisecond))
}
