package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/notchnoti/notchstore/internal/model"
	"github.com/notchnoti/notchstore/internal/store"
	"github.com/notchnoti/notchstore/internal/theme"
)

// NewNotificationsCommand creates the notifications command group.
func NewNotificationsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"n"},
		Short:   "Browse stored notifications",
	}

	cmd.AddCommand(newNotificationsListCommand(opts))
	cmd.AddCommand(newNotificationsSearchCommand(opts))

	return cmd
}

type pageFlags struct {
	page int
	size int
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.page, "page", 0, "page number, 0 is the newest")
	cmd.Flags().IntVar(&p.size, "size", 20, "records per page")
}

func (p *pageFlags) validate() error {
	if p.page < 0 || p.size < 0 {
		return NewExitError(ExitCommandError, "--page and --size must not be negative")
	}
	return nil
}

func newNotificationsListCommand(opts *RootOptions) *cobra.Command {
	var pf pageFlags
	var types []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.validate(); err != nil {
				return err
			}
			filter := store.NotificationFilter{Limit: pf.size, Offset: pf.page * pf.size}
			for _, raw := range types {
				t, ok := model.ParseNotificationType(raw)
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown notification type %q", raw))
				}
				filter.Types = append(filter.Types, t)
			}

			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var recs []model.NotificationRecord
			if pf.size > 0 {
				recs, err = a.notifications.Query(cmd.Context(), filter)
				if err != nil {
					return WrapExitError(ExitFailure, "listing notifications", err)
				}
			}
			return a.out.Render(recs, func(w io.Writer) {
				renderNotifications(w, recs)
			})
		},
	}

	pf.register(cmd)
	cmd.Flags().StringSliceVar(&types, "type", nil, "only these types (repeatable)")

	return cmd
}

func newNotificationsSearchCommand(opts *RootOptions) *cobra.Command {
	var pf pageFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find notifications whose title or message contains query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.validate(); err != nil {
				return err
			}

			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.notifications.Search(cmd.Context(), args[0], pf.page, pf.size)
			if err != nil {
				return WrapExitError(ExitFailure, "searching notifications", err)
			}
			return a.out.Render(recs, func(w io.Writer) {
				renderNotifications(w, recs)
			})
		},
	}

	pf.register(cmd)

	return cmd
}

func renderNotifications(w io.Writer, recs []model.NotificationRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, theme.MutedStyle.Render("no notifications"))
		return
	}
	for _, r := range recs {
		line := []string{
			theme.MutedStyle.Render(humanize.Time(r.Timestamp)),
			theme.TypeStyle(r.Type).Render(string(r.Type)),
			theme.PriorityStyle(r.Priority).Render(r.Priority.String()),
			r.Title,
		}
		if p := r.Metadata.Project(); p != "" {
			line = append(line, theme.MutedStyle.Render("("+p+")"))
		}
		if r.UserChoice != nil {
			line = append(line, "-> "+*r.UserChoice)
		}
		fmt.Fprintln(w, strings.Join(line, " "))
	}
}
