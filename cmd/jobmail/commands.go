package main

import (
	"github.com/spf13/cobra"

	"github.com/shineum/jobmail/internal/email"
	"github.com/shineum/jobmail/internal/notify"
)

// eventFlags are shared by every subcommand.
type eventFlags struct {
	mailpoint string
	force     bool
	text      string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mailpoint, "mailpoint", "", "event that triggered the mail: a|b|e|s|c or abort|begin|end|stagein|confirm")
	cmd.Flags().BoolVar(&f.force, "force", false, "send regardless of the subscribed mail points")
	cmd.Flags().StringVar(&f.text, "text", "", "free-form text appended to the message")
	_ = cmd.MarkFlagRequired("mailpoint")
}

// ownerFlags describe the mail attributes of a job or reservation.
type ownerFlags struct {
	id         string
	name       string
	owner      string
	mailUsers  []string
	mailPoints string
}

func (f *ownerFlags) register(cmd *cobra.Command, what string) {
	cmd.Flags().StringVar(&f.id, "id", "", what+" identifier")
	cmd.Flags().StringVar(&f.name, "name", "", what+" name")
	cmd.Flags().StringVar(&f.owner, "owner", "", what+" owner address")
	cmd.Flags().StringSliceVar(&f.mailUsers, "mail-users", nil, "recipients replacing the owner (comma separated)")
	cmd.Flags().StringVar(&f.mailPoints, "mail-points", "", "subscribed mail points, e.g. abe")
	_ = cmd.MarkFlagRequired("id")
}

// users returns nil when --mail-users was not given, so the owner is used.
func (f *ownerFlags) users(cmd *cobra.Command) []string {
	if !cmd.Flags().Changed("mail-users") {
		return nil
	}
	if f.mailUsers == nil {
		return []string{}
	}
	return f.mailUsers
}

func jobCmd(run runFunc) *cobra.Command {
	var ev eventFlags
	var of ownerFlags

	cmd := &cobra.Command{
		Use:   "job",
		Short: "Notify the owner or mail users of a job event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mp, err := email.ParseMailpoint(ev.mailpoint)
			if err != nil {
				return err
			}
			job := &notify.Job{
				ID:         of.id,
				Name:       of.name,
				Owner:      of.owner,
				MailUsers:  of.users(cmd),
				MailPoints: of.mailPoints,
			}
			return run(cmd, func(n *notify.Notifier) bool {
				return n.MailJob(job, mp, ev.force, ev.text)
			})
		},
	}
	ev.register(cmd)
	of.register(cmd, "job")
	return cmd
}

func resvCmd(run runFunc) *cobra.Command {
	var ev eventFlags
	var of ownerFlags

	cmd := &cobra.Command{
		Use:   "resv",
		Short: "Notify the owner or mail users of a reservation event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mp, err := email.ParseMailpoint(ev.mailpoint)
			if err != nil {
				return err
			}
			resv := &notify.Reservation{
				ID:         of.id,
				Name:       of.name,
				Owner:      of.owner,
				MailUsers:  of.users(cmd),
				MailPoints: of.mailPoints,
			}
			return run(cmd, func(n *notify.Notifier) bool {
				return n.MailReservation(resv, mp, ev.force, ev.text)
			})
		},
	}
	ev.register(cmd)
	of.register(cmd, "reservation")
	return cmd
}

func serverCmd(run runFunc) *cobra.Command {
	var ev eventFlags

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Notify the server administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mp, err := email.ParseMailpoint(ev.mailpoint)
			if err != nil {
				return err
			}
			return run(cmd, func(n *notify.Notifier) bool {
				return n.MailServer(mp, ev.force, ev.text)
			})
		},
	}
	ev.register(cmd)
	return cmd
}
