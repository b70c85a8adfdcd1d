// Package notify decides whether a lifecycle event of a job, a reservation
// or the server warrants mail, builds the addresses and hands the
// notification to the dispatcher.
package notify

import (
	"log/slog"
	"strings"

	"github.com/shineum/jobmail/internal/address"
	"github.com/shineum/jobmail/internal/email"
)

// Job is the mail-related metadata of a job.
type Job struct {
	ID    string
	Name  string
	Owner string

	// MailUsers, when non-nil, replaces the owner as the recipient list.
	// An empty non-nil list sends nothing.
	MailUsers []string

	// MailPoints holds the subscribed mailpoint characters ("abe").
	// Empty means the job never set them.
	MailPoints string
}

// Reservation is the mail-related metadata of a reservation.
type Reservation struct {
	ID         string
	Name       string
	Owner      string
	MailUsers  []string
	MailPoints string
}

// Dispatcher accepts notifications for background delivery.
type Dispatcher interface {
	Dispatch(req *email.Request)
}

// Config holds the sender settings the notifier reads.
type Config struct {
	// From is the configured sender, without brackets or default domain.
	From string

	// FromSet reports whether From was configured rather than defaulted.
	FromSet bool

	// ServerHost names the server in server notifications.
	ServerHost string
}

// Notifier turns lifecycle events into dispatched notifications.
type Notifier struct {
	cfg        Config
	builder    *address.Builder
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New creates a Notifier.
func New(cfg Config, builder *address.Builder, dispatcher Dispatcher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:        cfg,
		builder:    builder,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// MailJob notifies the job's mail users, or its owner, of mp. Unless force
// is set, mail goes out only for subscribed mailpoints, or for aborts when
// the job subscribed to none. It reports whether a notification was
// dispatched.
func (n *Notifier) MailJob(job *Job, mp email.Mailpoint, force bool, text string) bool {
	if !force {
		if job.MailPoints != "" {
			if !subscribed(job.MailPoints, mp) {
				return n.skip("job", job.ID, mp, "not subscribed")
			}
		} else if mp != email.MailpointAbort {
			return n.skip("job", job.ID, mp, "default mailpoints")
		}
	}

	return n.dispatch(&email.Request{
		Kind:       email.KindJob,
		From:       n.builder.BuildSender(n.cfg.From),
		Recipients: n.recipients(job.ID, job.MailUsers, job.Owner),
		ID:         job.ID,
		Name:       job.Name,
		Mailpoint:  mp,
		Text:       text,
	})
}

// MailReservation notifies the reservation's mail users, or its owner, of
// mp. Unless force is set, mail goes out only for subscribed mailpoints, or
// for aborts and confirmations when none were subscribed. Subscribing to
// "n" suppresses mail even when forced.
func (n *Notifier) MailReservation(resv *Reservation, mp email.Mailpoint, force bool, text string) bool {
	if !force {
		if resv.MailPoints != "" {
			if !subscribed(resv.MailPoints, mp) {
				return n.skip("reservation", resv.ID, mp, "not subscribed")
			}
		} else if mp != email.MailpointAbort && mp != email.MailpointConfirm {
			return n.skip("reservation", resv.ID, mp, "default mailpoints")
		}
	}
	if subscribed(resv.MailPoints, email.MailpointNone) {
		return n.skip("reservation", resv.ID, mp, "mail disabled")
	}

	return n.dispatch(&email.Request{
		Kind:       email.KindReservation,
		From:       n.builder.BuildSender(n.cfg.From),
		Recipients: n.recipients(resv.ID, resv.MailUsers, resv.Owner),
		ID:         resv.ID,
		Name:       resv.Name,
		Mailpoint:  mp,
		Text:       text,
	})
}

// MailServer sends a server notification to the configured sender. Unless
// force is set, nothing is sent while the sender is defaulted.
func (n *Notifier) MailServer(mp email.Mailpoint, force bool, text string) bool {
	if !force && !n.cfg.FromSet {
		return n.skip("server", "", mp, "mail.from not configured")
	}

	return n.dispatch(&email.Request{
		Kind:       email.KindServer,
		From:       n.builder.BuildSender(n.cfg.From),
		Recipients: n.cfg.From,
		Mailpoint:  mp,
		Text:       text,
		ServerHost: n.cfg.ServerHost,
	})
}

func (n *Notifier) recipients(id string, mailUsers []string, owner string) string {
	if mailUsers != nil {
		list, truncated := n.builder.BuildRecipients(mailUsers)
		if truncated {
			n.logger.Debug("recipient list truncated", "id", id)
		}
		return list
	}
	addr, _ := n.builder.BuildOwner(owner)
	return addr
}

func (n *Notifier) dispatch(req *email.Request) bool {
	if strings.TrimSpace(req.Recipients) == "" {
		return n.skip(req.Kind.String(), req.ID, req.Mailpoint, "no recipients")
	}
	n.dispatcher.Dispatch(req)
	return true
}

func (n *Notifier) skip(kind, id string, mp email.Mailpoint, reason string) bool {
	n.logger.Debug("notification not sent",
		"kind", kind,
		"id", id,
		"mailpoint", mp.String(),
		"reason", reason,
	)
	return false
}

func subscribed(points string, mp email.Mailpoint) bool {
	return strings.IndexByte(points, byte(mp)) >= 0
}
