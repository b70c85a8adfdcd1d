// Package email defines the notification data model shared by the address
// builder, the dispatcher and every delivery provider.
package email

import (
	"fmt"
	"strings"
)

// Kind selects the subject template and header fields of a notification.
type Kind int

const (
	KindJob Kind = iota
	KindReservation
	KindServer
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindJob:
		return "job"
	case KindReservation:
		return "reservation"
	case KindServer:
		return "server"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Mailpoint is the lifecycle event that triggered a notification. The
// underlying byte is the character used in mail point attributes.
type Mailpoint byte

const (
	MailpointAbort       Mailpoint = 'a'
	MailpointBegin       Mailpoint = 'b'
	MailpointEnd         Mailpoint = 'e'
	MailpointStageInFail Mailpoint = 's'
	MailpointConfirm     Mailpoint = 'c'
	MailpointNone        Mailpoint = 'n'
)

// String returns the configuration name of the mailpoint.
func (m Mailpoint) String() string {
	switch m {
	case MailpointAbort:
		return "abort"
	case MailpointBegin:
		return "begin"
	case MailpointEnd:
		return "end"
	case MailpointStageInFail:
		return "stagein"
	case MailpointConfirm:
		return "confirm"
	case MailpointNone:
		return "none"
	default:
		return fmt.Sprintf("mailpoint(%q)", byte(m))
	}
}

// ParseMailpoint accepts either the single attribute character ("a") or the
// configuration name ("abort").
func ParseMailpoint(s string) (Mailpoint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range []Mailpoint{MailpointAbort, MailpointBegin, MailpointEnd, MailpointStageInFail, MailpointConfirm, MailpointNone} {
		if s == string(rune(m)) || s == m.String() {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mailpoint %q", s)
}

// Request is a single notification handed to the dispatcher. The dispatcher
// copies it on submission; callers must not rely on later mutations being seen.
type Request struct {
	Kind Kind

	// From is the envelope sender, already in "<user@domain>" form.
	From string

	// Recipients is the space-separated recipient list produced by the
	// address builder. An empty list makes the request a no-op.
	Recipients string

	// ID is the job or reservation identifier, empty for server mail.
	ID string

	// Name is the job or reservation name, empty for server mail.
	Name string

	Mailpoint Mailpoint

	// Text is optional free-form text appended after the canned line.
	Text string

	// ServerHost names the scheduling server in server-kind subjects.
	ServerHost string
}

// RecipientList splits Recipients on whitespace, preserving order.
func (r *Request) RecipientList() []string {
	return strings.Fields(r.Recipients)
}

// EnvelopeFrom returns From without its angle brackets.
func (r *Request) EnvelopeFrom() string {
	return strings.TrimSuffix(strings.TrimPrefix(r.From, "<"), ">")
}
