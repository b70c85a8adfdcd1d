// Package smtp implements the minimal SMTP client used to deliver
// notifications: one connection, one message, one recipient.
package smtp

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shineum/jobmail/internal/email"
)

// Session states for the SMTP client state machine.
type state int

const (
	stateConnecting state = iota
	stateGreeted
	stateHelo
	stateFromSet
	stateRcptSet
	stateDataOpen
	stateBodySent
	stateQuitting
	stateClosed
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateGreeted:
		return "greeted"
	case stateHelo:
		return "helo"
	case stateFromSet:
		return "from-set"
	case stateRcptSet:
		return "rcpt-set"
	case stateDataOpen:
		return "data-open"
	case stateBodySent:
		return "body-sent"
	case stateQuitting:
		return "quitting"
	case stateClosed:
		return "closed"
	case stateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SMTP reply codes the session requires.
const (
	replyServiceReady   = 220
	replyServiceClosing = 221
	replyOK             = 250
	replyStartMailInput = 354
)

// step is one command/reply exchange. A step without fragments only reads
// a reply.
type step struct {
	name   string
	frags  []string
	expect int
	next   state
}

// Session drives a Transport through the command sequence for one message
// and one recipient. It does not close the transport.
type Session struct {
	t       *Transport
	catalog email.Catalog
	logger  *slog.Logger

	state   state
	expect  int
	written int
}

// NewSession creates a session over an established transport.
func NewSession(t *Transport, catalog email.Catalog, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		t:       t,
		catalog: catalog,
		logger:  logger,
		state:   stateConnecting,
	}
}

// Run sends req to recipient, greeting the server with heloHost. On the
// first failed write or unexpected reply the session is aborted and the
// error returned; nothing further is sent.
func (s *Session) Run(req *email.Request, recipient, heloHost string) error {
	head := []step{
		{name: "connect", expect: replyServiceReady, next: stateGreeted},
		{name: "HELO", frags: []string{"HELO ", heloHost, "\r\n"}, expect: replyOK, next: stateHelo},
		{name: "MAIL FROM", frags: []string{"MAIL FROM: ", req.From, "\r\n"}, expect: replyOK, next: stateFromSet},
		{name: "RCPT TO", frags: []string{"RCPT TO: <", recipient, ">\r\n"}, expect: replyOK, next: stateRcptSet},
		{name: "DATA", frags: []string{"DATA\r\n"}, expect: replyStartMailInput, next: stateDataOpen},
	}
	for _, st := range head {
		if err := s.exchange(st); err != nil {
			return err
		}
	}

	for _, line := range email.Lines(req, s.catalog, recipient) {
		if strings.HasPrefix(line, ".") {
			line = "." + line
		}
		if err := s.write("body", line, "\r\n"); err != nil {
			return err
		}
	}
	s.state = stateBodySent

	tail := []step{
		{name: "end-of-data", frags: []string{".\r\n"}, expect: replyOK, next: stateQuitting},
		{name: "QUIT", frags: []string{"QUIT\r\n"}, expect: replyServiceClosing, next: stateClosed},
	}
	for _, st := range tail {
		if err := s.exchange(st); err != nil {
			return err
		}
	}

	s.logger.Debug("smtp session completed",
		"recipient", recipient,
		"bytes_written", s.written,
	)
	return nil
}

// Written returns the number of bytes sent so far.
func (s *Session) Written() int {
	return s.written
}

// exchange sends the step's command, if any, and checks the reply code.
func (s *Session) exchange(st step) error {
	if len(st.frags) > 0 {
		if err := s.write(st.name, st.frags...); err != nil {
			return err
		}
	}

	s.expect = st.expect
	code := s.t.ReadReply()
	if code != s.expect {
		s.state = stateAborted
		err := &ProtocolError{Step: st.name, Code: code, Want: s.expect}
		s.logger.Error("smtp step failed",
			"step", st.name,
			"code", code,
			"want", s.expect,
			"bytes_written", s.written,
		)
		return err
	}

	s.state = st.next
	return nil
}

func (s *Session) write(stepName string, frags ...string) error {
	n, err := s.t.WriteFragments(frags...)
	s.written += n
	if err != nil {
		s.state = stateAborted
		s.logger.Error("smtp write failed",
			"step", stepName,
			"bytes_written", s.written,
			"error", err,
		)
		return fmt.Errorf("%s: %w", stepName, err)
	}
	return nil
}
