package email

import (
	"strings"
)

// Lines renders the headers and body sent after DATA in an SMTP session,
// one element per line without terminators. The header block ends with the
// first empty line.
func Lines(req *Request, cat Catalog, recipient string) []string {
	id, name := singleLine(req.ID), singleLine(req.Name)
	lines := []string{"To: " + singleLine(recipient)}

	switch req.Kind {
	case KindReservation:
		lines = append(lines,
			"Subject: PBS RESERVATION "+id,
			"",
			"Subject: PBS Reservation Id: "+id,
			"Reservation Name: "+name,
		)
	case KindServer:
		lines = append(lines,
			"Subject: PBS Server on "+singleLine(req.ServerHost),
			"",
		)
	default:
		lines = append(lines,
			"Subject: PBS JOB "+id,
			"",
			"Subject: PBS Job Id: "+id,
			"Job Name: "+name,
		)
	}

	return append(lines, bodyLines(req, cat)...)
}

// Message renders the complete message piped to a local mail transfer agent.
// Lines end in a bare newline, as sendmail expects on its standard input.
func Message(req *Request, cat Catalog, recipient string) string {
	var b strings.Builder

	b.WriteString("To: " + singleLine(recipient) + "\n")
	b.WriteString("Subject: " + Subject(req) + "\n\n")
	for _, line := range identLines(req) {
		b.WriteString(line + "\n")
	}
	for _, line := range bodyLines(req, cat) {
		b.WriteString(line + "\n")
	}
	return b.String()
}

// Subject returns the single subject line used by providers that carry the
// subject out of band.
func Subject(req *Request) string {
	switch req.Kind {
	case KindReservation:
		return "PBS RESERVATION " + singleLine(req.ID)
	case KindServer:
		return "PBS Server on " + singleLine(req.ServerHost)
	default:
		return "PBS JOB " + singleLine(req.ID)
	}
}

// Body returns the message body for providers that carry the subject out of
// band, with the identifying lines of the sendmail layout.
func Body(req *Request, cat Catalog) string {
	lines := append(identLines(req), bodyLines(req, cat)...)
	return strings.Join(lines, "\n") + "\n"
}

// identLines returns the id and name lines of the sendmail layout. Server
// notifications have none.
func identLines(req *Request) []string {
	id, name := singleLine(req.ID), singleLine(req.Name)
	switch req.Kind {
	case KindReservation:
		return []string{"PBS Reservation Id: " + id, "Reservation Name:   " + name}
	case KindServer:
		return nil
	default:
		return []string{"PBS Job Id: " + id, "Job Name:   " + name}
	}
}

// bodyLines returns the canned line for the mailpoint, if any, followed by
// the free text. Embedded newlines are split into separate lines.
func bodyLines(req *Request, cat Catalog) []string {
	var lines []string
	if line, ok := cat.Line(req.Kind, req.Mailpoint); ok {
		lines = append(lines, splitLines(line)...)
	}
	if req.Text != "" {
		lines = append(lines, splitLines(req.Text)...)
	}
	return lines
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// singleLine replaces line breaks in a value that must stay on one line.
func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
}
