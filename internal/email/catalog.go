package email

// Catalog maps mailpoints to the canned line placed at the top of a
// notification body. Job and reservation notifications use separate tables.
type Catalog struct {
	Job         map[Mailpoint]string
	Reservation map[Mailpoint]string
}

// DefaultCatalog returns the built-in message table.
func DefaultCatalog() Catalog {
	return Catalog{
		Job: map[Mailpoint]string{
			MailpointAbort:       "Aborted by PBS Server ",
			MailpointBegin:       "Begun execution",
			MailpointEnd:         "Execution terminated",
			MailpointStageInFail: "File stage in failed, see below.\nJob will be retried later, please investigate and correct problem.",
		},
		Reservation: map[Mailpoint]string{
			MailpointAbort:   "Aborted by Server, Scheduler, or User ",
			MailpointBegin:   "Reservation period starting",
			MailpointEnd:     "Reservation terminated",
			MailpointConfirm: "CONFIRM reservation",
		},
	}
}

// Line returns the canned line for a notification of the given kind.
// Server notifications share the job table.
func (c Catalog) Line(kind Kind, mp Mailpoint) (string, bool) {
	table := c.Job
	if kind == KindReservation {
		table = c.Reservation
	}
	line, ok := table[mp]
	return line, ok
}

// Merge returns a copy of c with the entries of override replacing the
// built-in ones. Empty override values are ignored.
func (c Catalog) Merge(override Catalog) Catalog {
	out := Catalog{
		Job:         make(map[Mailpoint]string, len(c.Job)),
		Reservation: make(map[Mailpoint]string, len(c.Reservation)),
	}
	for k, v := range c.Job {
		out.Job[k] = v
	}
	for k, v := range c.Reservation {
		out.Reservation[k] = v
	}
	for k, v := range override.Job {
		if v != "" {
			out.Job[k] = v
		}
	}
	for k, v := range override.Reservation {
		if v != "" {
			out.Reservation[k] = v
		}
	}
	return out
}
