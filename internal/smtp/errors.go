package smtp

import (
	"errors"
	"fmt"
)

// Connection and transfer failures. Dial and WriteFragments wrap one of
// these together with the underlying network error.
var (
	ErrResolutionFailed  = errors.New("smtp: host resolution failed")
	ErrConnectTimeout    = errors.New("smtp: connect timed out")
	ErrConnectionRefused = errors.New("smtp: connection refused")
	ErrIO                = errors.New("smtp: i/o error")
)

// ProtocolError reports a reply code other than the one a session step
// requires.
type ProtocolError struct {
	Step string
	Code int
	Want int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("smtp: %s: unexpected reply %d, want %d", e.Step, e.Code, e.Want)
}

// Reason returns a short label for err, suitable for a metric label.
func Reason(err error) string {
	var perr *ProtocolError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &perr):
		return "protocol"
	case errors.Is(err, ErrResolutionFailed):
		return "resolution"
	case errors.Is(err, ErrConnectTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionRefused):
		return "refused"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "other"
	}
}
