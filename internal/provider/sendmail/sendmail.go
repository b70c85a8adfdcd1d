// Package sendmail implements a Provider that hands notifications to the
// local mail transfer agent through its sendmail-compatible executable.
package sendmail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/shineum/jobmail/internal/email"
)

// DefaultPath is the sendmail executable used when none is configured.
const DefaultPath = "/usr/sbin/sendmail"

// ErrUnsafeRecipient is returned for a recipient sendmail would parse as an
// option.
var ErrUnsafeRecipient = errors.New("recipient starts with '-'")

// Provider runs one sendmail process per recipient.
type Provider struct {
	path    string
	catalog email.Catalog
	logger  *slog.Logger
}

// New creates a Provider invoking the executable at path.
func New(path string, catalog email.Catalog, logger *slog.Logger) *Provider {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{path: path, catalog: catalog, logger: logger}
}

// Deliver runs "<path> -f <from> <recipient>" with the rendered message on
// standard input. A non-zero exit status is a delivery failure.
func (p *Provider) Deliver(ctx context.Context, req *email.Request, recipient string) error {
	if strings.HasPrefix(recipient, "-") {
		p.logger.Error("refusing option-like recipient", "recipient", recipient, "path", p.path)
		return fmt.Errorf("sendmail %q: %w", recipient, ErrUnsafeRecipient)
	}

	cmd := exec.CommandContext(ctx, p.path, "-f", req.EnvelopeFrom(), recipient)
	cmd.Stdin = strings.NewReader(email.Message(req, p.catalog, recipient))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.logger.Error("sendmail failed",
			"recipient", recipient,
			"path", p.path,
			"stderr", strings.TrimSpace(stderr.String()),
			"error", err,
		)
		return fmt.Errorf("sendmail %s: %w", recipient, err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "sendmail"
}
