// Package stdout implements a Provider that prints notifications to standard
// output instead of delivering them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/jobmail/internal/email"
)

const separator = "========================================\n"

// Provider prints each rendered notification in a human-readable format.
type Provider struct {
	catalog email.Catalog

	// mu keeps concurrent deliveries from interleaving their output.
	mu sync.Mutex

	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New(catalog email.Catalog) *Provider {
	return &Provider{catalog: catalog, writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(catalog email.Catalog, w io.Writer) *Provider {
	return &Provider{catalog: catalog, writer: w}
}

// Deliver prints the message that would be sent to recipient.
func (p *Provider) Deliver(_ context.Context, req *email.Request, recipient string) error {
	var b strings.Builder

	b.WriteString(separator)
	b.WriteString(fmt.Sprintf("From: %s\n", req.EnvelopeFrom()))
	b.WriteString(email.Message(req, p.catalog, recipient))
	b.WriteString(separator)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}
