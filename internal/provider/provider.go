// Package provider defines the interface for notification delivery backends.
package provider

import (
	"context"

	"github.com/shineum/jobmail/internal/email"
)

// Provider is the interface that delivery backends must implement.
// The dispatcher calls Deliver once per resolved recipient, in order.
type Provider interface {
	// Deliver sends req to a single recipient. It returns an error if the
	// delivery fails; the dispatcher logs it and moves on.
	Deliver(ctx context.Context, req *email.Request, recipient string) error

	// Name returns the human-readable name of this provider.
	Name() string
}
