package smtp

import (
	"context"
	"log/slog"
	"time"

	"github.com/shineum/jobmail/internal/address"
	"github.com/shineum/jobmail/internal/email"
)

// DefaultPort is the SMTP port dialed when none is configured.
const DefaultPort = 25

// ProviderConfig holds the configuration for creating a Provider.
type ProviderConfig struct {
	// Server, when set, is dialed for every recipient. Otherwise the
	// recipient's domain is dialed, or localhost for bare names.
	Server string

	Port           int
	ConnectTimeout time.Duration
	ReplyTimeout   time.Duration
	Catalog        email.Catalog

	// Dialer and Resolver default to the net package implementations.
	Dialer   Dialer
	Resolver Resolver
	Logger   *slog.Logger
}

// Provider delivers notifications by speaking SMTP directly to a mail
// server, one fresh connection per recipient.
type Provider struct {
	cfg    ProviderConfig
	logger *slog.Logger
}

// NewProvider creates a Provider with the given configuration.
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg, logger: logger}
}

// Deliver sends req to a single recipient. The connection is closed on
// every return path.
func (p *Provider) Deliver(ctx context.Context, req *email.Request, recipient string) error {
	mailhost := address.Domain(recipient)
	if mailhost == "" {
		mailhost = "localhost"
	}
	host := mailhost
	if p.cfg.Server != "" {
		host = p.cfg.Server
	}

	logger := p.logger.With("recipient", recipient, "host", host)

	t, err := Dial(ctx, p.cfg.Dialer, p.cfg.Resolver, host, p.cfg.Port, p.cfg.ConnectTimeout, p.cfg.ReplyTimeout)
	if err != nil {
		logger.Error("socket creation and connection failed", "error", err)
		return err
	}
	defer t.Close()

	return NewSession(t, p.cfg.Catalog, logger).Run(req, recipient, mailhost)
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}
