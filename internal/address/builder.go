package address

import (
	"log/slog"
	"strings"

	"github.com/shineum/jobmail/internal/metrics"
)

// logPreviewLen is how much of an oversized list or address is logged.
const logPreviewLen = 77

// Config holds the settings the builder reads. It is copied on construction.
type Config struct {
	// RelayHost qualifies addresses that carry no domain. Empty disables
	// qualification.
	RelayHost string

	// DefaultDomain completes sender addresses that carry no domain.
	DefaultDomain string

	// Capacity bounds the rendered recipient list. Zero means DefaultCapacity.
	Capacity int
}

// Builder derives recipient lists and sender addresses from job or
// reservation mail attributes.
type Builder struct {
	cfg    Config
	logger *slog.Logger
}

// NewBuilder creates a Builder. A nil logger uses slog.Default().
func NewBuilder(cfg Config, logger *slog.Logger) *Builder {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, logger: logger}
}

// BuildRecipients renders an explicit mail-user list. Each accepted address
// is followed by a space. Building stops at the first candidate that does not
// fit and truncated is reported; later candidates are not tried even if they
// would fit. Exact duplicates are skipped.
func (b *Builder) BuildRecipients(candidates []string) (list string, truncated bool) {
	buf := NewBuffer(b.cfg.Capacity)
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if c == "" {
			continue
		}

		// Separator plus terminator, matching the legacy accounting.
		cost := len(c) + 2
		qualify := b.cfg.RelayHost != "" && !strings.Contains(c, "@")
		addr := c
		if qualify {
			cost += len(b.cfg.RelayHost) + 1
			addr = c + "@" + b.cfg.RelayHost
		}

		if _, dup := seen[addr]; dup {
			continue
		}

		if !buf.Append(cost, addr, " ") {
			b.logger.Warn("email list is too long",
				"list", preview(buf.String()),
				"rejected", c,
			)
			metrics.RecipientTruncations.WithLabelValues("list").Inc()
			return buf.String(), true
		}
		seen[addr] = struct{}{}
	}

	return buf.String(), false
}

// BuildOwner renders the single owner address used when no mail-user list is
// set. An owner longer than the buffer is cut silently. With a relay host
// configured, any domain is replaced by the relay host; if that would not
// fit, the address is returned unmodified and truncated is reported.
func (b *Builder) BuildOwner(owner string) (addr string, truncated bool) {
	if len(owner) > b.cfg.Capacity-1 {
		owner = owner[:b.cfg.Capacity-1]
	}

	if b.cfg.RelayHost == "" {
		return owner, false
	}

	local := owner
	if i := strings.IndexByte(owner, '@'); i >= 0 {
		local = owner[:i]
	}

	buf := NewBuffer(b.cfg.Capacity)
	if !buf.Append(len(local)+len(b.cfg.RelayHost)+1, local, "@", b.cfg.RelayHost) {
		b.logger.Warn("email address is too long",
			"address", preview(owner),
		)
		metrics.RecipientTruncations.WithLabelValues("owner").Inc()
		return owner, true
	}
	return buf.String(), false
}

// BuildSender wraps from in angle brackets, appending the default domain
// when from has none.
func (b *Builder) BuildSender(from string) string {
	return FormatSender(from, b.cfg.DefaultDomain)
}

// FormatSender is BuildSender without a Builder.
func FormatSender(from, defaultDomain string) string {
	if strings.Contains(from, "@") || defaultDomain == "" {
		return "<" + from + ">"
	}
	return "<" + from + "@" + defaultDomain + ">"
}

// Domain returns the part of addr after the first '@', or empty.
func Domain(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

func preview(s string) string {
	if len(s) <= logPreviewLen {
		return s
	}
	return s[:logPreviewLen] + "..."
}
