// Package main is the entry point for the job mail notifier.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shineum/jobmail/internal/address"
	"github.com/shineum/jobmail/internal/config"
	"github.com/shineum/jobmail/internal/dispatch"
	"github.com/shineum/jobmail/internal/email"
	"github.com/shineum/jobmail/internal/metrics"
	"github.com/shineum/jobmail/internal/notify"
	"github.com/shineum/jobmail/internal/provider"
	"github.com/shineum/jobmail/internal/provider/graph"
	"github.com/shineum/jobmail/internal/provider/sendmail"
	"github.com/shineum/jobmail/internal/provider/ses"
	"github.com/shineum/jobmail/internal/provider/stdout"
	"github.com/shineum/jobmail/internal/smtp"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The stdout provider writes to out.
func newRootCmd(out io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "jobmail",
		Short:        "Send job, reservation and server notifications by mail",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")

	run := func(cmd *cobra.Command, send func(n *notify.Notifier) bool) error {
		return runNotification(cmd.Context(), configPath, cmd.OutOrStdout(), send)
	}

	root.AddCommand(jobCmd(run))
	root.AddCommand(resvCmd(run))
	root.AddCommand(serverCmd(run))
	return root
}

type runFunc func(cmd *cobra.Command, send func(n *notify.Notifier) bool) error

// runNotification wires the delivery pipeline, sends one notification and
// waits for the dispatcher to drain. Delivery failures are logged, not
// returned.
func runNotification(ctx context.Context, configPath string, out io.Writer, send func(n *notify.Notifier) bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return err
	}

	setupLogger(cfg.Logging.Level)

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	prov, err := selectProvider(ctx, cfg, catalog, out)
	if err != nil {
		slog.Error("failed to create delivery provider", "error", err)
		return err
	}

	builder := address.NewBuilder(address.Config{
		RelayHost:     cfg.Mail.RelayHost,
		DefaultDomain: cfg.Mail.DefaultDomain,
		Capacity:      cfg.Mail.AddressCapacity,
	}, slog.Default())

	dispatcher := dispatch.New(prov, cfg.Dispatch.MaxInFlight, slog.Default())

	notifier := notify.New(notify.Config{
		From:       cfg.Mail.From,
		FromSet:    cfg.Mail.FromSet,
		ServerHost: cfg.Server.Host,
	}, builder, dispatcher, slog.Default())

	if send(notifier) {
		slog.Debug("notification dispatched", "provider", prov.Name())
	}

	stopCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout())
	defer cancel()
	if err := dispatcher.Stop(stopCtx); err != nil {
		slog.Warn("exiting with deliveries in flight", "error", err)
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			slog.Error("failed to export metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectProvider chooses the delivery backend named by mail.delivery.
func selectProvider(ctx context.Context, cfg *config.Config, catalog email.Catalog, out io.Writer) (provider.Provider, error) {
	switch cfg.Mail.Delivery {
	case config.DeliverySMTP:
		slog.Debug("using smtp provider",
			"server", cfg.SMTP.Server,
			"port", cfg.SMTP.Port,
		)
		return smtp.NewProvider(smtp.ProviderConfig{
			Server:         cfg.SMTP.Server,
			Port:           cfg.SMTP.Port,
			ConnectTimeout: cfg.ConnectTimeout(),
			ReplyTimeout:   cfg.ReplyTimeout(),
			Catalog:        catalog,
			Logger:         slog.Default(),
		}), nil

	case config.DeliverySendmail:
		slog.Debug("using sendmail provider", "path", cfg.Sendmail.Path)
		return sendmail.New(cfg.Sendmail.Path, catalog, slog.Default()), nil

	case config.DeliverySES:
		slog.Debug("using AWS SES provider",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
		)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
			Catalog:         catalog,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case config.DeliveryGraph:
		slog.Debug("using Microsoft Graph provider",
			"tenant_id", cfg.Graph.TenantID,
			"sender", cfg.Graph.Sender,
		)
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
			Catalog:      catalog,
			Logger:       slog.Default(),
		}), nil

	case config.DeliveryStdout:
		return stdout.NewWithWriter(catalog, out), nil

	default:
		return nil, fmt.Errorf("unknown delivery provider %q", cfg.Mail.Delivery)
	}
}
