// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the job mail notifier.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shineum/jobmail/internal/email"
)

// DefaultMailFrom is the sender used when mail.from is not configured.
const DefaultMailFrom = "adm"

// Delivery backends accepted by mail.delivery.
const (
	DeliverySMTP     = "smtp"
	DeliverySendmail = "sendmail"
	DeliverySES      = "ses"
	DeliveryGraph    = "graph"
	DeliveryStdout   = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Mail     MailConfig     `yaml:"mail"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Sendmail SendmailConfig `yaml:"sendmail"`
	SES      SESConfig      `yaml:"ses"`
	Graph    GraphConfig    `yaml:"graph"`
	Server   ServerConfig   `yaml:"server"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Messages MessagesConfig `yaml:"messages"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MailConfig holds sender and addressing configuration.
type MailConfig struct {
	From string `yaml:"from"`

	// FromSet records whether From was configured explicitly rather than
	// defaulted. Server notifications are only sent when it is.
	FromSet bool `yaml:"-"`

	DefaultDomain   string `yaml:"default_domain"`
	RelayHost       string `yaml:"relay_host"`
	AddressCapacity int    `yaml:"address_capacity"`
	Delivery        string `yaml:"delivery"`
}

// SMTPConfig holds outbound SMTP client configuration. Timeouts are in
// seconds.
type SMTPConfig struct {
	Server         string `yaml:"server"`
	Port           int    `yaml:"port"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	ReplyTimeout   int    `yaml:"reply_timeout"`
}

// SendmailConfig holds the local mail agent configuration.
type SendmailConfig struct {
	Path string `yaml:"path"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// ServerConfig describes the scheduling server sending the notifications.
type ServerConfig struct {
	Host string `yaml:"host"`
}

// DispatchConfig bounds background delivery work.
type DispatchConfig struct {
	MaxInFlight     int `yaml:"max_in_flight"`
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// MessagesConfig overrides canned message lines, keyed by mailpoint name
// ("abort") or character ("a").
type MessagesConfig struct {
	Job         map[string]string `yaml:"job"`
	Reservation map[string]string `yaml:"reservation"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	cfg.finish()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()
	cfg.finish()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Mail.Delivery {
	case DeliverySMTP, DeliverySendmail, DeliveryStdout:
	case DeliverySES:
		if !c.SESConfigured() {
			return fmt.Errorf("mail.delivery is %q but ses.region is not set", DeliverySES)
		}
	case DeliveryGraph:
		if !c.GraphConfigured() {
			return fmt.Errorf("mail.delivery is %q but graph.tenant_id, client_id, client_secret and sender are not all set", DeliveryGraph)
		}
	default:
		return fmt.Errorf("unknown mail.delivery %q", c.Mail.Delivery)
	}

	if c.Mail.AddressCapacity <= 0 {
		return fmt.Errorf("mail.address_capacity must be positive, got %d", c.Mail.AddressCapacity)
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port out of range: %d", c.SMTP.Port)
	}
	if c.Dispatch.MaxInFlight <= 0 {
		return fmt.Errorf("dispatch.max_in_flight must be positive, got %d", c.Dispatch.MaxInFlight)
	}
	for _, timeout := range []struct {
		key string
		val int
	}{
		{"smtp.connect_timeout", c.SMTP.ConnectTimeout},
		{"smtp.reply_timeout", c.SMTP.ReplyTimeout},
		{"dispatch.shutdown_timeout", c.Dispatch.ShutdownTimeout},
	} {
		if timeout.val <= 0 {
			return fmt.Errorf("%s must be positive, got %d", timeout.key, timeout.val)
		}
	}

	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

// SESConfigured returns true if SES delivery has a region to talk to.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if all Graph API credentials are present.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// ConnectTimeout returns smtp.connect_timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.SMTP.ConnectTimeout) * time.Second
}

// ReplyTimeout returns smtp.reply_timeout as a duration.
func (c *Config) ReplyTimeout() time.Duration {
	return time.Duration(c.SMTP.ReplyTimeout) * time.Second
}

// ShutdownTimeout returns dispatch.shutdown_timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Dispatch.ShutdownTimeout) * time.Second
}

// Catalog returns the default message catalog with the configured
// overrides applied.
func (c *Config) Catalog() (email.Catalog, error) {
	job, err := parseMessages(c.Messages.Job)
	if err != nil {
		return email.Catalog{}, fmt.Errorf("messages.job: %w", err)
	}
	resv, err := parseMessages(c.Messages.Reservation)
	if err != nil {
		return email.Catalog{}, fmt.Errorf("messages.reservation: %w", err)
	}
	return email.DefaultCatalog().Merge(email.Catalog{Job: job, Reservation: resv}), nil
}

func parseMessages(in map[string]string) (map[email.Mailpoint]string, error) {
	out := make(map[email.Mailpoint]string, len(in))
	for k, v := range in {
		mp, err := email.ParseMailpoint(k)
		if err != nil {
			return nil, err
		}
		out[mp] = v
	}
	return out, nil
}

// applyDefaults sets sensible default values for all configuration fields.
// mail.from is left empty so finish can tell whether it was configured.
func (c *Config) applyDefaults() {
	c.Mail.DefaultDomain = "pbspro.com"
	c.Mail.AddressCapacity = 1024
	c.Mail.Delivery = DeliverySMTP
	c.SMTP.Port = 25
	c.SMTP.ConnectTimeout = 20
	c.SMTP.ReplyTimeout = 60
	c.Sendmail.Path = "/usr/sbin/sendmail"
	c.Dispatch.MaxInFlight = 64
	c.Dispatch.ShutdownTimeout = 120
	c.Logging.Level = "info"

	if host, err := os.Hostname(); err == nil {
		c.Server.Host = host
	} else {
		c.Server.Host = "localhost"
	}
}

// finish resolves values that depend on whether they were configured.
func (c *Config) finish() {
	if c.Mail.From != "" {
		c.Mail.FromSet = true
	} else {
		c.Mail.From = DefaultMailFrom
	}
	c.Mail.Delivery = strings.ToLower(c.Mail.Delivery)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString(&c.Mail.From, "MAIL_FROM")
	setString(&c.Mail.DefaultDomain, "MAIL_DEFAULT_DOMAIN")
	setString(&c.Mail.RelayHost, "MAIL_RELAY_HOST")
	setInt(&c.Mail.AddressCapacity, "MAIL_ADDRESS_CAPACITY")
	setString(&c.Mail.Delivery, "MAIL_DELIVERY")

	setString(&c.SMTP.Server, "SMTP_SERVER")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setInt(&c.SMTP.ConnectTimeout, "SMTP_CONNECT_TIMEOUT")
	setInt(&c.SMTP.ReplyTimeout, "SMTP_REPLY_TIMEOUT")

	setString(&c.Sendmail.Path, "SENDMAIL_PATH")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")

	setString(&c.Server.Host, "SERVER_HOST")

	setInt(&c.Dispatch.MaxInFlight, "DISPATCH_MAX_IN_FLIGHT")
	setInt(&c.Dispatch.ShutdownTimeout, "DISPATCH_SHUTDOWN_TIMEOUT")

	setString(&c.Metrics.Textfile, "METRICS_TEXTFILE")

	setString(&c.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// setInt ignores values that do not parse.
func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
