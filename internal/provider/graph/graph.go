// Package graph implements a Provider that delivers notifications through
// the Microsoft Graph sendMail API, authenticating as an application with
// OAuth2 client credentials.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shineum/jobmail/internal/email"
)

// DefaultTimeout bounds each HTTP request when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config holds the settings for New.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Sender is the mailbox the notifications are sent from. The
	// application needs the Mail.Send permission on it.
	Sender string

	Catalog email.Catalog
	Timeout time.Duration
	Logger  *slog.Logger
}

// Provider sends one sendMail request per recipient. A request rejected
// with 401 is repeated once with a fresh token; nothing else is retried.
type Provider struct {
	sendURL    string
	catalog    email.Catalog
	httpClient *http.Client
	token      *tokenCache
	logger     *slog.Logger
}

// APIError is a non-success response from the sendMail endpoint.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

// Reason labels the failure in delivery metrics.
func (e *APIError) Reason() string {
	return "api"
}

// New creates a Provider talking to the public Microsoft endpoints.
func New(cfg Config) *Provider {
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	sendURL := fmt.Sprintf("https://graph.microsoft.com/v1.0/users/%s/sendMail", url.PathEscape(cfg.Sender))

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return newWithOverrides(cfg, sendURL, tokenURL, &http.Client{Timeout: timeout})
}

// newWithOverrides creates a Provider with custom endpoints and client,
// used for testing.
func newWithOverrides(cfg Config, sendURL, tokenURL string, client *http.Client) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		sendURL:    sendURL,
		catalog:    cfg.Catalog,
		httpClient: client,
		token:      newTokenCache(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		logger:     logger,
	}
}

// Deliver sends req to recipient as a plain-text message.
func (p *Provider) Deliver(ctx context.Context, req *email.Request, recipient string) error {
	body, err := json.Marshal(buildSendMailRequest(recipient, req, p.catalog))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	err = p.post(ctx, body, false)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		p.logger.Info("refreshing Graph API token after 401", "recipient", recipient)
		err = p.post(ctx, body, true)
	}
	if err != nil {
		return err
	}

	p.logger.Debug("Graph API accepted message", "recipient", recipient)
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "graph"
}

func (p *Provider) post(ctx context.Context, body []byte, refresh bool) error {
	var (
		token string
		err   error
	)
	if refresh {
		token, err = p.token.ForceRefresh(ctx)
	} else {
		token, err = p.token.Token(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	// sendMail answers 202 Accepted.
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}
	return decodeError(resp)
}

func decodeError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var ge graphErrorResponse
	if err := json.Unmarshal(data, &ge); err == nil && ge.Error.Message != "" {
		apiErr.Code = ge.Error.Code
		apiErr.Message = ge.Error.Message
		return apiErr
	}
	apiErr.Message = string(bytes.TrimSpace(data))
	return apiErr
}
