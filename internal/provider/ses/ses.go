// Package ses implements a Provider that sends notifications via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/jobmail/internal/email"
)

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Sender overrides the request's envelope sender as the From address.
	// SES only accepts verified identities, which the scheduler's mail-from
	// usually is not.
	Sender string

	Catalog email.Catalog
}

// SESProvider sends notifications via the AWS SES v2 API, one API call per
// recipient. Failed calls are not retried.
type SESProvider struct {
	sender  string
	catalog email.Catalog
	client  SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, cfg.Catalog, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(sender string, catalog email.Catalog, client SendEmailAPI) *SESProvider {
	return &SESProvider{
		sender:  sender,
		catalog: catalog,
		client:  client,
	}
}

// Deliver sends req to recipient as a simple text email.
func (s *SESProvider) Deliver(ctx context.Context, req *email.Request, recipient string) error {
	input := buildSimpleInput(s.fromAddress(req), recipient, req, s.catalog)

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("SES API request failed: %w", err)
	}

	slog.Debug("SES accepted message",
		"recipient", recipient,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

func (s *SESProvider) fromAddress(req *email.Request) string {
	if s.sender != "" {
		return s.sender
	}
	return req.EnvelopeFrom()
}

// buildSimpleInput creates a SES SendEmailInput addressed to one recipient.
func buildSimpleInput(sender, recipient string, req *email.Request, catalog email.Catalog) *sesv2.SendEmailInput {
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(email.Subject(req)),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(email.Body(req, catalog)),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
}
