package ses

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/shineum/jobmail/internal/email"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func jobRequest() *email.Request {
	return &email.Request{
		Kind:       email.KindJob,
		From:       "<adm@pbspro.com>",
		Recipients: "alice@example.com bob@example.com",
		ID:         "99.head",
		Name:       "assemble",
		Mailpoint:  email.MailpointAbort,
		Text:       "walltime exceeded",
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	p := NewWithClient("sender@example.com", email.DefaultCatalog(), &mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestDeliver_JobNotification(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", email.DefaultCatalog(), mock)

	if err := p.Deliver(context.Background(), jobRequest(), "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if input.Content.Simple == nil {
		t.Fatal("expected simple email content, got nil")
	}
	if got := *input.FromEmailAddress; got != "sender@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "sender@example.com")
	}
	if got := input.Destination.ToAddresses; len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("ToAddresses: got %v, want [alice@example.com]", got)
	}
	if got := *input.Content.Simple.Subject.Data; got != "PBS JOB 99.head" {
		t.Errorf("Subject: got %q, want %q", got, "PBS JOB 99.head")
	}

	body := *input.Content.Simple.Body.Text.Data
	for _, want := range []string{"PBS Job Id: 99.head", "Job Name:   assemble", "Aborted by PBS Server", "walltime exceeded"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %q", want, body)
		}
	}
	if input.Content.Simple.Body.Html != nil {
		t.Error("expected no HTML body")
	}
}

func TestDeliver_FallsBackToEnvelopeSender(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("", email.DefaultCatalog(), mock)

	if err := p.Deliver(context.Background(), jobRequest(), "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := *mock.lastInput.FromEmailAddress; got != "adm@pbspro.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "adm@pbspro.com")
	}
}

func TestDeliver_NoRetryOnError(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	p := NewWithClient("sender@example.com", email.DefaultCatalog(), mock)

	err := p.Deliver(context.Background(), jobRequest(), "alice@example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "throttled") {
		t.Errorf("error message: got %q, want to contain %q", err.Error(), "throttled")
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
}

func TestBuildSimpleInput_Reservation(t *testing.T) {
	t.Parallel()

	req := &email.Request{
		Kind:      email.KindReservation,
		ID:        "R12.head",
		Name:      "maintenance",
		Mailpoint: email.MailpointConfirm,
	}

	input := buildSimpleInput("sender@example.com", "ops@example.com", req, email.DefaultCatalog())

	if got := *input.Content.Simple.Subject.Data; got != "PBS RESERVATION R12.head" {
		t.Errorf("Subject: got %q", got)
	}
	body := *input.Content.Simple.Body.Text.Data
	if !strings.Contains(body, "CONFIRM reservation") {
		t.Errorf("body missing confirm line: %q", body)
	}
	if got := *input.Content.Simple.Body.Text.Charset; got != "UTF-8" {
		t.Errorf("charset: got %q, want %q", got, "UTF-8")
	}
}
