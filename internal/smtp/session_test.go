package smtp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shineum/jobmail/internal/email"
	"github.com/shineum/jobmail/internal/smtp/smtptest"
)

func testRequest() *email.Request {
	return &email.Request{
		Kind:       email.KindJob,
		From:       "<adm@pbspro.com>",
		Recipients: "alice@example.com",
		ID:         "42.pbs01",
		Name:       "simulation",
		Mailpoint:  email.MailpointEnd,
		Text:       "Exit_status=0",
	}
}

// dialServer opens a transport to a scripted server.
func dialServer(t *testing.T, srv *smtptest.Server) *Transport {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	tr := NewTransport(conn, 5*time.Second)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestSession_CompleteExchange(t *testing.T) {
	t.Parallel()

	srv := smtptest.NewServer(t, []int{220, 250, 250, 250, 354, 250, 221})
	tr := dialServer(t, srv)
	logger, _ := captureLogger()

	sess := NewSession(tr, email.DefaultCatalog(), logger)
	if err := sess.Run(testRequest(), "alice@example.com", "example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.state != stateClosed {
		t.Errorf("state: got %v, want %v", sess.state, stateClosed)
	}
	if sess.Written() == 0 {
		t.Error("written byte count not tracked")
	}
	tr.Close()

	convs := srv.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversations: got %d, want 1", len(convs))
	}

	wantCommands := []string{
		"HELO example.com",
		"MAIL FROM: <adm@pbspro.com>",
		"RCPT TO: <alice@example.com>",
		"DATA",
		".",
		"QUIT",
	}
	if !reflect.DeepEqual(convs[0].Commands, wantCommands) {
		t.Errorf("commands:\n got %q\nwant %q", convs[0].Commands, wantCommands)
	}

	wantData := []string{
		"To: alice@example.com",
		"Subject: PBS JOB 42.pbs01",
		"",
		"Subject: PBS Job Id: 42.pbs01",
		"Job Name: simulation",
		"Execution terminated",
		"Exit_status=0",
	}
	if !reflect.DeepEqual(convs[0].Data, wantData) {
		t.Errorf("data:\n got %q\nwant %q", convs[0].Data, wantData)
	}
}

func TestSession_RcptRejected(t *testing.T) {
	t.Parallel()

	srv := smtptest.NewServer(t, []int{220, 250, 250, 550})
	tr := dialServer(t, srv)
	logger, logs := captureLogger()

	sess := NewSession(tr, email.DefaultCatalog(), logger)
	err := sess.Run(testRequest(), "alice@example.com", "example.com")

	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if perr.Step != "RCPT TO" || perr.Code != 550 || perr.Want != 250 {
		t.Errorf("ProtocolError: got %+v", perr)
	}
	if sess.state != stateAborted {
		t.Errorf("state: got %v, want %v", sess.state, stateAborted)
	}
	if !strings.Contains(logs.String(), `"code":550`) || !strings.Contains(logs.String(), `"step":"RCPT TO"`) {
		t.Errorf("log missing step and code: %s", logs.String())
	}
	tr.Close()

	for _, cmd := range srv.Conversations()[0].Commands {
		if cmd == "DATA" {
			t.Error("DATA must not be sent after a rejected RCPT")
		}
	}
}

func TestSession_StepFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		script   []int
		wantStep string
		wantCode int
	}{
		{name: "no greeting", script: []int{}, wantStep: "connect", wantCode: 554},
		{name: "service not ready", script: []int{421}, wantStep: "connect", wantCode: 421},
		{name: "helo rejected", script: []int{220, 501}, wantStep: "HELO", wantCode: 501},
		{name: "sender rejected", script: []int{220, 250, 553}, wantStep: "MAIL FROM", wantCode: 553},
		{name: "data refused", script: []int{220, 250, 250, 250, 451}, wantStep: "DATA", wantCode: 451},
		{name: "message rejected", script: []int{220, 250, 250, 250, 354, 552}, wantStep: "end-of-data", wantCode: 552},
		{name: "quit not acknowledged", script: []int{220, 250, 250, 250, 354, 250, 250}, wantStep: "QUIT", wantCode: 250},
		{name: "server hangs up before quit reply", script: []int{220, 250, 250, 250, 354, 250}, wantStep: "QUIT", wantCode: 554},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := smtptest.NewServer(t, tt.script)
			tr := dialServer(t, srv)
			logger, _ := captureLogger()

			err := NewSession(tr, email.DefaultCatalog(), logger).Run(testRequest(), "alice@example.com", "example.com")
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProtocolError, got %v", err)
			}
			if perr.Step != tt.wantStep || perr.Code != tt.wantCode {
				t.Errorf("got step %q code %d, want step %q code %d", perr.Step, perr.Code, tt.wantStep, tt.wantCode)
			}
		})
	}
}

func TestSession_DotStuffing(t *testing.T) {
	t.Parallel()

	srv := smtptest.NewServer(t)
	tr := dialServer(t, srv)
	logger, _ := captureLogger()

	req := testRequest()
	req.Text = "first\n.\n.hidden"
	if err := NewSession(tr, email.DefaultCatalog(), logger).Run(req, "alice@example.com", "example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr.Close()

	data := srv.Conversations()[0].Data
	tail := data[len(data)-3:]
	want := []string{"first", "..", "..hidden"}
	if !reflect.DeepEqual(tail, want) {
		t.Errorf("dot-stuffed lines: got %q, want %q", tail, want)
	}
}

func TestSession_LineBreaksInFieldsStayInData(t *testing.T) {
	t.Parallel()

	srv := smtptest.NewServer(t)
	tr := dialServer(t, srv)
	logger, _ := captureLogger()

	req := testRequest()
	req.ID = "42.pbs01\r\nRSET"
	req.Name = "sim\r\n.\r\nRCPT TO: <evil@attacker.example>"
	if err := NewSession(tr, email.DefaultCatalog(), logger).Run(req, "alice@example.com", "example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr.Close()

	conv := srv.Conversations()[0]
	wantCommands := []string{
		"HELO example.com",
		"MAIL FROM: <adm@pbspro.com>",
		"RCPT TO: <alice@example.com>",
		"DATA",
		".",
		"QUIT",
	}
	if !reflect.DeepEqual(conv.Commands, wantCommands) {
		t.Errorf("commands:\n got %q\nwant %q", conv.Commands, wantCommands)
	}

	wantHead := []string{
		"To: alice@example.com",
		"Subject: PBS JOB 42.pbs01 RSET",
		"",
		"Subject: PBS Job Id: 42.pbs01 RSET",
		"Job Name: sim . RCPT TO: <evil@attacker.example>",
	}
	if len(conv.Data) < len(wantHead) || !reflect.DeepEqual(conv.Data[:len(wantHead)], wantHead) {
		t.Errorf("data:\n got %q\nwant prefix %q", conv.Data, wantHead)
	}
}

func TestSession_WriteFailureAborts(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	go func() {
		server.Write([]byte("220 ready\r\n"))
		server.Close()
	}()

	tr := NewTransport(client, time.Second)
	defer tr.Close()
	logger, _ := captureLogger()

	sess := NewSession(tr, email.DefaultCatalog(), logger)
	err := sess.Run(testRequest(), "alice@example.com", "example.com")
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if sess.state != stateAborted {
		t.Errorf("state: got %v, want %v", sess.state, stateAborted)
	}
}

func TestProvider_Deliver(t *testing.T) {
	t.Parallel()

	srv := smtptest.NewServer(t)
	logger, _ := captureLogger()
	p := NewProvider(ProviderConfig{
		Server:  srv.Host(),
		Port:    srv.Port(),
		Catalog: email.DefaultCatalog(),
		Logger:  logger,
	})

	if got := p.Name(); got != "smtp" {
		t.Errorf("Name(): got %q, want %q", got, "smtp")
	}

	req := testRequest()
	req.Recipients = "bob"
	if err := p.Deliver(context.Background(), req, "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	convs := srv.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversations: got %d, want 1", len(convs))
	}
	if got := convs[0].Commands[0]; got != "HELO localhost" {
		t.Errorf("bare recipient HELO: got %q, want %q", got, "HELO localhost")
	}
	if got := convs[0].Commands[2]; got != "RCPT TO: <bob>" {
		t.Errorf("RCPT: got %q", got)
	}
}

func TestProvider_DeliverConnectFailure(t *testing.T) {
	t.Parallel()

	logger, logs := captureLogger()
	p := NewProvider(ProviderConfig{
		Server:   "mail.invalid",
		Resolver: staticResolver{},
		Logger:   logger,
	})

	err := p.Deliver(context.Background(), testRequest(), "alice@example.com")
	if !errors.Is(err, ErrResolutionFailed) {
		t.Fatalf("expected ErrResolutionFailed, got %v", err)
	}
	if !strings.Contains(logs.String(), "socket creation and connection failed") {
		t.Errorf("missing connect failure log: %s", logs.String())
	}
}
