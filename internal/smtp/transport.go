package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// DefaultConnectTimeout bounds the connection attempt.
const DefaultConnectTimeout = 20 * time.Second

// ReplyTransactionFailed is returned by ReadReply when no usable reply was
// read.
const ReplyTransactionFailed = 554

// maxReplyChunk is the most ReadReply consumes in a single read.
const maxReplyChunk = 511

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Resolver maps host names to addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Transport owns one connection to a mail server. It is not reused across
// recipients.
type Transport struct {
	conn         net.Conn
	replyTimeout time.Duration
	stop         func() bool

	closeOnce sync.Once
	closeErr  error
}

// Dial resolves host and connects to the first address within timeout.
// A cancelled ctx also aborts any later read or write on the transport.
func Dial(ctx context.Context, d Dialer, r Resolver, host string, port int, timeout, replyTimeout time.Duration) (*Transport, error) {
	if d == nil {
		d = &net.Dialer{}
	}
	if r == nil {
		r = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := r.LookupHost(dialCtx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResolutionFailed, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrResolutionFailed, host)
	}

	addr := net.JoinHostPort(addrs[0], strconv.Itoa(port))
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	t := NewTransport(conn, replyTimeout)
	t.stop = context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return t, nil
}

// NewTransport wraps an established connection. Each read and write is
// bounded by replyTimeout when it is positive.
func NewTransport(conn net.Conn, replyTimeout time.Duration) *Transport {
	return &Transport{conn: conn, replyTimeout: replyTimeout}
}

// ReadReply reads one chunk from the server and returns the leading integer
// as the reply code. It never fails: a read error, an empty read or an
// unparsable reply yields ReplyTransactionFailed.
func (t *Transport) ReadReply() int {
	if t.replyTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.replyTimeout)); err != nil {
			return ReplyTransactionFailed
		}
	}

	buf := make([]byte, maxReplyChunk)
	n, _ := t.conn.Read(buf)
	if n <= 0 {
		return ReplyTransactionFailed
	}
	return parseReplyCode(string(buf[:n]))
}

// WriteFragments sends the fragments back to back, typically a command verb,
// its argument and the line terminator. It stops at the first failed write.
// The returned count covers every byte written, including those before a
// failure.
func (t *Transport) WriteFragments(frags ...string) (int, error) {
	if t.replyTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.replyTimeout)); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	total := 0
	for _, f := range frags {
		if f == "" {
			continue
		}
		n, err := t.conn.Write([]byte(f))
		total += n
		if err != nil {
			return total, fmt.Errorf("%w: %w", ErrIO, err)
		}
	}
	return total, nil
}

// Close closes the connection. It is safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.stop != nil {
			t.stop()
		}
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// parseReplyCode parses the leading, optionally signed, integer of s after
// any leading whitespace.
func parseReplyCode(s string) int {
	s = strings.TrimLeft(s, " \t\r\n")

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}

	code, err := strconv.Atoi(s[:end])
	if err != nil {
		return ReplyTransactionFailed
	}
	return code
}

// classifyDialError maps a connect failure onto the transport's error
// taxonomy.
func classifyDialError(addr string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %w", ErrConnectTimeout, addr, err)
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("%w: %s: %w", ErrConnectionRefused, addr, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrIO, addr, err)
	}
}
