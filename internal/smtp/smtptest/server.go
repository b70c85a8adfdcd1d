// Package smtptest provides a scripted SMTP server for tests. Each accepted
// connection answers with a fixed sequence of reply codes and records what
// the client sent.
package smtptest

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Conversation is what the server saw on one connection.
type Conversation struct {
	// Commands holds every line outside the DATA section, in order.
	Commands []string

	// Data holds the lines between DATA and the terminating dot.
	Data []string
}

// Server is a loopback SMTP server driven by reply scripts.
type Server struct {
	listener net.Listener
	scripts  [][]int

	mu            sync.Mutex
	conversations []*Conversation

	// wg tracks in-flight connection goroutines.
	wg sync.WaitGroup
}

// NewServer starts a server on 127.0.0.1. Connection i follows scripts[i];
// connections beyond the last script reuse it. The first code of a script is
// the greeting. When a script runs out the connection is closed, so an empty
// script closes without a greeting. The server is closed with t.Cleanup.
func NewServer(t testing.TB, scripts ...[]int) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	if len(scripts) == 0 {
		scripts = [][]int{{220, 250, 250, 250, 354, 250, 221}}
	}

	s := &Server{listener: ln, scripts: scripts}
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve() {
	for n := 0; ; n++ {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		script := s.scripts[min(n, len(s.scripts)-1)]
		conv := &Conversation{}
		s.mu.Lock()
		s.conversations = append(s.conversations, conv)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn, script, conv)
		}()
	}
}

// handle answers one connection. A reply is sent for the greeting, for every
// command line and for the end of the DATA section.
func (s *Server) handle(conn net.Conn, script []int, conv *Conversation) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	next := 0
	reply := func() bool {
		if next >= len(script) {
			return false
		}
		code := script[next]
		next++
		_, err := fmt.Fprintf(conn, "%d smtptest\r\n", code)
		return err == nil
	}

	if !reply() {
		return
	}

	inData := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		s.mu.Lock()
		if inData && line != "." {
			conv.Data = append(conv.Data, line)
		} else {
			conv.Commands = append(conv.Commands, line)
		}
		s.mu.Unlock()

		if inData && line != "." {
			continue
		}

		codeIndex := next
		if !reply() {
			return
		}
		switch {
		case inData:
			inData = false
		case strings.EqualFold(line, "DATA") && script[codeIndex] == 354:
			inData = true
		}
	}
}

// Host returns the listener's IP address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port returns the listener's port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Conversations waits for open connections to finish and returns a copy of
// everything recorded so far, one entry per accepted connection.
func (s *Server) Conversations() []Conversation {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = Conversation{
			Commands: append([]string(nil), c.Commands...),
			Data:     append([]string(nil), c.Data...),
		}
	}
	return out
}

// Close stops accepting connections and waits for open ones to finish.
func (s *Server) Close() {
	s.listener.Close()
	s.wg.Wait()
}
