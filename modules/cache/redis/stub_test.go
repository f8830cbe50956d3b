package redis

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// stubServer speaks enough RESP2 for the cache: PING, GET, SET with EX/PX,
// DEL. HELLO is refused so the client falls back to RESP2.
type stubServer struct {
	listener net.Listener

	mu  sync.Mutex
	kv  map[string]stubEntry
	now time.Time
}

type stubEntry struct {
	value  string
	expiry time.Time
}

func startStub(t *testing.T) *stubServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &stubServer{
		listener: ln,
		kv:       make(map[string]stubEntry),
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *stubServer) Addr() string { return s.listener.Addr().String() }

func (s *stubServer) advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

func (s *stubServer) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.kv))
	for k := range s.kv {
		out = append(out, k)
	}
	return out
}

func (s *stubServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *stubServer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		args, err := readArray(r)
		if err != nil {
			return
		}
		s.dispatch(w, args)
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *stubServer) dispatch(w *bufio.Writer, args []string) {
	if len(args) == 0 {
		fmt.Fprint(w, "-ERR empty command\r\n")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToUpper(args[0]) {
	case "PING":
		fmt.Fprint(w, "+PONG\r\n")
	case "CLIENT", "SELECT", "AUTH":
		fmt.Fprint(w, "+OK\r\n")
	case "GET":
		e, ok := s.kv[args[1]]
		if !ok || (!e.expiry.IsZero() && !s.now.Before(e.expiry)) {
			delete(s.kv, args[1])
			fmt.Fprint(w, "$-1\r\n")
			return
		}
		fmt.Fprintf(w, "$%d\r\n%s\r\n", len(e.value), e.value)
	case "SET":
		e := stubEntry{value: args[2]}
		for i := 3; i+1 < len(args); i += 2 {
			n, _ := strconv.ParseInt(args[i+1], 10, 64)
			switch strings.ToUpper(args[i]) {
			case "EX":
				e.expiry = s.now.Add(time.Duration(n) * time.Second)
			case "PX":
				e.expiry = s.now.Add(time.Duration(n) * time.Millisecond)
			}
		}
		s.kv[args[1]] = e
		fmt.Fprint(w, "+OK\r\n")
	case "DEL":
		n := 0
		for _, k := range args[1:] {
			if _, ok := s.kv[k]; ok {
				delete(s.kv, k)
				n++
			}
		}
		fmt.Fprintf(w, ":%d\r\n", n)
	default:
		fmt.Fprintf(w, "-ERR unknown command '%s'\r\n", args[0])
	}
}

func readArray(r *bufio.Reader) ([]string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if prefix != '*' {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	n, err := readLength(r)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for range n {
		if prefix, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if prefix != '$' {
			return nil, fmt.Errorf("unexpected prefix %q", prefix)
		}
		size, err := readLength(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimRight(line, "\r\n"))
}
