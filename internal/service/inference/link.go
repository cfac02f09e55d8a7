package inference

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"SpectreGate/pkg/logger"
)

// Link is a persistent newline-framed TCP connection to the inference
// service. All socket access goes through one mutex.
type Link struct {
	addr        string
	dialTimeout time.Duration
	readTimeout time.Duration
	logger      *logger.Logger

	mu   sync.Mutex
	conn net.Conn
	buf  bytes.Buffer
}

// NewLink creates a link to addr. readTimeout bounds the single read attempt
// per exchange; it stands in for a non-blocking read.
func NewLink(addr string, readTimeout time.Duration, l *logger.Logger) *Link {
	if readTimeout <= 0 {
		readTimeout = 250 * time.Millisecond
	}
	return &Link{
		addr:        addr,
		dialTimeout: 2 * time.Second,
		readTimeout: readTimeout,
		logger:      l,
	}
}

// ConnectIfNeeded dials the service if no connection is live. A failed dial
// is swallowed and recorded as disconnected; the bar loop proceeds without
// sending. Reconnects are lazy, never retried within the same bar.
func (l *Link) ConnectIfNeeded(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return
	}

	d := net.Dialer{Timeout: l.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", l.addr)
	if err != nil {
		l.logger.Warn("ml connect failed", logger.String("addr", l.addr), logger.Error(err))
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	l.conn = conn
	l.buf.Reset()
	l.logger.Info("ml connected", logger.String("addr", l.addr))
}

// Exchange writes msg verbatim and performs one bounded read. If the
// accumulated receive buffer holds a full line it is returned trimmed, with
// partial trailing bytes preserved for the next call. No data within the
// read budget returns ("", false) immediately. Any I/O fault disconnects
// and returns ("", false); the caller treats that as "no new information".
func (l *Link) Exchange(msg string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return "", false
	}

	if _, err := l.conn.Write([]byte(msg)); err != nil {
		l.dropLocked(err)
		return "", false
	}

	_ = l.conn.SetReadDeadline(time.Now().Add(l.readTimeout))
	tmp := make([]byte, 4096)
	n, err := l.conn.Read(tmp)
	if n > 0 {
		l.buf.Write(tmp[:n])
	}
	if err != nil {
		if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			l.dropLocked(err)
			return "", false
		}
		// deadline hit: not a fault, just nothing to read this bar
	}

	if i := bytes.IndexByte(l.buf.Bytes(), '\n'); i >= 0 {
		line := strings.TrimSpace(string(l.buf.Next(i + 1)))
		return line, true
	}
	return "", false
}

// IsConnected indicates status.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Close releases the socket.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.buf.Reset()
	return err
}

func (l *Link) dropLocked(cause error) {
	l.logger.Warn("ml io error, disconnecting", logger.Error(cause))
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.buf.Reset()
}
