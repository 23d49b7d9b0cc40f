package peer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// TCPTransport is the default ReplicationTransport: a length-prefixed
// request/response frame over a single persistent TCP connection. It is
// the fallback every deployment gets without libzmq or libnng installed.
type TCPTransport struct {
	mu   sync.Mutex
	conn net.Conn
	addr string
}

var _ ReplicationTransport = (*TCPTransport)(nil)

// NewTCPTransport returns a TransportFactory producing TCPTransports.
func NewTCPTransport() TransportFactory {
	return func() ReplicationTransport { return &TCPTransport{} }
}

func (t *TCPTransport) Dial(addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	t.conn = conn
	t.addr = addr
	return nil
}

func (t *TCPTransport) Query(req []byte, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	conn.SetDeadline(time.Now().Add(timeout))

	if err := writeFrame(conn, req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func bufReaderFor(r io.Reader) *bufio.Reader {
	return bufio.NewReader(r)
}
