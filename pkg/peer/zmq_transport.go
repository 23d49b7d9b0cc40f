//go:build zmq
// +build zmq

package peer

import (
	"fmt"
	"sync"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// ZMQTransport is a REQ-socket ReplicationTransport, grounded on the
// teacher's zmq_primary.go/zmq_replica.go REQ/REP usage. Built only when
// compiled with -tags zmq (requires libzmq).
type ZMQTransport struct {
	mu   sync.Mutex
	sock *zmq.Socket
}

var _ ReplicationTransport = (*ZMQTransport)(nil)

// NewZMQTransport returns a TransportFactory producing REQ-socket transports.
func NewZMQTransport() TransportFactory {
	return func() ReplicationTransport { return &ZMQTransport{} }
}

func (z *ZMQTransport) Dial(addr string) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.sock != nil {
		z.sock.Close()
	}

	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return fmt.Errorf("failed to create REQ socket: %w", err)
	}

	if err := sock.Connect(addr); err != nil {
		sock.Close()
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	z.sock = sock
	return nil
}

func (z *ZMQTransport) Query(req []byte, timeout time.Duration) ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.sock == nil {
		return nil, fmt.Errorf("not connected")
	}

	z.sock.SetSndtimeo(timeout)
	z.sock.SetRcvtimeo(timeout)

	if _, err := z.sock.SendBytes(req, 0); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := z.sock.RecvBytes(0)
	if err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return resp, nil
}

func (z *ZMQTransport) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.sock == nil {
		return nil
	}
	err := z.sock.Close()
	z.sock = nil
	return err
}
