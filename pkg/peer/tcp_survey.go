package peer

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// tcpSurveySocket is a minimal SURVEY-pattern socket over plain TCP: one
// listener fans a single broadcast out to every currently-connected
// respondent and collects replies until the survey window elapses. It is
// the default SocketFactory backend so health surveys work without
// libnng/libzmq installed.
type tcpSurveySocket struct {
	mu         sync.Mutex
	ln         net.Listener
	conns      []net.Conn
	surveyTime time.Duration
	recvDeadline time.Duration
	sendDeadline time.Duration
}

func (s *tcpSurveySocket) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.ln = ln

	go s.acceptLoop()
	return nil
}

func (s *tcpSurveySocket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
	}
}

func (s *tcpSurveySocket) SetSurveyTime(d time.Duration) error {
	s.surveyTime = d
	return nil
}

func (s *tcpSurveySocket) SetRecvDeadline(d time.Duration) error {
	s.recvDeadline = d
	return nil
}

func (s *tcpSurveySocket) SetSendDeadline(d time.Duration) error {
	s.sendDeadline = d
	return nil
}

func (s *tcpSurveySocket) Send(data []byte) error {
	s.mu.Lock()
	conns := append([]net.Conn(nil), s.conns...)
	s.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(s.sendDeadline))
		writeFrame(c, data)
	}
	return nil
}

func (s *tcpSurveySocket) Recv() ([]byte, error) {
	s.mu.Lock()
	conns := append([]net.Conn(nil), s.conns...)
	s.mu.Unlock()

	deadline := time.Now().Add(s.surveyTime)
	for _, c := range conns {
		if time.Now().After(deadline) {
			break
		}
		c.SetReadDeadline(deadline)
		frame, err := readFrame(bufReaderFor(c))
		if err == nil {
			return frame, nil
		}
	}
	return nil, fmt.Errorf("no response within survey window")
}

func (s *tcpSurveySocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conns {
		c.Close()
	}
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// tcpRespondentSocket is the dial side: one persistent connection to the
// surveyor, used to receive broadcasts and send replies.
type tcpRespondentSocket struct {
	conn         net.Conn
	recvDeadline time.Duration
	sendDeadline time.Duration
}

func (s *tcpRespondentSocket) Dial(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to dial surveyor %s: %w", addr, err)
	}
	s.conn = conn
	return nil
}

func (s *tcpRespondentSocket) SetRecvDeadline(d time.Duration) error {
	s.recvDeadline = d
	return nil
}

func (s *tcpRespondentSocket) SetSendDeadline(d time.Duration) error {
	s.sendDeadline = d
	return nil
}

func (s *tcpRespondentSocket) Send(data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.sendDeadline))
	return writeFrame(s.conn, data)
}

func (s *tcpRespondentSocket) Recv() ([]byte, error) {
	s.conn.SetReadDeadline(time.Now().Add(s.recvDeadline))
	return readFrame(bufReaderFor(s.conn))
}

func (s *tcpRespondentSocket) Close() error {
	return s.conn.Close()
}

// TCPSocketFactory is the default SocketFactory, requiring no messaging
// library beyond the standard library's net package.
type TCPSocketFactory struct{}

var _ SocketFactory = TCPSocketFactory{}

func (TCPSocketFactory) NewSurveyorSocket() (SurveySocket, error) {
	return &tcpSurveySocket{surveyTime: 2 * time.Second, sendDeadline: time.Second}, nil
}

func (TCPSocketFactory) NewRespondentSocket() (DialSocket, error) {
	return &tcpRespondentSocket{recvDeadline: time.Second, sendDeadline: time.Second}, nil
}
