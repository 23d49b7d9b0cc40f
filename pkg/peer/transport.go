// Package peer implements the PeerClient of spec.md §4.3: per-sibling
// connection state, replication-info queries, recovery-mode checks and
// remote command execution, plus the health-survey fan-out SplitBrainGuard
// and LivenessMonitor use to ask every sibling "are you a primary?" in one
// round. Transport is pluggable; the default is a small TCP+JSON codec, with
// an optional ZeroMQ REQ/REP transport and an optional nanomsg/mangos
// SURVEY/RESPONDENT transport behind build tags, grounded on the teacher's
// own zmq_*.go / nng_*.go / health_surveyor.go split (pkg/replication).
package peer

import (
	"io"
	"time"
)

// Socket abstracts one messaging endpoint; same shape as the teacher's
// replication.Socket so NNG and ZMQ backends can share the same factory
// pattern.
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket binds and accepts.
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket connects out.
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// SurveySocket is a SURVEYOR socket with a configurable survey window; only
// the SURVEY/RESPONDENT pattern is wired into this daemon (SPEC_FULL.md
// §B) — the pub/sub and push/pull mangos protocols have no home here.
type SurveySocket interface {
	ListenSocket
	SetSurveyTime(d time.Duration) error
}

// SocketFactory creates the sockets HealthSurveyor/HealthRespondent need.
// The default factory is TCP-backed; NNGSocketFactory (build tag "nng")
// provides a real messaging-library backend. The "zmq" build tag adds only
// a ReplicationTransport (NewZMQTransport), not a SocketFactory.
type SocketFactory interface {
	NewSurveyorSocket() (SurveySocket, error)
	NewRespondentSocket() (DialSocket, error)
}

// ReplicationTransport is the query/reconnect channel PeerClient uses to
// ask a sibling for its ReplInfo and recovery status (spec.md §4.3).
type ReplicationTransport interface {
	// Dial establishes (or re-establishes) the connection to addr.
	Dial(addr string) error
	// Query sends a request frame and returns the response frame.
	Query(req []byte, timeout time.Duration) ([]byte, error)
	Close() error
}

// TransportFactory builds a ReplicationTransport for one peer address.
type TransportFactory func() ReplicationTransport
