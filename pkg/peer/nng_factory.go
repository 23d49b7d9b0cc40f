//go:build nng
// +build nng

package peer

import (
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/respondent"
	"go.nanomsg.org/mangos/v3/protocol/surveyor"

	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// nngSocket wraps a mangos.Socket to implement peer.Socket, grounded on
// the teacher's nng_transport.go. Only the SURVEY/RESPONDENT protocol pair
// is wired here (SPEC_FULL.md §B).
type nngSocket struct {
	sock mangos.Socket
}

func (s *nngSocket) Send(data []byte) error { return s.sock.Send(data) }
func (s *nngSocket) Recv() ([]byte, error)  { return s.sock.Recv() }
func (s *nngSocket) Close() error           { return s.sock.Close() }

func (s *nngSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

func (s *nngSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionSendDeadline, d)
}

func (s *nngSocket) Listen(addr string) error { return s.sock.Listen(addr) }
func (s *nngSocket) Dial(addr string) error   { return s.sock.Dial(addr) }

type nngSurveySocket struct {
	nngSocket
}

func (s *nngSurveySocket) SetSurveyTime(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionSurveyTime, d)
}

// NNGSocketFactory creates real nanomsg/mangos SURVEY/RESPONDENT sockets.
// Built only with -tags nng (requires the mangos pure-Go transport or
// libnng depending on the configured transport scheme).
type NNGSocketFactory struct{}

var _ SocketFactory = NNGSocketFactory{}

func (NNGSocketFactory) NewSurveyorSocket() (SurveySocket, error) {
	sock, err := surveyor.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSurveySocket{nngSocket{sock: sock}}, nil
}

func (NNGSocketFactory) NewRespondentSocket() (DialSocket, error) {
	sock, err := respondent.NewSocket()
	if err != nil {
		return nil, err
	}
	return &nngSocket{sock: sock}, nil
}
