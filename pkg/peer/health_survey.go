package peer

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// StateProvider exposes this node's own role/position for survey replies,
// the way the teacher's replication.StateProvider exposes graph LSN/counts.
type StateProvider interface {
	NodeID() int
	CurrentRole() model.Role
	CurrentReplInfo() model.ReplInfo
}

// SurveyResponse is one sibling's answer to a health survey: its own
// perceived role and replication position, the input SplitBrainGuard uses
// to count live primaries (spec.md §4.7).
type SurveyResponse struct {
	NodeID   int        `json:"node_id"`
	Role     string     `json:"role"`
	Timeline uint32     `json:"timeline"`
	LSN      uint64     `json:"lsn"`
}

// HealthSurveyor broadcasts a "who is primary right now?" survey and
// collects every response that arrives within the survey window. Adapted
// from the teacher's replication.HealthSurveyor (pkg/replication/health_surveyor.go),
// restricted to the SURVEY/RESPONDENT pattern per SPEC_FULL.md §B.
type HealthSurveyor struct {
	socket     SurveySocket
	addr       string
	surveyTime time.Duration
	logger     logging.Logger

	mu      sync.Mutex
	running bool
}

// NewHealthSurveyor builds a surveyor bound to addr, not yet listening.
func NewHealthSurveyor(factory SocketFactory, addr string, surveyTime time.Duration, logger logging.Logger) (*HealthSurveyor, error) {
	socket, err := factory.NewSurveyorSocket()
	if err != nil {
		return nil, err
	}

	if surveyTime <= 0 {
		surveyTime = 2 * time.Second
	}

	return &HealthSurveyor{
		socket:     socket,
		addr:       addr,
		surveyTime: surveyTime,
		logger:     logger.With(logging.Component("health_surveyor")),
	}, nil
}

// Start binds the surveyor socket.
func (s *HealthSurveyor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.socket.Listen(s.addr); err != nil {
		return err
	}
	if err := s.socket.SetSurveyTime(s.surveyTime); err != nil {
		s.socket.Close()
		return err
	}
	s.running = true
	return nil
}

// Stop closes the surveyor socket.
func (s *HealthSurveyor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	return s.socket.Close()
}

// Survey broadcasts one round and returns every response collected before
// the survey window closes.
func (s *HealthSurveyor) Survey() ([]SurveyResponse, error) {
	if err := s.socket.Send([]byte("survey")); err != nil {
		return nil, err
	}

	var out []SurveyResponse
	for {
		msg, err := s.socket.Recv()
		if err != nil {
			break // survey window closed
		}

		var resp SurveyResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			s.logger.Warn("failed to parse survey response", logging.Error(err))
			continue
		}
		out = append(out, resp)
	}
	return out, nil
}

// HealthRespondent answers survey broadcasts with this node's own role and
// position. Every daemon instance runs one so siblings can query it.
type HealthRespondent struct {
	socket   DialSocket
	surveyor string
	provider StateProvider
	logger   logging.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewHealthRespondent builds a respondent that dials the surveyor at addr.
func NewHealthRespondent(factory SocketFactory, surveyorAddr string, provider StateProvider, logger logging.Logger) (*HealthRespondent, error) {
	socket, err := factory.NewRespondentSocket()
	if err != nil {
		return nil, err
	}

	return &HealthRespondent{
		socket:   socket,
		surveyor: surveyorAddr,
		provider: provider,
		logger:   logger.With(logging.Component("health_respondent")),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start dials the surveyor and begins answering surveys.
func (r *HealthRespondent) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if err := r.socket.Dial(r.surveyor); err != nil {
		return err
	}
	if err := r.socket.SetRecvDeadline(1 * time.Second); err != nil {
		r.socket.Close()
		return err
	}

	r.running = true
	r.wg.Add(1)
	go r.respondLoop()
	return nil
}

// Stop halts the respond loop and closes the socket.
func (r *HealthRespondent) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	return r.socket.Close()
}

func (r *HealthRespondent) respondLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		if _, err := r.socket.Recv(); err != nil {
			continue
		}

		repl := r.provider.CurrentReplInfo()
		resp := SurveyResponse{
			NodeID:   r.provider.NodeID(),
			Role:     r.provider.CurrentRole().String(),
			Timeline: uint32(repl.Timeline),
			LSN:      uint64(repl.LastWALReplayLSN),
		}

		data, err := json.Marshal(resp)
		if err != nil {
			r.logger.Warn("failed to marshal survey response", logging.Error(err))
			continue
		}

		if err := r.socket.Send(data); err != nil {
			r.logger.Warn("failed to send survey response", logging.Error(err))
		}
	}
}
