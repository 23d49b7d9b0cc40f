package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/metrics"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/store"
)

// Siblings is a read-through cache of the shared nodes table, refreshed on
// a fixed interval so LivenessMonitor/ElectionCoordinator/SplitBrainGuard
// don't each hit the database independently every cycle.
//
// Concurrent Safety: all public methods use an RWMutex; GetXxx return
// defensive copies so callers never observe a half-updated NodeRecord.
type Siblings struct {
	localNodeID int
	meta        store.NodeMetaStore
	logger      logging.Logger
	metrics     *metrics.Registry

	mu    sync.RWMutex
	nodes map[int]model.NodeRecord
	err   error
}

// NewSiblings builds a cache for localNodeID backed by meta.
func NewSiblings(localNodeID int, meta store.NodeMetaStore, reg *metrics.Registry, logger logging.Logger) *Siblings {
	return &Siblings{
		localNodeID: localNodeID,
		meta:        meta,
		metrics:     reg,
		logger:      logger.With(logging.Component("cluster_siblings")),
		nodes:       make(map[int]model.NodeRecord),
	}
}

// Run refreshes the cache every interval until ctx is cancelled.
func (s *Siblings) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh reloads every node row from the backing store.
func (s *Siblings) Refresh(ctx context.Context) error {
	records, err := s.meta.GetAllNodes(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.err = err
		s.logger.Warn("failed to refresh cluster membership", logging.Error(err))
		return err
	}

	next := make(map[int]model.NodeRecord, len(records))
	for _, r := range records {
		next[r.NodeID] = r
	}
	s.nodes = next
	s.err = nil

	if s.metrics != nil {
		s.metrics.ClusterNodesTotal.Set(float64(len(records)))
	}
	return nil
}
