package cluster

import "github.com/dd0wney/repliguard/pkg/model"

// GetNode returns the cached record for nodeID, if present.
func (s *Siblings) GetNode(nodeID int) (model.NodeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	return node, ok
}

// GetAllNodes returns a defensive copy of every cached node record.
func (s *Siblings) GetAllNodes() []model.NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.NodeRecord, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out
}

// GetActiveSiblings returns every active node other than excludeID.
func (s *Siblings) GetActiveSiblings(excludeID int) []model.NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.NodeRecord, 0, len(s.nodes))
	for id, n := range s.nodes {
		if id == excludeID || !n.Active {
			continue
		}
		out = append(out, n)
	}
	return out
}

// GetPrimary returns the node currently marked as primary, if any.
func (s *Siblings) GetPrimary() (model.NodeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.nodes {
		if n.Type == model.NodeTypePrimary {
			return n, true
		}
	}
	return model.NodeRecord{}, false
}

// NodeCount returns the total number of cached nodes.
func (s *Siblings) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.nodes)
}

// LastRefreshError returns the error from the most recent Refresh call, or
// nil if the last refresh succeeded.
func (s *Siblings) LastRefreshError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.err
}
