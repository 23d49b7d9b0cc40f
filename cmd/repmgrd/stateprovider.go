package main

import (
	"context"
	"sync/atomic"

	"github.com/dd0wney/repliguard/pkg/health"
	"github.com/dd0wney/repliguard/pkg/model"
)

// localStateProvider adapts *health.LocalState plus the daemon's current
// role into a peer.StateProvider, so this node's own HealthRespondent can
// answer survey broadcasts truthfully even as its role changes across
// monitor restarts.
type localStateProvider struct {
	nodeID int
	local  *health.LocalState
	role   atomic.Int32
}

func newLocalStateProvider(nodeID int, local *health.LocalState, initial model.Role) *localStateProvider {
	p := &localStateProvider{nodeID: nodeID, local: local}
	p.role.Store(int32(initial))
	return p
}

func (p *localStateProvider) setRole(r model.Role) { p.role.Store(int32(r)) }

func (p *localStateProvider) NodeID() int { return p.nodeID }

func (p *localStateProvider) CurrentRole() model.Role { return model.Role(p.role.Load()) }

func (p *localStateProvider) CurrentReplInfo() model.ReplInfo {
	ctx, cancel := context.WithTimeout(context.Background(), surveyReplInfoTimeout)
	defer cancel()
	info, err := p.local.ReplicationInfo(ctx)
	if err != nil {
		return model.ReplInfo{}
	}
	return info
}
