// Package model holds the shared data types for cluster nodes, replication
// positions and the state machines the daemon drives: the types of spec.md §3.
package model

import "fmt"

// NodeType is the role a node plays in the metadata table.
type NodeType int

const (
	NodeTypePrimary NodeType = iota
	NodeTypeStandby
	NodeTypeWitness
	NodeTypeBDR
)

func (t NodeType) String() string {
	switch t {
	case NodeTypePrimary:
		return "primary"
	case NodeTypeStandby:
		return "standby"
	case NodeTypeWitness:
		return "witness"
	case NodeTypeBDR:
		return "bdr"
	default:
		return "unknown"
	}
}

// NodeRecord mirrors one row of the shared `nodes` table (§3, §6).
type NodeRecord struct {
	NodeID          int
	Name            string
	Type            NodeType
	UpstreamNodeID  int // 0 means none
	Location        string
	Priority        int
	Active          bool
	ConnInfo        string
	ReplUser        string
}

// HasUpstream reports whether the record names an upstream node.
func (n NodeRecord) HasUpstream() bool { return n.UpstreamNodeID != 0 }

// LSN is a monotonic 64-bit position within a timeline (§3).
type LSN uint64

// String renders an LSN the conventional "%X/%X" way.
func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint64(l)>>32, uint64(l)&0xFFFFFFFF)
}

// Sub returns l-other, floored at zero; used for lag computations (P7).
func (l LSN) Sub(other LSN) uint64 {
	if l <= other {
		return 0
	}
	return uint64(l - other)
}

// TimelineID is a monotonic integer; larger means a more recent divergence.
type TimelineID uint32

// SystemIdentifier is the 64-bit cluster identity shared by all nodes of one
// replication cluster; nodes with different identifiers can never be peers.
type SystemIdentifier uint64

// ElectoralTerm is the monotonic counter bumped by the winner on promotion (P2).
type ElectoralTerm uint64

// ReplInfo is a per-node, transient replication snapshot (§3).
type ReplInfo struct {
	InRecovery           bool
	LastWALReceiveLSN    LSN
	LastWALReplayLSN     LSN
	LastXactReplayTS     int64 // unix seconds, 0 if unknown
	WALReplayPaused      bool
	ReceivingStreamedWAL bool
	UpstreamLastSeen     int // seconds, -1 if unknown
	Timeline             TimelineID
	SystemIdentifier     SystemIdentifier
}

// LagBytes returns the receive/replay lag in bytes, never negative (P7).
func (r ReplInfo) LagBytes() uint64 {
	return r.LastWALReceiveLSN.Sub(r.LastWALReplayLSN)
}

// NodeStatus is the liveness classification PeerClient reports for a peer (§3).
type NodeStatus int

const (
	NodeStatusUnknown NodeStatus = iota
	NodeStatusUp
	NodeStatusDown
	NodeStatusRejected
	NodeStatusUncleanShutdown
)

func (s NodeStatus) String() string {
	switch s {
	case NodeStatusUp:
		return "up"
	case NodeStatusDown:
		return "down"
	case NodeStatusRejected:
		return "rejected"
	case NodeStatusUncleanShutdown:
		return "unclean_shutdown"
	default:
		return "unknown"
	}
}
