// Package cluster tracks cluster membership for the failover daemon.
//
// Unlike a gossip-based membership tracker, nothing here discovers peers:
// node identity and topology live in the shared `nodes` table (pkg/store).
// This package is a read-through cache over that table — Siblings polls
// store.NodeMetaStore on a short interval and serves GetNode/GetAllNodes/
// GetActiveSiblings from memory, the way the teacher's ClusterMembership
// serves membership queries from its own in-memory map, with the same
// RWMutex-guarded, defensive-copy concurrency pattern.
package cluster
