package peer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// Client is the PeerClient of spec.md §4.3: per-peer connection state plus
// the operations LivenessMonitor, ElectionCoordinator and SplitBrainGuard
// use to query a sibling and run commands against it.
type Client struct {
	nodeID int
	addr   string

	transport ReplicationTransport
	runner    CommandRunner

	reconnectAttempts int
	reconnectInterval time.Duration

	logger logging.Logger

	mu                  sync.Mutex
	lastKnownStatus     model.NodeStatus
	attemptsSinceFailure int
	nextRetryAt         time.Time
}

// NewClient builds a PeerClient for one sibling. factory is called once,
// here; every (re)connect attempt re-dials that same transport.
func NewClient(nodeID int, addr string, factory TransportFactory, runner CommandRunner, reconnectAttempts int, reconnectInterval time.Duration, logger logging.Logger) *Client {
	return &Client{
		nodeID:            nodeID,
		addr:              addr,
		transport:         factory(),
		runner:            runner,
		reconnectAttempts: reconnectAttempts,
		reconnectInterval: reconnectInterval,
		logger:            logger.With(logging.Int("peer_node_id", nodeID), logging.Component("peer_client")),
		lastKnownStatus:   model.NodeStatusUnknown,
	}
}

// Reachable returns the last probe result without blocking (spec.md §4.3).
func (c *Client) Reachable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnownStatus == model.NodeStatusUp
}

// LastKnownStatus returns the cached status from the last EnsureConnected.
func (c *Client) LastKnownStatus() model.NodeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnownStatus
}

// EnsureConnected opens or refreshes the connection, retrying up to
// reconnectAttempts with reconnectInterval between attempts before
// classifying the peer as NodeStatusDown or NodeStatusRejected (spec.md
// §4.3). Within reconnectInterval of a failed call it returns the cached
// status without dialing.
func (c *Client) EnsureConnected(ctx context.Context) model.NodeStatus {
	c.mu.Lock()
	if time.Now().Before(c.nextRetryAt) {
		status := c.lastKnownStatus
		c.mu.Unlock()
		return status
	}
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < c.reconnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return c.setStatus(model.NodeStatusDown)
			case <-time.After(c.reconnectInterval):
			}
		}

		if err := c.transport.Dial(c.addr); err != nil {
			lastErr = err
			continue
		}

		c.mu.Lock()
		c.attemptsSinceFailure = 0
		c.mu.Unlock()
		return c.setStatus(model.NodeStatusUp)
	}

	c.logger.Warn("peer unreachable after reconnect attempts",
		logging.Int("attempts", c.reconnectAttempts), logging.Error(lastErr))

	status := c.classifyFailure()
	c.mu.Lock()
	c.attemptsSinceFailure++
	c.nextRetryAt = time.Now().Add(c.reconnectInterval)
	c.mu.Unlock()
	return c.setStatus(status)
}

// classifyFailure distinguishes REJECTED from DOWN the way spec.md §4.3
// requires: a connection refused by the remote host but reachable at the
// TCP layer is REJECTED (the process is up but not accepting); a host that
// cannot be reached at all is DOWN.
func (c *Client) classifyFailure() model.NodeStatus {
	conn, err := net.DialTimeout("tcp", c.addr, 2*time.Second)
	if err != nil {
		return model.NodeStatusDown
	}
	conn.Close()
	return model.NodeStatusRejected
}

func (c *Client) setStatus(s model.NodeStatus) model.NodeStatus {
	c.mu.Lock()
	c.lastKnownStatus = s
	c.mu.Unlock()
	return s
}

// ReplicationInfo queries the peer's current ReplInfo snapshot.
func (c *Client) ReplicationInfo(ctx context.Context, timeout time.Duration) (model.ReplInfo, error) {
	req, err := encodeRequest(reqReplicationInfo)
	if err != nil {
		return model.ReplInfo{}, fmt.Errorf("failed to encode request: %w", err)
	}

	raw, err := c.transport.Query(req, timeout)
	if err != nil {
		c.setStatus(model.NodeStatusDown)
		return model.ReplInfo{}, fmt.Errorf("replication_info query failed: %w", err)
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		return model.ReplInfo{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if !resp.OK {
		return model.ReplInfo{}, fmt.Errorf("peer reported error: %s", resp.Error)
	}

	w := resp.ReplInfo
	return model.ReplInfo{
		InRecovery:           w.InRecovery,
		LastWALReceiveLSN:    model.LSN(w.LastWALReceiveLSN),
		LastWALReplayLSN:     model.LSN(w.LastWALReplayLSN),
		LastXactReplayTS:     w.LastXactReplayTS,
		WALReplayPaused:      w.WALReplayPaused,
		ReceivingStreamedWAL: w.ReceivingStreamedWAL,
		UpstreamLastSeen:     w.UpstreamLastSeen,
		Timeline:             model.TimelineID(w.Timeline),
		SystemIdentifier:     model.SystemIdentifier(w.SystemIdentifier),
	}, nil
}

// RecoveryState is the tri-state is_in_recovery() result of spec.md §4.3.
type RecoveryState int

const (
	RecoveryUnknown RecoveryState = iota
	RecoveryPrimary
	RecoveryStandby
)

// IsInRecovery reports whether the peer is currently in recovery mode
// (i.e. a standby) or acting as a primary.
func (c *Client) IsInRecovery(ctx context.Context, timeout time.Duration) (RecoveryState, error) {
	req, err := encodeRequest(reqIsInRecovery)
	if err != nil {
		return RecoveryUnknown, fmt.Errorf("failed to encode request: %w", err)
	}

	raw, err := c.transport.Query(req, timeout)
	if err != nil {
		c.setStatus(model.NodeStatusDown)
		return RecoveryUnknown, fmt.Errorf("is_in_recovery query failed: %w", err)
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		return RecoveryUnknown, fmt.Errorf("failed to decode response: %w", err)
	}
	if !resp.OK {
		return RecoveryUnknown, fmt.Errorf("peer reported error: %s", resp.Error)
	}

	if resp.InRecovery {
		return RecoveryStandby, nil
	}
	return RecoveryPrimary, nil
}

// RunRemote executes cmd on the peer host via the configured shell
// transport. An empty, zero-exit result is distinguished from the
// "unreachable via shell" case by RemoteResult.Unreachable (spec.md §4.3).
func (c *Client) RunRemote(ctx context.Context, host, user, cmd string) (RemoteResult, error) {
	return c.runner.Run(ctx, host, user, cmd)
}

// Close releases the underlying transport connection.
func (c *Client) Close() error {
	return c.transport.Close()
}
