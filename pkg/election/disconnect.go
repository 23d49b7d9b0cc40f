package election

import (
	"context"
	"time"

	"github.com/dd0wney/repliguard/pkg/health"
	"github.com/dd0wney/repliguard/pkg/logging"
)

var _ LocalReceiverController = (*health.LocalState)(nil)

// receiverPollInterval bounds how often runPreElectionDisconnect re-checks
// sibling WAL receiver state while waiting for them to go idle.
const receiverPollInterval = 200 * time.Millisecond

// LocalReceiverController disables and re-enables the local node's WAL
// receiver for the standby_disconnect_on_failover pre-election step
// (spec.md §4.5), narrowed to an interface so tests don't need a live DB.
type LocalReceiverController interface {
	DisableWALReceiver(ctx context.Context) error
	EnableWALReceiver(ctx context.Context) error
}

// runPreElectionDisconnect disables the local WAL receiver, then waits up
// to SiblingDisconnectTimeout for every sibling this node can reach to
// report its own receiver idle, so no sibling can advance its LSN mid-round
// while positions are being compared.
func (c *Coordinator) runPreElectionDisconnect(ctx context.Context) {
	if err := c.receiver.DisableWALReceiver(ctx); err != nil {
		c.logger.Warn("failed to disable local wal receiver before election", logging.Error(err))
		return
	}

	deadline := time.Now().Add(c.cfg.SiblingDisconnectTimeout)
	for {
		if c.siblingsIdle(ctx) {
			return
		}
		if time.Now().After(deadline) {
			c.logger.Warn("timed out waiting for sibling wal receivers to go idle")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(receiverPollInterval):
		}
	}
}

// siblingsIdle reports whether every sibling this node has a client for has
// stopped streaming WAL. An unreachable sibling counts as idle — it cannot
// advance its LSN either.
func (c *Coordinator) siblingsIdle(ctx context.Context) bool {
	for _, client := range c.clients {
		repl, err := client.ReplicationInfo(ctx, 2*time.Second)
		if err != nil {
			continue
		}
		if repl.ReceivingStreamedWAL {
			return false
		}
	}
	return true
}

// reenableReceiver restores the local WAL receiver after the election round
// resolves; failure is logged rather than propagated since the round has
// already decided.
func (c *Coordinator) reenableReceiver(ctx context.Context) {
	if err := c.receiver.EnableWALReceiver(ctx); err != nil {
		c.logger.Warn("failed to re-enable local wal receiver after election", logging.Error(err))
	}
}
