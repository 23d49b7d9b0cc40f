package store

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// WitnessMirror periodically copies the primary's view of the nodes table
// into a local in-memory cache, the witness-node behaviour original_source's
// repmgrd-physical.c performs against its own witness connection
// (SPEC_FULL.md §C.1). A witness has no voting weight; the mirror keeps a
// recent-enough copy of every `nodes` row, which Nodes returns.
type WitnessMirror struct {
	primary NodeMetaStore
	logger  logging.Logger
	interval time.Duration

	mu    sync.RWMutex
	cache []model.NodeRecord
	err   error
}

// NewWitnessMirror builds a mirror that polls primary on interval.
func NewWitnessMirror(primary NodeMetaStore, interval time.Duration, logger logging.Logger) *WitnessMirror {
	return &WitnessMirror{
		primary:  primary,
		logger:   logger.With(logging.String("component", "witness_mirror")),
		interval: interval,
	}
}

// Run blocks, refreshing the cache every interval until ctx is cancelled.
func (w *WitnessMirror) Run(ctx context.Context) {
	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *WitnessMirror) refresh(ctx context.Context) {
	nodes, err := w.primary.GetAllNodes(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.err = err
		w.logger.Warn("witness mirror refresh failed", logging.Error(err))
		return
	}

	w.cache = nodes
	w.err = nil
}

// Nodes returns the last successfully mirrored snapshot.
func (w *WitnessMirror) Nodes() ([]model.NodeRecord, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]model.NodeRecord, len(w.cache))
	copy(out, w.cache)
	return out, w.err
}
