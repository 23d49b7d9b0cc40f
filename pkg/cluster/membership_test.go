package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/metrics"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/store"
)

type fakeMetaStore struct {
	store.NodeMetaStore
	nodes []model.NodeRecord
	err   error
}

func (f *fakeMetaStore) GetAllNodes(ctx context.Context) ([]model.NodeRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.nodes, nil
}

func newTestSiblings(nodes []model.NodeRecord, err error) *Siblings {
	meta := &fakeMetaStore{nodes: nodes, err: err}
	return NewSiblings(1, meta, metrics.NewRegistry(), logging.NewNopLogger())
}

func TestSiblingsRefresh(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Name: "node1", Type: model.NodeTypePrimary, Active: true},
		{NodeID: 2, Name: "node2", Type: model.NodeTypeStandby, Active: true, UpstreamNodeID: 1},
		{NodeID: 3, Name: "node3", Type: model.NodeTypeStandby, Active: false, UpstreamNodeID: 1},
	}

	s := newTestSiblings(nodes, nil)

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if s.NodeCount() != 3 {
		t.Errorf("NodeCount() = %d, want 3", s.NodeCount())
	}

	node, ok := s.GetNode(2)
	if !ok {
		t.Fatal("GetNode(2) not found")
	}
	if node.Name != "node2" {
		t.Errorf("GetNode(2).Name = %q, want node2", node.Name)
	}

	if _, ok := s.GetNode(99); ok {
		t.Error("GetNode(99) should not be found")
	}
}

func TestSiblingsGetActiveSiblings(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true},
		{NodeID: 3, Type: model.NodeTypeStandby, Active: false},
	}

	s := newTestSiblings(nodes, nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	siblings := s.GetActiveSiblings(1)
	if len(siblings) != 1 {
		t.Fatalf("GetActiveSiblings(1) returned %d nodes, want 1", len(siblings))
	}
	if siblings[0].NodeID != 2 {
		t.Errorf("GetActiveSiblings(1)[0].NodeID = %d, want 2", siblings[0].NodeID)
	}
}

func TestSiblingsGetPrimary(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypeStandby, Active: true},
		{NodeID: 2, Type: model.NodeTypePrimary, Active: true},
	}

	s := newTestSiblings(nodes, nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	primary, ok := s.GetPrimary()
	if !ok {
		t.Fatal("GetPrimary() not found")
	}
	if primary.NodeID != 2 {
		t.Errorf("GetPrimary().NodeID = %d, want 2", primary.NodeID)
	}
}

func TestSiblingsGetPrimaryNone(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypeStandby, Active: true},
	}

	s := newTestSiblings(nodes, nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if _, ok := s.GetPrimary(); ok {
		t.Error("GetPrimary() should report no primary")
	}
}

func TestSiblingsRefreshError(t *testing.T) {
	wantErr := errors.New("connection refused")
	s := newTestSiblings(nil, wantErr)

	err := s.Refresh(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Refresh() error = %v, want %v", err, wantErr)
	}

	if got := s.LastRefreshError(); !errors.Is(got, wantErr) {
		t.Errorf("LastRefreshError() = %v, want %v", got, wantErr)
	}
}

func TestSiblingsStalePreservedOnError(t *testing.T) {
	nodes := []model.NodeRecord{{NodeID: 1, Active: true}}
	meta := &fakeMetaStore{nodes: nodes}
	s := NewSiblings(1, meta, metrics.NewRegistry(), logging.NewNopLogger())

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if s.NodeCount() != 1 {
		t.Fatalf("NodeCount() = %d, want 1", s.NodeCount())
	}

	meta.err = errors.New("transient outage")
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() expected error")
	}

	if s.NodeCount() != 1 {
		t.Errorf("NodeCount() after failed refresh = %d, want stale 1", s.NodeCount())
	}
}
