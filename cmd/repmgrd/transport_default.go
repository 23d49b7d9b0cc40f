//go:build !zmq

package main

import "github.com/dd0wney/repliguard/pkg/peer"

// newPeerTransportFactory resolves config.PeerTransport to a
// peer.TransportFactory. The ZeroMQ backend is only linked in with
// `-tags zmq` (it needs libzmq); this default build always falls back to
// the dependency-free TCP transport (SPEC_FULL.md §B).
func newPeerTransportFactory(name string) peer.TransportFactory {
	return peer.NewTCPTransport()
}
