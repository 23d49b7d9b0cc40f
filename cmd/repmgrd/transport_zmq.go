//go:build zmq

package main

import "github.com/dd0wney/repliguard/pkg/peer"

// newPeerTransportFactory resolves config.PeerTransport when the daemon is
// built with `-tags zmq` (requires libzmq on the host).
func newPeerTransportFactory(name string) peer.TransportFactory {
	if name == "zmq" {
		return peer.NewZMQTransport()
	}
	return peer.NewTCPTransport()
}
