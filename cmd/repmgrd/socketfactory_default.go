//go:build !nng

package main

import "github.com/dd0wney/repliguard/pkg/peer"

// newSurveySocketFactory backs the split-brain health survey rendezvous
// (SPEC_FULL.md §B). The nanomsg/mangos backend is only linked in with
// `-tags nng`; this default build uses the dependency-free TCP sockets.
func newSurveySocketFactory() peer.SocketFactory {
	return peer.TCPSocketFactory{}
}
