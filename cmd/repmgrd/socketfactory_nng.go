//go:build nng

package main

import "github.com/dd0wney/repliguard/pkg/peer"

// newSurveySocketFactory selects the nanomsg/mangos SURVEY/RESPONDENT
// sockets when the daemon is built with `-tags nng`.
func newSurveySocketFactory() peer.SocketFactory {
	return peer.NNGSocketFactory{}
}
