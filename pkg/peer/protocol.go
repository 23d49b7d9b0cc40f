package peer

import "encoding/json"

// requestKind tags the single request/response frame PeerClient exchanges
// with a sibling's own replication-info responder.
type requestKind string

const (
	reqReplicationInfo requestKind = "replication_info"
	reqIsInRecovery    requestKind = "is_in_recovery"
)

type request struct {
	Kind requestKind `json:"kind"`
}

type replInfoWire struct {
	InRecovery           bool   `json:"in_recovery"`
	LastWALReceiveLSN    uint64 `json:"last_wal_receive_lsn"`
	LastWALReplayLSN     uint64 `json:"last_wal_replay_lsn"`
	LastXactReplayTS     int64  `json:"last_xact_replay_ts"`
	WALReplayPaused      bool   `json:"wal_replay_paused"`
	ReceivingStreamedWAL bool   `json:"receiving_streamed_wal"`
	UpstreamLastSeen     int    `json:"upstream_last_seen"`
	Timeline             uint32 `json:"timeline"`
	SystemIdentifier     uint64 `json:"system_identifier"`
}

type response struct {
	OK         bool         `json:"ok"`
	Error      string       `json:"error,omitempty"`
	ReplInfo   replInfoWire `json:"repl_info,omitempty"`
	InRecovery bool         `json:"in_recovery,omitempty"`
}

func encodeRequest(k requestKind) ([]byte, error) {
	return json.Marshal(request{Kind: k})
}

func decodeResponse(data []byte) (response, error) {
	var r response
	err := json.Unmarshal(data, &r)
	return r, err
}
