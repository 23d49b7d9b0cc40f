package cluster

import "errors"

// Membership errors
var (
	ErrNodeNotFound    = errors.New("node not found in membership")
	ErrClusterTooSmall = errors.New("cluster too small to maintain quorum")
)
