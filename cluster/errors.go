package cluster

import "errors"

// ErrNodeNotInRing is returned by Submit when the hash ring has no
// members yet (the cluster hasn't formed). Callers may retry once the
// cluster forms.
var ErrNodeNotInRing = errors.New("cluster: hash ring is empty")

// ErrOwnerUnreachable is returned by Submit when the workflow's owning
// node cannot be reached over Transport. This is a TransientTransport
// condition surfaced to the caller per spec §7.
var ErrOwnerUnreachable = errors.New("cluster: owning node unreachable")
