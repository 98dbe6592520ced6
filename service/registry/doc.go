// Package registry holds the pending request registry: the mapping from
// entity to its in-flight movement request.
//
// The arbiter owns the authoritative registry; every write there is
// replicated as an Updates delta stamped with a monotonically increasing
// revision. Other participants keep a read-mirror folded from those deltas
// with ApplyRemoteDelta, which drops anything not newer than what it has
// already applied.
package registry
