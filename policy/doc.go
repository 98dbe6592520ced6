// Package policy holds the declarative rules a participant applies while
// coordinating movement: how the arbiter decides, how stale resolutions are
// treated and how often locked-movement warnings are repeated.
package policy
