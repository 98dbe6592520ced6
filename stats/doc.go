// Package stats keeps aggregated counters of movement requests handled by one
// participant.
package stats
