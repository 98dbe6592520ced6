// Package model defines the data exchanged by movement approval participants:
// movement requests, bus messages, participant roles and the per-entity
// approval states.
package model
