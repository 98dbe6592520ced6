// Package approval implements the per-entity movement approval state machine.
// An entity is Idle until a request is submitted or observed, stays Requested
// until the request is approved, denied or cancelled, and then returns to Idle.
package approval
