// Package coordinator runs the movement approval protocol for one session
// participant.
//
// A Service carries an explicit role. Inbound bus messages are routed through
// a dispatch table keyed by message type and role, so each role only reacts
// to the messages it is meant to handle, and only from senders whose role may
// author them. Every handler and local operation runs under a single lock;
// waiting on the arbiter's decision surface and on movement legs happens
// outside of it.
//
// The arbiter's Service owns the authoritative pending request registry and
// replicates every change. Requesters keep a mirror and derive their previews
// and pending indicator from it.
package coordinator
