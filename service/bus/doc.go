// Package bus defines the broadcast channel connecting session participants.
//
// The contract is deliberately weak: best-effort broadcast, in-order per
// sender, no acknowledgement and no retry. Join and departure of participants
// are announced to the remaining members as participantJoined and
// participantLeft messages so that the coordinator can resync mirrors and
// reconcile orphaned requests.
package bus
