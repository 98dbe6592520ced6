package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest is returned when a movement request misses its identity.
var ErrInvalidRequest = errors.New("model: invalid movement request")

// Point is a 2-D scene coordinate.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// MovementRequest represents one in-flight request to relocate a token.
type MovementRequest struct {
	EntityID      string    `json:"entityId"`                // token identity, registry key
	ContainerID   string    `json:"containerId"`             // scene the token lives in
	RequesterID   string    `json:"requesterId"`             // requesting participant
	RequesterName string    `json:"requesterName,omitempty"` // shown on the arbiter's dialog
	Waypoints     []Point   `json:"waypoints,omitempty"`
	Destination   Point     `json:"destination"`
	VisualTag     string    `json:"visualTag,omitempty"`   // opaque rendering hint (ruler colour)
	ChannelName   string    `json:"channelName,omitempty"` // requester preview channel
	CreatedAt     time.Time `json:"createdAt"`
}

// Path returns waypoints followed by the destination. It is never empty.
func (r *MovementRequest) Path() []Point {
	ret := make([]Point, 0, len(r.Waypoints)+1)
	ret = append(ret, r.Waypoints...)
	return append(ret, r.Destination)
}

// Validate checks the request identity fields.
func (r *MovementRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if r.EntityID == "" {
		return fmt.Errorf("%w: entityId was empty", ErrInvalidRequest)
	}
	if r.RequesterID == "" {
		return fmt.Errorf("%w: requesterId was empty", ErrInvalidRequest)
	}
	return nil
}

// Clone returns a deep copy; registry writes always store full copies.
func (r *MovementRequest) Clone() *MovementRequest {
	if r == nil {
		return nil
	}
	ret := *r
	if r.Waypoints != nil {
		ret.Waypoints = append([]Point(nil), r.Waypoints...)
	}
	return &ret
}

// Cancellation builds the cancel payload addressing this request.
func (r *MovementRequest) Cancellation() *Cancellation {
	return &Cancellation{
		EntityID:    r.EntityID,
		ContainerID: r.ContainerID,
		RequesterID: r.RequesterID,
		Name:        r.RequesterName,
	}
}

// Cancellation aborts a still pending request.
type Cancellation struct {
	EntityID    string `json:"entityId"`
	ContainerID string `json:"containerId"`
	RequesterID string `json:"requesterId"`
	Name        string `json:"name,omitempty"`
}
