package coordinator

import "errors"

var (
	ErrNotArbiter          = errors.New("coordinator: operation requires the arbiter role")
	ErrNotRequester        = errors.New("coordinator: operation requires the requester role")
	ErrNotOwner            = errors.New("coordinator: request belongs to another participant")
	ErrMovementLocked      = errors.New("coordinator: movement is locked until approved")
	ErrApprovalRequired    = errors.New("coordinator: movement requires approval")
	ErrApprovalNotRequired = errors.New("coordinator: movement does not require approval")
	ErrUnauthorizedSender  = errors.New("coordinator: sender role may not author this message")
)
