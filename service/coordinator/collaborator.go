package coordinator

import (
	"context"
	"log"

	"github.com/viant/movegate/model"
)

// Renderer draws and clears the path preview of a pending request.
type Renderer interface {
	DrawPreview(ctx context.Context, request *model.MovementRequest) error
	ClearPreview(ctx context.Context, entityID, channelName string) error
}

// Executor moves an entity by one leg and returns once the leg completes.
type Executor interface {
	MoveTo(ctx context.Context, entityID string, point model.Point) error
}

// Notifier surfaces user-facing notices.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// DecisionPresenter shows the arbiter a request. Present must not block; the
// presenter calls resolve once, from any goroutine, when the arbiter decides.
type DecisionPresenter interface {
	Present(ctx context.Context, request *model.MovementRequest, resolve func(model.Verdict)) error
	Dismiss(ctx context.Context, entityID string) error
}

// Controller reports whether this client controls an entity and therefore
// performs its approved movement.
type Controller interface {
	Controls(entityID string) bool
}

// Indicator reflects local protocol state in the host UI.
type Indicator interface {
	SetPending(pending bool)
	SetEnabled(enabled bool)
}

// Level grades a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice codes.
const (
	NoticeRequestSent            = "requestSent"
	NoticePendingRequest         = "pendingRequest"
	NoticeMovementLocked         = "movementLocked"
	NoticeMovementApproved       = "movementApproved"
	NoticeMovementDenied         = "movementDenied"
	NoticeMovementFailed         = "movementFailed"
	NoticeRequestCancelled       = "requestCancelled"
	NoticeRequestCancelledByUser = "requestCancelledByUser"
)

// Notice is a user-facing message.
type Notice struct {
	Level    Level  `json:"level"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	EntityID string `json:"entityId,omitempty"`
}

type nopRenderer struct{}

func (nopRenderer) DrawPreview(context.Context, *model.MovementRequest) error { return nil }
func (nopRenderer) ClearPreview(context.Context, string, string) error        { return nil }

type nopExecutor struct{}

func (nopExecutor) MoveTo(context.Context, string, model.Point) error { return nil }

type logNotifier struct{}

func (logNotifier) Notify(_ context.Context, notice Notice) {
	log.Printf("movegate: [%s] %s", notice.Level, notice.Message)
}

type nopPresenter struct{}

func (nopPresenter) Present(context.Context, *model.MovementRequest, func(model.Verdict)) error {
	return nil
}
func (nopPresenter) Dismiss(context.Context, string) error { return nil }

type allController struct{}

func (allController) Controls(string) bool { return true }

type nopIndicator struct{}

func (nopIndicator) SetPending(bool) {}
func (nopIndicator) SetEnabled(bool) {}
