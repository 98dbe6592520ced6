package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/bus"
	"github.com/viant/movegate/service/messaging"
	"github.com/viant/movegate/service/messaging/memory"
)

// Bus joins participants through a remote Hub.
type Bus struct {
	URL    string
	Dialer *websocket.Dialer
}

// NewBus creates a websocket bus for the hub at url (ws:// or wss://).
func NewBus(url string) *Bus {
	return &Bus{URL: url, Dialer: websocket.DefaultDialer}
}

// Join dials the hub.
func (b *Bus) Join(ctx context.Context, participant model.Participant) (bus.Endpoint, error) {
	return DialWith(ctx, b.Dialer, b.URL, participant)
}

// Dial connects participant to the hub at url using the default dialer.
func Dial(ctx context.Context, url string, participant model.Participant) (bus.Endpoint, error) {
	return DialWith(ctx, websocket.DefaultDialer, url, participant)
}

// DialWith connects participant to the hub at url and waits until the hub
// has registered it.
func DialWith(ctx context.Context, dialer *websocket.Dialer, url string, participant model.Participant) (bus.Endpoint, error) {
	if err := bus.Validate(participant); err != nil {
		return nil, err
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	hello, err := newEnvelope(envelopeHello, participant)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	deadline := time.Now().Add(defaultHelloWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err = conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}
	_ = conn.SetReadDeadline(deadline)
	var welcome envelope
	if err = conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("hub did not welcome %s: %w", participant.ID, err)
	}
	if welcome.Type != envelopeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected %s envelope during handshake", welcome.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	ret := &endpoint{
		participant: participant,
		conn:        conn,
		inbox:       memory.NewQueue[model.Message](memory.InboxConfig()),
		done:        make(chan struct{}),
	}
	go ret.readLoop()
	return ret, nil
}

type endpoint struct {
	participant model.Participant
	conn        *websocket.Conn
	inbox       *memory.Queue[model.Message]
	writeMu     sync.Mutex
	done        chan struct{}
	closeOnce   sync.Once
}

func (e *endpoint) Participant() model.Participant { return e.participant }

func (e *endpoint) Inbox() messaging.Queue[model.Message] { return e.inbox }

// Done is closed once the connection to the hub is gone.
func (e *endpoint) Done() <-chan struct{} { return e.done }

func (e *endpoint) Publish(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return nil
	}
	select {
	case <-e.done:
		return bus.ErrClosed
	default:
	}
	frame, err := newEnvelope(envelopeMessage, msg)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(defaultWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = e.conn.SetWriteDeadline(deadline)
	if err = e.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Type, err)
	}
	return nil
}

func (e *endpoint) Leave(ctx context.Context) error {
	e.writeMu.Lock()
	deadline := time.Now().Add(defaultWriteWait)
	_ = e.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"), deadline)
	e.writeMu.Unlock()
	e.close()
	return nil
}

func (e *endpoint) readLoop() {
	defer e.close()
	for {
		var frame envelope
		if err := e.conn.ReadJSON(&frame); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				select {
				case <-e.done:
				default:
					log.Printf("movegate: websocket read for %s ended: %v", e.participant.ID, err)
				}
			}
			return
		}
		if frame.Type != envelopeMessage {
			continue
		}
		msg := &model.Message{}
		if err := frame.decode(msg); err != nil {
			log.Printf("movegate: dropping frame for %s: %v", e.participant.ID, err)
			continue
		}
		if err := e.inbox.Publish(context.Background(), msg); err != nil {
			log.Printf("movegate: inbox of %s dropped %s: %v", e.participant.ID, msg.Type, err)
		}
	}
}

func (e *endpoint) close() {
	e.closeOnce.Do(func() {
		close(e.done)
		_ = e.conn.Close()
	})
}
