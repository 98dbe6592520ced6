package ws

import (
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/viant/movegate/model"
	"github.com/viant/movegate/service/bus"
)

// Hub relays session messages between websocket peers. Each connection
// opens with a hello envelope naming the participant; the hub answers with
// welcome once the peer is registered.
type Hub struct {
	mu           sync.RWMutex
	peers        map[string]*peer
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	helloTimeout time.Duration
	backlog      int
}

// HubOption customises a hub.
type HubOption func(h *Hub)

// WithCheckOrigin sets the origin policy used during upgrade.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// WithWriteTimeout bounds every frame write.
func WithWriteTimeout(timeout time.Duration) HubOption {
	return func(h *Hub) { h.writeTimeout = timeout }
}

// WithPeerBacklog sets the number of frames buffered per peer before drops.
func WithPeerBacklog(size int) HubOption {
	return func(h *Hub) { h.backlog = size }
}

// NewHub creates a hub.
func NewHub(options ...HubOption) *Hub {
	ret := &Hub{
		peers: make(map[string]*peer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: defaultWriteWait,
		helloTimeout: defaultHelloWait,
		backlog:      defaultPeerBacklog,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// ServeHTTP upgrades the connection and serves one peer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("movegate: websocket upgrade failed: %v", err)
		return
	}
	participant, err := h.hello(conn)
	if err != nil {
		log.Printf("movegate: rejected websocket peer %s: %v", r.RemoteAddr, err)
		deadline := time.Now().Add(h.writeTimeout)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), deadline)
		_ = conn.Close()
		return
	}

	p := &peer{
		participant: participant,
		conn:        conn,
		send:        make(chan *envelope, h.backlog),
		done:        make(chan struct{}),
	}
	welcome, _ := newEnvelope(envelopeWelcome, participant)
	p.enqueue(welcome)
	h.register(p)
	go p.writeLoop(h.writeTimeout)
	h.broadcast(participant.ID, model.NewPresence(model.TypeParticipantJoined, participant))

	h.readLoop(p)
	if h.unregister(p) {
		h.broadcast(participant.ID, model.NewPresence(model.TypeParticipantLeft, participant))
	}
}

// Members returns the participants currently connected, ordered by ID.
func (h *Hub) Members() []model.Participant {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ret := make([]model.Participant, 0, len(h.peers))
	for _, p := range h.peers {
		ret = append(ret, p.participant)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// Close disconnects every peer.
func (h *Hub) Close() error {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]*peer)
	h.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
	return nil
}

func (h *Hub) hello(conn *websocket.Conn) (model.Participant, error) {
	var participant model.Participant
	_ = conn.SetReadDeadline(time.Now().Add(h.helloTimeout))
	var frame envelope
	if err := conn.ReadJSON(&frame); err != nil {
		return participant, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	if frame.Type != envelopeHello {
		return participant, bus.ErrInvalidParticipant
	}
	if err := frame.decode(&participant); err != nil {
		return participant, err
	}
	return participant, bus.Validate(participant)
}

func (h *Hub) readLoop(p *peer) {
	for {
		var frame envelope
		if err := p.conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type != envelopeMessage {
			continue
		}
		msg := &model.Message{}
		if err := frame.decode(msg); err != nil {
			log.Printf("movegate: dropping frame from %s: %v", p.participant.ID, err)
			continue
		}
		// authorship is bound to the connection, not to the payload
		msg.SenderID = p.participant.ID
		msg.SenderRole = p.participant.Role
		h.broadcast(p.participant.ID, msg)
	}
}

// register replaces any previous connection of the same participant.
func (h *Hub) register(p *peer) {
	h.mu.Lock()
	previous := h.peers[p.participant.ID]
	h.peers[p.participant.ID] = p
	h.mu.Unlock()
	if previous != nil {
		previous.close()
	}
}

// unregister removes p unless it has already been replaced.
func (h *Hub) unregister(p *peer) bool {
	h.mu.Lock()
	current, ok := h.peers[p.participant.ID]
	removed := ok && current == p
	if removed {
		delete(h.peers, p.participant.ID)
	}
	h.mu.Unlock()
	p.close()
	return removed
}

func (h *Hub) broadcast(senderID string, msg *model.Message) {
	frame, err := newEnvelope(envelopeMessage, msg)
	if err != nil {
		log.Printf("movegate: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, p := range h.peers {
		if id == senderID {
			continue
		}
		if !p.enqueue(frame) {
			log.Printf("movegate: websocket peer %s is slow, dropped %s", id, msg.Type)
		}
	}
}

type peer struct {
	participant model.Participant
	conn        *websocket.Conn
	send        chan *envelope
	done        chan struct{}
	closeOnce   sync.Once
}

func (p *peer) enqueue(frame *envelope) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *peer) writeLoop(timeout time.Duration) {
	for {
		select {
		case frame := <-p.send:
			if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				p.close()
				return
			}
			if err := p.conn.WriteJSON(frame); err != nil {
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}
