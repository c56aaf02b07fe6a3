package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
	"peerquiz/internal/transport/peer"
)

const hostCodeLen = 6

// ConnEvents is the typed observer for connection lifecycle. Callbacks are
// serialized: at most one fires at a time, so handlers need no locking
// against each other.
type ConnEvents interface {
	HandleParticipantConnected(id string)
	HandleParticipantDisconnected(id string, reason domain.DisconnectReason)
	HandleMessage(senderID string, env protocol.Envelope)
	HandleConnectionFailed(err error, context string)
}

// Sender is the outbound surface the lobby and session layers use.
type Sender interface {
	Send(id string, typ protocol.Type, payload any)
	Broadcast(typ protocol.Type, payload any)
	Participants() []string
}

// ConnManager owns the local transport endpoint and one link per remote
// participant. It provides liveness detection (heartbeat ping/pong, timeout
// eviction) and a role-oblivious send/broadcast/receive surface.
type ConnManager struct {
	transport peer.Transport
	sched     Scheduler
	heartbeat time.Duration
	timeout   time.Duration
	events    ConnEvents

	// emitMu guards the observer dispatch queue; callbacks run one at a
	// time and re-entrant emits are queued instead of deadlocking.
	emitMu   sync.Mutex
	emitQ    []func()
	emitting bool

	mu         sync.Mutex
	endpoint   peer.Endpoint
	isHost     bool
	hostID     string
	localName  string
	links      map[string]*remoteLink
	pulse      Task
	generation int
}

type remoteLink struct {
	link        peer.Link
	lastContact time.Time
}

// NewConnManager wires a manager over the given transport. Heartbeat and
// timeout default to the reference 5s/15s when zero.
func NewConnManager(transport peer.Transport, sched Scheduler, events ConnEvents, heartbeat, timeout time.Duration) *ConnManager {
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ConnManager{
		transport: transport,
		sched:     sched,
		heartbeat: heartbeat,
		timeout:   timeout,
		events:    events,
		links:     make(map[string]*remoteLink),
	}
}

// NewHostCode returns a fresh numeric host code.
func NewHostCode() string {
	max := 1
	for i := 0; i < hostCodeLen; i++ {
		max *= 10
	}
	return fmt.Sprintf("%0*d", hostCodeLen, rand.Intn(max))
}

// ValidHostCode reports whether code is a well-formed host code.
func ValidHostCode(code string) bool {
	if len(code) != hostCodeLen {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// StartAsHost acquires a listening endpoint under a fresh host code and
// begins accepting links, heartbeating and timeout checking.
func (m *ConnManager) StartAsHost(ctx context.Context, localName string) (string, error) {
	m.mu.Lock()
	if m.endpoint != nil {
		m.mu.Unlock()
		return "", domain.ErrAlreadyStarted
	}
	m.mu.Unlock()

	code := NewHostCode()
	ep, err := m.transport.CreateEndpoint(ctx, code)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.endpoint = ep
	m.isHost = true
	m.hostID = code
	m.localName = localName
	gen := m.generation
	m.pulse = m.sched.Every(m.heartbeat, func() { m.onHeartbeat(gen) })
	m.mu.Unlock()

	go m.acceptLoop(ep, gen)
	go m.watchFatal(ep, gen)
	return code, nil
}

// ConnectAsClient validates the host code, opens a local endpoint and links
// to the host. The client heartbeats the host and evicts it on silence.
func (m *ConnManager) ConnectAsClient(ctx context.Context, hostCode, localName string) error {
	if !ValidHostCode(hostCode) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTarget, hostCode)
	}

	m.mu.Lock()
	if m.endpoint != nil {
		m.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	m.mu.Unlock()

	ep, err := m.transport.CreateEndpoint(ctx, "")
	if err != nil {
		return err
	}
	l, err := ep.Dial(ctx, hostCode)
	if err != nil {
		_ = ep.Close()
		return err
	}

	m.mu.Lock()
	m.endpoint = ep
	m.isHost = false
	m.hostID = hostCode
	m.localName = localName
	m.links[hostCode] = &remoteLink{link: l, lastContact: m.sched.Now()}
	gen := m.generation
	m.pulse = m.sched.Every(m.heartbeat, func() { m.onHeartbeat(gen) })
	m.mu.Unlock()

	go m.watchFatal(ep, gen)
	go m.readLoop(hostCode, l, gen)

	m.emit(func() { m.events.HandleParticipantConnected(hostCode) })
	return nil
}

// LocalID returns this endpoint's id (the host code for hosts).
func (m *ConnManager) LocalID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isHost {
		return m.hostID
	}
	if m.endpoint != nil {
		return m.endpoint.ID()
	}
	return ""
}

// Participants returns the ids with an open link, in no particular order.
func (m *ConnManager) Participants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	return ids
}

// Send delivers one message to a participant. Sending on a missing or closed
// link is a warned no-op; a send failure tears the link down like an
// unexpected close.
func (m *ConnManager) Send(id string, typ protocol.Type, payload any) {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		log.Printf("conn: encode %s: %v", typ, err)
		return
	}
	m.mu.Lock()
	entry, ok := m.links[id]
	gen := m.generation
	m.mu.Unlock()
	if !ok {
		log.Printf("conn: dropping %s for %s: link not open", typ, id)
		return
	}
	if err := entry.link.Send(data); err != nil {
		log.Printf("conn: send %s to %s failed: %v", typ, id, err)
		// Cleanup runs off this goroutine: the caller may hold locks that
		// the disconnect event needs to take again.
		go m.dropLink(id, domain.ReasonError, gen)
	}
}

// Broadcast sends one message to every open link.
func (m *ConnManager) Broadcast(typ protocol.Type, payload any) {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		log.Printf("conn: encode %s: %v", typ, err)
		return
	}
	m.mu.Lock()
	gen := m.generation
	targets := make(map[string]peer.Link, len(m.links))
	for id, entry := range m.links {
		targets[id] = entry.link
	}
	m.mu.Unlock()

	for id, l := range targets {
		if err := l.Send(data); err != nil {
			log.Printf("conn: broadcast %s to %s failed: %v", typ, id, err)
			go m.dropLink(id, domain.ReasonError, gen)
		}
	}
}

// Close tears down every link and the endpoint and resets state. Idempotent;
// no disconnect events fire for links closed this way.
func (m *ConnManager) Close() {
	m.mu.Lock()
	if m.endpoint == nil {
		m.mu.Unlock()
		return
	}
	ep := m.endpoint
	links := m.links
	pulse := m.pulse
	m.endpoint = nil
	m.links = make(map[string]*remoteLink)
	m.pulse = nil
	m.generation++
	m.mu.Unlock()

	if pulse != nil {
		pulse.Stop()
	}
	for _, entry := range links {
		_ = entry.link.Close()
	}
	_ = ep.Close()
}

func (m *ConnManager) acceptLoop(ep peer.Endpoint, gen int) {
	for l := range ep.Accept() {
		id := l.RemoteID()
		m.mu.Lock()
		if gen != m.generation {
			m.mu.Unlock()
			_ = l.Close()
			return
		}
		if _, dup := m.links[id]; dup {
			m.mu.Unlock()
			log.Printf("conn: duplicate link from %s rejected", id)
			_ = l.Close()
			continue
		}
		m.links[id] = &remoteLink{link: l, lastContact: m.sched.Now()}
		m.mu.Unlock()

		go m.readLoop(id, l, gen)
		m.emit(func() { m.events.HandleParticipantConnected(id) })
	}
}

func (m *ConnManager) watchFatal(ep peer.Endpoint, gen int) {
	err, ok := <-ep.Fatal()
	if !ok {
		return
	}
	m.mu.Lock()
	stale := gen != m.generation
	m.mu.Unlock()
	if stale {
		return
	}
	m.emit(func() { m.events.HandleConnectionFailed(err, "local endpoint") })
}

func (m *ConnManager) readLoop(id string, l peer.Link, gen int) {
	for {
		select {
		case data, ok := <-l.Recv():
			if !ok {
				m.dropLink(id, domain.ReasonLeft, gen)
				return
			}
			m.handleInbound(id, data, gen)
		case <-l.Done():
			m.dropLink(id, domain.ReasonLeft, gen)
			return
		}
	}
}

func (m *ConnManager) handleInbound(id string, data []byte, gen int) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Printf("conn: dropping message from %s: %v", id, err)
		return
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	if entry, ok := m.links[id]; ok {
		entry.lastContact = m.sched.Now()
	}
	m.mu.Unlock()

	// Heartbeats are intercepted here, never surfaced as application traffic.
	switch env.Type {
	case protocol.TypePing:
		m.Send(id, protocol.TypePong, nil)
		return
	case protocol.TypePong:
		return
	}

	m.emit(func() { m.events.HandleMessage(id, env) })
}

func (m *ConnManager) onHeartbeat(gen int) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	now := m.sched.Now()
	var stale []string
	for id, entry := range m.links {
		if now.Sub(entry.lastContact) > m.timeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.dropLink(id, domain.ReasonTimeout, gen)
	}

	// Hosts ping everyone; clients ping the host.
	m.Broadcast(protocol.TypePing, nil)
}

// dropLink is the single cleanup path for a dead link, whether it closed,
// failed on send, or timed out.
func (m *ConnManager) dropLink(id string, reason domain.DisconnectReason, gen int) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	entry, ok := m.links[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.links, id)
	m.mu.Unlock()

	_ = entry.link.Close()
	m.emit(func() { m.events.HandleParticipantDisconnected(id, reason) })
}

func (m *ConnManager) emit(fn func()) {
	m.emitMu.Lock()
	m.emitQ = append(m.emitQ, fn)
	if m.emitting {
		m.emitMu.Unlock()
		return
	}
	m.emitting = true
	for len(m.emitQ) > 0 {
		next := m.emitQ[0]
		m.emitQ = m.emitQ[1:]
		m.emitMu.Unlock()
		next()
		m.emitMu.Lock()
	}
	m.emitting = false
	m.emitMu.Unlock()
}
