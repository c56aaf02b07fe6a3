// Package ws implements the peer transport contract over WebSocket links: a
// host endpoint serves /peer on its bind address and clients dial it. The
// host code is resolved to a dialable address by an injected resolver, which
// stands in for whatever signaling directory is deployed around the game.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"peerquiz/internal/domain"
	"peerquiz/internal/transport/peer"
)

// Resolver maps an endpoint id to a dialable base URL (e.g. ws://10.0.0.5:7777).
type Resolver func(endpointID string) (string, error)

// StaticResolver resolves every id to the same address, the common case of a
// host whose address is shared out of band alongside its code.
func StaticResolver(addr string) Resolver {
	return func(string) (string, error) {
		if addr == "" {
			return "", fmt.Errorf("no host address configured")
		}
		return "ws://" + addr, nil
	}
}

// Transport creates WebSocket-backed endpoints.
type Transport struct {
	bind    string
	resolve Resolver
}

func NewTransport(bind string, resolve Resolver) *Transport {
	return &Transport{bind: bind, resolve: resolve}
}

// CreateEndpoint returns a listening endpoint when id is set (host role) and
// a dial-only endpoint otherwise (client role).
func (t *Transport) CreateEndpoint(ctx context.Context, id string) (peer.Endpoint, error) {
	ep := &endpoint{
		transport: t,
		id:        id,
		accept:    make(chan peer.Link, 8),
		fatal:     make(chan error, 1),
	}
	if id == "" {
		ep.id = uuid.NewString()
		return ep, nil
	}

	ln, err := net.Listen("tcp", t.bind)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %v", domain.ErrEndpointInit, t.bind, err)
	}
	ep.ln = ln
	mux := http.NewServeMux()
	mux.HandleFunc("/peer", ep.servePeer)
	ep.server = &http.Server{Handler: mux}
	go func() {
		if err := ep.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ep.fail(fmt.Errorf("%w: %v", domain.ErrNetwork, err))
		}
	}()
	return ep, nil
}

type endpoint struct {
	transport *Transport
	id        string
	accept    chan peer.Link
	fatal     chan error
	server    *http.Server
	ln        net.Listener

	mu     sync.Mutex
	closed bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (e *endpoint) ID() string               { return e.id }
func (e *endpoint) Accept() <-chan peer.Link { return e.accept }
func (e *endpoint) Fatal() <-chan error      { return e.fatal }

func (e *endpoint) fail(err error) {
	select {
	case e.fatal <- err:
	default:
	}
}

func (e *endpoint) servePeer(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("host") != e.id {
		http.Error(w, "unknown host code", http.StatusNotFound)
		return
	}
	from := r.URL.Query().Get("from")
	if from == "" {
		http.Error(w, "missing from", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	l := newLink(conn, from)

	// The send happens under the lock so a concurrent Close cannot close
	// the accept channel between the check and the send.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		l.Close()
		return
	}
	select {
	case e.accept <- l:
		e.mu.Unlock()
	default:
		e.mu.Unlock()
		log.Printf("ws: accept backlog full, dropping link from %s", from)
		l.Close()
	}
}

func (e *endpoint) Dial(ctx context.Context, targetID string) (peer.Link, error) {
	base, err := e.transport.resolve(targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPeerUnavailable, err)
	}
	u, err := url.Parse(base + "/peer")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidTarget, err)
	}
	q := u.Query()
	q.Set("host", targetID)
	q.Set("from", e.id)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: no endpoint %q", domain.ErrPeerUnavailable, targetID)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrNetwork, u.Host, err)
	}
	return newLink(conn, targetID), nil
}

func (e *endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.server != nil {
		_ = e.server.Close()
	}
	close(e.accept)
	return nil
}

// link adapts one websocket connection to peer.Link. Gorilla allows a single
// concurrent writer, so Send serializes on a mutex; one goroutine pumps reads
// into the Recv channel.
type link struct {
	conn     *websocket.Conn
	remoteID string
	in       chan []byte
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newLink(conn *websocket.Conn, remoteID string) *link {
	l := &link{
		conn:     conn,
		remoteID: remoteID,
		in:       make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	go l.readPump()
	return l
}

func (l *link) readPump() {
	defer close(l.in)
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.Close()
			return
		}
		select {
		case l.in <- data:
		case <-l.done:
			return
		}
	}
}

func (l *link) RemoteID() string      { return l.remoteID }
func (l *link) Recv() <-chan []byte   { return l.in }
func (l *link) Done() <-chan struct{} { return l.done }

func (l *link) Send(data []byte) error {
	select {
	case <-l.done:
		return fmt.Errorf("%w: link closed", domain.ErrNetwork)
	default:
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	return nil
}

func (l *link) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
	return nil
}
