// Package pipe is an in-process implementation of the peer transport
// contract: endpoints registered on a shared network, links backed by
// buffered channels. It exists for tests and same-process demos and behaves
// like the real thing, including half-closed links and unknown targets.
package pipe

import (
	"context"
	"fmt"
	"sync"

	"peerquiz/internal/domain"
	"peerquiz/internal/transport/peer"
)

const linkBuffer = 64

// Network is the shared registry endpoints attach to.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	nextID    int
}

func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]*Endpoint)}
}

// CreateEndpoint registers a new endpoint. An empty id gets an assigned one.
func (n *Network) CreateEndpoint(_ context.Context, id string) (peer.Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if id == "" {
		n.nextID++
		id = fmt.Sprintf("pipe-%d", n.nextID)
	}
	if _, ok := n.endpoints[id]; ok {
		return nil, fmt.Errorf("%w: endpoint %q already exists", domain.ErrEndpointInit, id)
	}
	ep := &Endpoint{
		network: n,
		id:      id,
		accept:  make(chan peer.Link, 8),
		fatal:   make(chan error, 1),
	}
	n.endpoints[id] = ep
	return ep, nil
}

func (n *Network) lookup(id string) (*Endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[id]
	return ep, ok
}

func (n *Network) remove(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, id)
}

// Endpoint implements peer.Endpoint on a pipe network.
type Endpoint struct {
	network *Network
	id      string
	accept  chan peer.Link
	fatal   chan error

	mu     sync.Mutex
	links  []*link
	closed bool
}

func (e *Endpoint) ID() string               { return e.id }
func (e *Endpoint) Accept() <-chan peer.Link { return e.accept }
func (e *Endpoint) Fatal() <-chan error      { return e.fatal }

// Fail injects an endpoint-level failure, for exercising fatal paths.
func (e *Endpoint) Fail(err error) {
	select {
	case e.fatal <- err:
	default:
	}
}

func (e *Endpoint) Dial(_ context.Context, targetID string) (peer.Link, error) {
	target, ok := e.network.lookup(targetID)
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint %q", domain.ErrPeerUnavailable, targetID)
	}

	local, remote := newLinkPair(e.id, targetID)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: endpoint closed", domain.ErrNetwork)
	}
	e.links = append(e.links, local)
	e.mu.Unlock()

	// The send happens under the target's lock so it cannot race a
	// concurrent Close of the accept channel.
	target.mu.Lock()
	if target.closed {
		target.mu.Unlock()
		local.Close()
		return nil, fmt.Errorf("%w: no endpoint %q", domain.ErrPeerUnavailable, targetID)
	}
	select {
	case target.accept <- remote:
	default:
		target.mu.Unlock()
		local.Close()
		return nil, fmt.Errorf("%w: accept backlog full at %q", domain.ErrNetwork, targetID)
	}
	target.links = append(target.links, remote)
	target.mu.Unlock()
	return local, nil
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	links := e.links
	e.links = nil
	e.mu.Unlock()

	for _, l := range links {
		l.Close()
	}
	e.network.remove(e.id)
	close(e.accept)
	return nil
}

// link is one side of a pipe connection. Each side closes only the channel
// it writes to, so Recv on the other side observes EOF without a racing
// close against an in-flight Send.
type link struct {
	remoteID string
	out      chan []byte
	in       chan []byte
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

func newLinkPair(aID, bID string) (*link, *link) {
	ab := make(chan []byte, linkBuffer)
	ba := make(chan []byte, linkBuffer)
	a := &link{remoteID: bID, out: ab, in: ba, done: make(chan struct{})}
	b := &link{remoteID: aID, out: ba, in: ab, done: make(chan struct{})}
	return a, b
}

func (l *link) RemoteID() string      { return l.remoteID }
func (l *link) Recv() <-chan []byte   { return l.in }
func (l *link) Done() <-chan struct{} { return l.done }

func (l *link) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%w: link closed", domain.ErrNetwork)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case l.out <- buf:
		return nil
	default:
		return fmt.Errorf("%w: link buffer full", domain.ErrNetwork)
	}
}

func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	close(l.out)
	return nil
}
