// Package peer defines the transport contract the connection manager
// consumes. A transport hands out endpoints; an endpoint accepts and dials
// links; a link is one reliable, ordered, bidirectional byte channel to a
// single remote endpoint. Implementations live in sibling packages.
package peer

import "context"

// Transport creates local endpoints. If id is empty the transport assigns
// one; a host passes its published code so clients can find it.
type Transport interface {
	CreateEndpoint(ctx context.Context, id string) (Endpoint, error)
}

// Endpoint is one local attachment point holding zero or more links.
type Endpoint interface {
	// ID is the stable identifier other endpoints dial.
	ID() string

	// Dial opens a link to the endpoint with the given id.
	Dial(ctx context.Context, targetID string) (Link, error)

	// Accept yields inbound links. The channel closes when the endpoint does.
	Accept() <-chan Link

	// Fatal yields endpoint-level failures (e.g. loss of the signaling
	// layer). Per-link failures are reported on the link itself.
	Fatal() <-chan error

	// Close releases the endpoint and every link on it. Idempotent.
	Close() error
}

// Link is one open connection to a remote endpoint. Send order is delivery
// order; there is no ordering across different links.
type Link interface {
	// RemoteID identifies the endpoint at the other end.
	RemoteID() string

	// Send transmits one message. It fails once the link is closed.
	Send(data []byte) error

	// Recv yields inbound messages. The channel closes when the link does.
	Recv() <-chan []byte

	// Done is closed when the link closes for any reason.
	Done() <-chan struct{}

	// Close tears the link down. Idempotent.
	Close() error
}
