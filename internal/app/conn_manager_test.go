package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"peerquiz/internal/app"
	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
	"peerquiz/internal/transport/pipe"
)

type disconnection struct {
	id     string
	reason domain.DisconnectReason
}

type inbound struct {
	senderID string
	env      protocol.Envelope
}

type connRecorder struct {
	connected    chan string
	disconnected chan disconnection
	messages     chan inbound
	failures     chan error
}

func newConnRecorder() *connRecorder {
	return &connRecorder{
		connected:    make(chan string, 16),
		disconnected: make(chan disconnection, 16),
		messages:     make(chan inbound, 16),
		failures:     make(chan error, 16),
	}
}

func (r *connRecorder) HandleParticipantConnected(id string) { r.connected <- id }
func (r *connRecorder) HandleParticipantDisconnected(id string, reason domain.DisconnectReason) {
	r.disconnected <- disconnection{id: id, reason: reason}
}
func (r *connRecorder) HandleMessage(senderID string, env protocol.Envelope) {
	r.messages <- inbound{senderID: senderID, env: env}
}
func (r *connRecorder) HandleConnectionFailed(err error, _ string) { r.failures <- err }

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func expectQuiet[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %+v", what, v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHostCodes(t *testing.T) {
	code := app.NewHostCode()
	require.True(t, app.ValidHostCode(code), "generated code %q must validate", code)

	require.False(t, app.ValidHostCode(""))
	require.False(t, app.ValidHostCode("12345"))
	require.False(t, app.ValidHostCode("1234567"))
	require.False(t, app.ValidHostCode("12a456"))
}

func TestConnectAndExchange(t *testing.T) {
	ctx := context.Background()
	network := pipe.NewNetwork()

	hostRec := newConnRecorder()
	host := app.NewConnManager(network, app.NewManualScheduler(time.Unix(0, 0)), hostRec, 0, 0)
	code, err := host.StartAsHost(ctx, "Host")
	require.NoError(t, err)
	require.True(t, app.ValidHostCode(code))
	require.Equal(t, code, host.LocalID())
	defer host.Close()

	clientRec := newConnRecorder()
	client := app.NewConnManager(network, app.NewManualScheduler(time.Unix(0, 0)), clientRec, 0, 0)
	require.NoError(t, client.ConnectAsClient(ctx, code, "Alice"))
	defer client.Close()

	clientID := recv(t, hostRec.connected, "host-side connect")
	require.Equal(t, code, recv(t, clientRec.connected, "client-side connect"))
	require.Equal(t, []string{clientID}, host.Participants())
	require.Equal(t, []string{code}, client.Participants())

	client.Send(code, protocol.TypeJoinRequest, &protocol.JoinRequest{Name: "Alice"})
	msg := recv(t, hostRec.messages, "join request")
	require.Equal(t, clientID, msg.senderID)
	require.Equal(t, protocol.TypeJoinRequest, msg.env.Type)

	host.Broadcast(protocol.TypeFeedback, &protocol.Feedback{Message: "hello"})
	msg = recv(t, clientRec.messages, "feedback")
	require.Equal(t, protocol.TypeFeedback, msg.env.Type)
}

func TestConnectRejectsBadTargets(t *testing.T) {
	ctx := context.Background()
	network := pipe.NewNetwork()

	client := app.NewConnManager(network, app.NewManualScheduler(time.Unix(0, 0)), newConnRecorder(), 0, 0)
	require.ErrorIs(t, client.ConnectAsClient(ctx, "not-a-code", "Alice"), domain.ErrInvalidTarget)
	require.ErrorIs(t, client.ConnectAsClient(ctx, "000000", "Alice"), domain.ErrPeerUnavailable)
}

func TestStartTwiceFails(t *testing.T) {
	ctx := context.Background()
	network := pipe.NewNetwork()

	host := app.NewConnManager(network, app.NewManualScheduler(time.Unix(0, 0)), newConnRecorder(), 0, 0)
	_, err := host.StartAsHost(ctx, "Host")
	require.NoError(t, err)
	defer host.Close()

	_, err = host.StartAsHost(ctx, "Host")
	require.ErrorIs(t, err, domain.ErrAlreadyStarted)
}

func TestHeartbeatsNeverSurface(t *testing.T) {
	ctx := context.Background()
	network := pipe.NewNetwork()

	hostRec := newConnRecorder()
	host := app.NewConnManager(network, app.NewManualScheduler(time.Unix(0, 0)), hostRec, 0, 0)
	code, err := host.StartAsHost(ctx, "Host")
	require.NoError(t, err)
	defer host.Close()

	clientRec := newConnRecorder()
	clientSched := app.NewManualScheduler(time.Unix(0, 0))
	client := app.NewConnManager(network, clientSched, clientRec, 0, 0)
	require.NoError(t, client.ConnectAsClient(ctx, code, "Alice"))
	defer client.Close()

	clientID := recv(t, hostRec.connected, "host-side connect")
	recv(t, clientRec.connected, "client-side connect")

	// A heartbeat cycle: the client pings, the host answers with a pong.
	clientSched.Advance(5 * time.Second)
	// The marker rides the same link after the ping, so once it surfaces
	// the ping has already been through the host's dispatch.
	client.Send(code, protocol.TypeJoinRequest, &protocol.JoinRequest{Name: "Alice"})
	msg := recv(t, hostRec.messages, "marker after ping")
	require.Equal(t, protocol.TypeJoinRequest, msg.env.Type, "the ping must be intercepted, not surfaced")

	host.Send(clientID, protocol.TypeFeedback, &protocol.Feedback{Message: "marker"})
	msg = recv(t, clientRec.messages, "marker after pong")
	require.Equal(t, protocol.TypeFeedback, msg.env.Type, "the pong must be absorbed, not surfaced")
}

func TestSilentPeerIsEvicted(t *testing.T) {
	ctx := context.Background()
	network := pipe.NewNetwork()

	hostRec := newConnRecorder()
	hostSched := app.NewManualScheduler(time.Unix(0, 0))
	host := app.NewConnManager(network, hostSched, hostRec, 5*time.Second, 15*time.Second)
	code, err := host.StartAsHost(ctx, "Host")
	require.NoError(t, err)
	defer host.Close()

	// A bare endpoint that never answers pings.
	mute, err := network.CreateEndpoint(ctx, "")
	require.NoError(t, err)
	_, err = mute.Dial(ctx, code)
	require.NoError(t, err)

	muteID := recv(t, hostRec.connected, "mute peer connect")

	hostSched.Advance(20 * time.Second)
	gone := recv(t, hostRec.disconnected, "timeout eviction")
	require.Equal(t, muteID, gone.id)
	require.Equal(t, domain.ReasonTimeout, gone.reason)
	require.Empty(t, host.Participants())
}

func TestCloseIsSilentAndIdempotent(t *testing.T) {
	ctx := context.Background()
	network := pipe.NewNetwork()

	hostRec := newConnRecorder()
	host := app.NewConnManager(network, app.NewManualScheduler(time.Unix(0, 0)), hostRec, 0, 0)
	code, err := host.StartAsHost(ctx, "Host")
	require.NoError(t, err)

	clientRec := newConnRecorder()
	client := app.NewConnManager(network, app.NewManualScheduler(time.Unix(0, 0)), clientRec, 0, 0)
	require.NoError(t, client.ConnectAsClient(ctx, code, "Alice"))
	defer client.Close()

	recv(t, hostRec.connected, "host-side connect")
	recv(t, clientRec.connected, "client-side connect")

	host.Close()
	host.Close()

	// The client observes the host going away; the closing side stays quiet.
	gone := recv(t, clientRec.disconnected, "host gone")
	require.Equal(t, code, gone.id)
	require.Equal(t, domain.ReasonLeft, gone.reason)
	expectQuiet(t, hostRec.disconnected, "disconnect event on the closing side")
}
