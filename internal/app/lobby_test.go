package app_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"peerquiz/internal/app"
	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
)

type lobbyRecorder struct {
	rosters []map[string]domain.RosterEntry
	starts  []map[string]domain.RosterEntry
}

func (r *lobbyRecorder) HandleRosterChanged(roster map[string]domain.RosterEntry) {
	r.rosters = append(r.rosters, roster)
}

func (r *lobbyRecorder) HandleGameStarting(roster map[string]domain.RosterEntry) {
	r.starts = append(r.starts, roster)
}

func newLobbyFixture(allowUnready bool) (*fakeSender, *lobbyRecorder, *app.Lobby) {
	sender := &fakeSender{}
	rec := &lobbyRecorder{}
	lobby := app.NewLobby("H", "Host", allowUnready, sender, rec)
	return sender, rec, lobby
}

func TestLobbyJoinRenameReady(t *testing.T) {
	sender, rec, lobby := newLobbyFixture(false)
	sender.setParticipants("c1")

	lobby.ParticipantConnected("c1")
	require.Len(t, rec.rosters, 1)
	require.Equal(t, "player c1", rec.rosters[0]["c1"].Name)
	require.False(t, rec.rosters[0]["c1"].IsReady)
	require.True(t, rec.rosters[0]["H"].IsReady, "the host is always ready")

	lobby.JoinRequest("c1", "Alice")
	require.Len(t, rec.rosters, 2)
	require.Equal(t, "Alice", rec.rosters[1]["c1"].Name)

	// Re-declaring the same name is not a roster change.
	lobby.JoinRequest("c1", "Alice")
	require.Len(t, rec.rosters, 2)

	lobby.ReadySignal("c1")
	require.Len(t, rec.rosters, 3)
	require.True(t, rec.rosters[2]["c1"].IsReady)

	// Every change went out as a full roster broadcast.
	var updates int
	for _, m := range sender.casts {
		if m.typ == protocol.TypeRosterUpdate {
			updates++
		}
	}
	require.Equal(t, 3, updates)
}

func TestLobbyStartRequiresReady(t *testing.T) {
	sender, rec, lobby := newLobbyFixture(false)
	sender.setParticipants("c1")

	lobby.ParticipantConnected("c1")
	require.ErrorIs(t, lobby.StartGame(), domain.ErrNotReady)
	require.Empty(t, rec.starts)

	lobby.ReadySignal("c1")
	require.NoError(t, lobby.StartGame())
	require.Len(t, rec.starts, 1)

	require.ErrorIs(t, lobby.StartGame(), domain.ErrAlreadyStarted)
	require.Len(t, rec.starts, 1)
}

func TestLobbyAllowUnreadyStart(t *testing.T) {
	sender, rec, lobby := newLobbyFixture(true)
	sender.setParticipants("c1")

	lobby.ParticipantConnected("c1")
	require.NoError(t, lobby.StartGame())
	require.Len(t, rec.starts, 1)
}

func TestLobbyIgnoresChangesAfterStart(t *testing.T) {
	sender, rec, lobby := newLobbyFixture(true)
	sender.setParticipants("c1")

	lobby.ParticipantConnected("c1")
	require.NoError(t, lobby.StartGame())
	seen := len(rec.rosters)

	lobby.ParticipantConnected("c2")
	lobby.JoinRequest("c1", "Renamed")
	lobby.ReadySignal("c1")
	require.Len(t, rec.rosters, seen, "an in-game lobby is frozen")
}

func TestLobbyRematchWhenAllRequest(t *testing.T) {
	sender, rec, lobby := newLobbyFixture(false)
	sender.setParticipants("c1", "c2")

	lobby.ParticipantConnected("c1")
	lobby.ParticipantConnected("c2")
	lobby.ReadySignal("c1")
	lobby.ReadySignal("c2")
	require.NoError(t, lobby.StartGame())
	require.Len(t, rec.starts, 1)

	lobby.RematchRequested("c1")
	require.Len(t, rec.starts, 1, "rematch needs everyone")
	lobby.RematchRequested("c2")
	require.Len(t, rec.starts, 2)
}

func TestLobbyRematchCompletesOnDisconnect(t *testing.T) {
	sender, rec, lobby := newLobbyFixture(false)
	sender.setParticipants("c1", "c2")

	lobby.ParticipantConnected("c1")
	lobby.ParticipantConnected("c2")
	lobby.ReadySignal("c1")
	lobby.ReadySignal("c2")
	require.NoError(t, lobby.StartGame())

	lobby.RematchRequested("c1")
	sender.setParticipants("c1")
	lobby.ParticipantDisconnected("c2")
	require.Len(t, rec.starts, 2, "the holdout leaving completes the rematch set")
}

func TestLobbyRematchIgnoresMidGameJoiner(t *testing.T) {
	sender, rec, lobby := newLobbyFixture(false)
	sender.setParticipants("c1", "c2")

	lobby.ParticipantConnected("c1")
	lobby.ParticipantConnected("c2")
	lobby.ReadySignal("c1")
	lobby.ReadySignal("c2")
	require.NoError(t, lobby.StartGame())

	// c3 connects while the game runs. It never made the roster and cannot
	// register rematch intent, so it must not hold the rematch open.
	sender.setParticipants("c1", "c2", "c3")
	lobby.ParticipantConnected("c3")

	lobby.RematchRequested("c1")
	require.Len(t, rec.starts, 1)
	lobby.RematchRequested("c2")
	require.Len(t, rec.starts, 2, "only roster members gate the rematch")
}

func TestLobbyRematchNeverFiresOnEmptyRoom(t *testing.T) {
	sender, rec, lobby := newLobbyFixture(false)
	sender.setParticipants("c1")

	lobby.ParticipantConnected("c1")
	lobby.ReadySignal("c1")
	require.NoError(t, lobby.StartGame())

	sender.setParticipants()
	lobby.ParticipantDisconnected("c1")
	require.Len(t, rec.starts, 1, "a host alone does not rematch")
}

func TestLobbyDisconnectRemovesEntry(t *testing.T) {
	sender, _, lobby := newLobbyFixture(false)
	sender.setParticipants("c1")

	lobby.ParticipantConnected("c1")
	sender.setParticipants()
	lobby.ParticipantDisconnected("c1")

	roster := lobby.Roster()
	require.Len(t, roster, 1)
	require.Contains(t, roster, "H")
}
