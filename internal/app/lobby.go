package app

import (
	"log"
	"sync"

	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
)

// LobbyEvents is the typed observer for lobby-phase changes.
type LobbyEvents interface {
	HandleRosterChanged(roster map[string]domain.RosterEntry)
	// HandleGameStarting fires exactly once per lobby cycle, with the roster
	// snapshot the game begins with.
	HandleGameStarting(roster map[string]domain.RosterEntry)
}

// Lobby is the host-side pre-game roster: who is here, what they are called,
// whether they are ready, and the one-shot start gate. Every change pushes
// the full roster to all participants; there is no delta protocol, which is
// fine at lobby sizes of tens.
type Lobby struct {
	hostID       string
	allowUnready bool
	out          Sender
	events       LobbyEvents

	mu      sync.Mutex
	roster  map[string]domain.RosterEntry
	started bool
	rematch map[string]struct{}
}

// NewLobby builds a lobby whose roster always contains the host, ready.
func NewLobby(hostID, hostName string, allowUnready bool, out Sender, events LobbyEvents) *Lobby {
	return &Lobby{
		hostID:       hostID,
		allowUnready: allowUnready,
		out:          out,
		events:       events,
		roster: map[string]domain.RosterEntry{
			hostID: {Name: hostName, IsReady: true},
		},
		rematch: make(map[string]struct{}),
	}
}

// Roster returns a snapshot of the current roster.
func (l *Lobby) Roster() map[string]domain.RosterEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// ParticipantConnected adds a not-ready entry under a placeholder name; the
// join request that follows carries the real one.
func (l *Lobby) ParticipantConnected(id string) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	if _, ok := l.roster[id]; !ok {
		l.roster[id] = domain.RosterEntry{Name: "player " + id, IsReady: false}
	}
	roster := l.snapshotLocked()
	l.mu.Unlock()
	l.publish(roster)
}

// JoinRequest records the participant's declared name. Ready state is
// untouched; the roster is rebroadcast only when something changed.
func (l *Lobby) JoinRequest(id, declaredName string) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	entry, ok := l.roster[id]
	if !ok || entry.Name == declaredName {
		l.mu.Unlock()
		return
	}
	entry.Name = declaredName
	l.roster[id] = entry
	roster := l.snapshotLocked()
	l.mu.Unlock()
	l.publish(roster)
}

// ReadySignal flips a participant to ready.
func (l *Lobby) ReadySignal(id string) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	entry, ok := l.roster[id]
	if !ok || entry.IsReady {
		l.mu.Unlock()
		return
	}
	entry.IsReady = true
	l.roster[id] = entry
	roster := l.snapshotLocked()
	l.mu.Unlock()
	l.publish(roster)
}

// ParticipantDisconnected drops the entry and any pending rematch request,
// then re-checks whether the remaining rematch set is now complete.
func (l *Lobby) ParticipantDisconnected(id string) {
	l.mu.Lock()
	if _, ok := l.roster[id]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.roster, id)
	delete(l.rematch, id)
	roster := l.snapshotLocked()
	ready := l.rematchCompleteLocked()
	l.mu.Unlock()

	l.publish(roster)
	if ready {
		l.startRematch()
	}
}

// StartGame is the one-shot transition out of the lobby. Unless the lobby
// allows unready starts, every connected participant must be ready.
func (l *Lobby) StartGame() error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	if !l.allowUnready {
		for id, entry := range l.roster {
			if !entry.IsReady {
				l.mu.Unlock()
				log.Printf("lobby: start blocked, %s not ready", id)
				return domain.ErrNotReady
			}
		}
	}
	l.started = true
	l.rematch = make(map[string]struct{})
	roster := l.snapshotLocked()
	l.mu.Unlock()

	l.out.Broadcast(protocol.TypeGameStart, &protocol.GameStart{Participants: roster})
	l.events.HandleGameStarting(roster)
	return nil
}

// RematchRequested tracks post-game rematch intent. Once every connected
// non-host participant has asked, a fresh lobby cycle starts.
func (l *Lobby) RematchRequested(id string) {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	if _, ok := l.roster[id]; !ok {
		l.mu.Unlock()
		return
	}
	l.rematch[id] = struct{}{}
	ready := l.rematchCompleteLocked()
	l.mu.Unlock()

	if ready {
		l.startRematch()
	}
}

func (l *Lobby) startRematch() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	l.rematch = make(map[string]struct{})
	l.mu.Unlock()

	if err := l.StartGame(); err != nil {
		log.Printf("lobby: rematch start failed: %v", err)
	}
}

// rematchCompleteLocked reports whether every connected non-host player has
// requested a rematch. Only peers on the frozen roster count; someone who
// connected mid-game never played and cannot register intent, so they must
// not hold the rematch open. An empty connected set never triggers one.
func (l *Lobby) rematchCompleteLocked() bool {
	if !l.started || len(l.rematch) == 0 {
		return false
	}
	connected := 0
	for _, id := range l.out.Participants() {
		if id == l.hostID {
			continue
		}
		if _, ok := l.roster[id]; !ok {
			continue
		}
		connected++
		if _, ok := l.rematch[id]; !ok {
			return false
		}
	}
	return connected > 0
}

func (l *Lobby) snapshotLocked() map[string]domain.RosterEntry {
	out := make(map[string]domain.RosterEntry, len(l.roster))
	for id, entry := range l.roster {
		out[id] = entry
	}
	return out
}

func (l *Lobby) publish(roster map[string]domain.RosterEntry) {
	l.out.Broadcast(protocol.TypeRosterUpdate, &protocol.RosterUpdate{Participants: roster})
	l.events.HandleRosterChanged(roster)
}
