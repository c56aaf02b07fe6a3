package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
	"peerquiz/internal/transport/peer"
)

// QuestionRepository loads question-set content (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error)
}

// HighScoreStore is the persistence contract invoked at game end. A failed
// write is non-fatal: it is logged and surfaced as feedback only.
type HighScoreStore interface {
	AddScore(ctx context.Context, score domain.HighScore) (bool, error)
}

// HostConfig carries everything a hosting session needs up front.
type HostConfig struct {
	LocalName     string
	QuestionSetID string
	Difficulty    domain.Difficulty
	Rules         domain.Rules
	AllowUnready  bool
	Heartbeat     time.Duration
	PeerTimeout   time.Duration
}

// HostService owns the host side of one multiplayer game: the connection
// manager, the lobby, and the session once the game starts. It routes
// inbound protocol messages to the right component and persists the local
// player's score when the game closes.
type HostService struct {
	cfg           HostConfig
	sched         Scheduler
	questions     QuestionRepository
	scores        HighScoreStore
	lobbyEvents   LobbyEvents
	sessionEvents SessionEvents

	conn *ConnManager

	mu      sync.Mutex
	lobby   *Lobby
	session *HostSession
	set     domain.QuestionSet
	hostID  string
}

// NewHostService wires a host over the given transport. The observers may
// not be nil; use the Nop implementations for events you don't consume.
func NewHostService(cfg HostConfig, transport peer.Transport, sched Scheduler, questions QuestionRepository, scores HighScoreStore, lobbyEvents LobbyEvents, sessionEvents SessionEvents) *HostService {
	h := &HostService{
		cfg:           cfg,
		sched:         sched,
		questions:     questions,
		scores:        scores,
		lobbyEvents:   lobbyEvents,
		sessionEvents: sessionEvents,
	}
	h.conn = NewConnManager(transport, sched, h, cfg.Heartbeat, cfg.PeerTimeout)
	return h
}

// Start loads the question set, acquires the endpoint and opens the lobby.
// It returns the host code clients dial.
func (h *HostService) Start(ctx context.Context) (string, error) {
	set, err := h.questions.GetQuestionSet(ctx, h.cfg.QuestionSetID)
	if err != nil {
		return "", fmt.Errorf("load question set %q: %w", h.cfg.QuestionSetID, err)
	}
	if len(set.Questions) == 0 {
		return "", domain.ErrNoQuestions
	}

	hostID, err := h.conn.StartAsHost(ctx, h.cfg.LocalName)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	h.set = set
	h.hostID = hostID
	h.lobby = NewLobby(hostID, h.cfg.LocalName, h.cfg.AllowUnready, h.conn, h)
	h.mu.Unlock()
	return hostID, nil
}

// StartGame triggers the lobby's one-shot transition into the game.
func (h *HostService) StartGame() error {
	h.mu.Lock()
	lobby := h.lobby
	h.mu.Unlock()
	if lobby == nil {
		return fmt.Errorf("host not started")
	}
	return lobby.StartGame()
}

// SubmitAnswer records the host's own answer for the open round.
func (h *HostService) SubmitAnswer(value string) {
	h.mu.Lock()
	session := h.session
	hostID := h.hostID
	h.mu.Unlock()
	if session == nil {
		return
	}
	session.OnAnswer(hostID, session.CurrentIndex(), &value)
}

// HostID returns the published host code.
func (h *HostService) HostID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hostID
}

// Close tears down the session and every link. Idempotent.
func (h *HostService) Close() {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()
	if session != nil {
		session.Stop()
	}
	h.conn.Close()
}

// HandleParticipantConnected implements ConnEvents.
func (h *HostService) HandleParticipantConnected(id string) {
	h.mu.Lock()
	lobby := h.lobby
	h.mu.Unlock()
	if lobby != nil {
		lobby.ParticipantConnected(id)
	}
}

// HandleParticipantDisconnected implements ConnEvents. Lobby and session
// both reconcile; mid-game departures never halt the remaining players.
func (h *HostService) HandleParticipantDisconnected(id string, reason domain.DisconnectReason) {
	log.Printf("host: participant %s disconnected (%s)", id, reason)
	h.mu.Lock()
	lobby := h.lobby
	session := h.session
	h.mu.Unlock()
	if lobby != nil {
		lobby.ParticipantDisconnected(id)
	}
	if session != nil {
		session.ParticipantLeft(id)
	}
}

// HandleConnectionFailed implements ConnEvents. Endpoint-level failures are
// fatal to hosting; everything is torn down.
func (h *HostService) HandleConnectionFailed(err error, context string) {
	log.Printf("host: connection failed (%s): %v", context, err)
	h.Close()
}

// HandleMessage implements ConnEvents: the host-side protocol dispatch.
func (h *HostService) HandleMessage(senderID string, env protocol.Envelope) {
	h.mu.Lock()
	lobby := h.lobby
	session := h.session
	set := h.set
	hostID := h.hostID
	h.mu.Unlock()

	switch env.Type {
	case protocol.TypeJoinRequest:
		var p protocol.JoinRequest
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("host: %v", err)
			return
		}
		if lobby != nil {
			lobby.JoinRequest(senderID, p.Name)
			h.conn.Send(senderID, protocol.TypeGameInfo, &protocol.GameInfo{
				Questions:    set.Questions,
				Difficulty:   h.cfg.Difficulty,
				Participants: lobby.Roster(),
				HostID:       hostID,
			})
		}

	case protocol.TypeClientReady:
		var p protocol.ClientReady
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("host: %v", err)
			return
		}
		if lobby == nil {
			return
		}
		// After a finished game the same signal means "play again".
		if session != nil && session.Over() {
			lobby.RematchRequested(senderID)
		} else {
			lobby.ReadySignal(senderID)
		}

	case protocol.TypeAnswerSubmitted:
		var p protocol.AnswerSubmitted
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("host: %v", err)
			return
		}
		if session != nil {
			session.OnAnswer(senderID, p.QuestionIndex, p.Answer)
		}

	case protocol.TypeClientFinished:
		var p protocol.ClientFinished
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("host: %v", err)
			return
		}
		if session != nil {
			session.ClientFinished(senderID, p.Score)
		}

	case protocol.TypeError:
		var p protocol.ErrorMessage
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("host: %v", err)
			return
		}
		log.Printf("host: error from %s: %s (%s)", senderID, p.Message, p.Context)

	default:
		log.Printf("host: ignoring message type %q from %s", env.Type, senderID)
	}
}

// HandleRosterChanged implements LobbyEvents.
func (h *HostService) HandleRosterChanged(roster map[string]domain.RosterEntry) {
	h.lobbyEvents.HandleRosterChanged(roster)
}

// HandleGameStarting implements LobbyEvents: it builds the authoritative
// session over the start-time roster and presents question zero.
func (h *HostService) HandleGameStarting(roster map[string]domain.RosterEntry) {
	h.mu.Lock()
	if h.session != nil {
		h.session.Stop()
	}
	session := NewHostSession(h.sched, h.cfg.Rules, h.conn, h, h.hostID, roster)
	h.session = session
	set := h.set
	h.mu.Unlock()

	h.lobbyEvents.HandleGameStarting(roster)

	// Clients rebuild their local mirror from this; on a rematch it is the
	// only way they learn a new game began. Joiners already hold an
	// identical copy, which their active session ignores.
	h.conn.Broadcast(protocol.TypeGameInfo, &protocol.GameInfo{
		Questions:    set.Questions,
		Difficulty:   h.cfg.Difficulty,
		Participants: roster,
		HostID:       h.HostID(),
	})

	if err := session.Start(set, h.cfg.Difficulty); err != nil {
		log.Printf("host: game start failed: %v", err)
		h.conn.Broadcast(protocol.TypeError, &protocol.ErrorMessage{
			Message: err.Error(),
			Context: "game start",
		})
	}
}

// HandleQuestionPresented implements SessionEvents.
func (h *HostService) HandleQuestionPresented(q protocol.QuestionNew) {
	h.sessionEvents.HandleQuestionPresented(q)
}

// HandleRoundFinalized implements SessionEvents.
func (h *HostService) HandleRoundFinalized(r protocol.RoundResult) {
	h.sessionEvents.HandleRoundFinalized(r)
}

// HandleWaitingForFinishers implements SessionEvents.
func (h *HostService) HandleWaitingForFinishers(n int) {
	h.sessionEvents.HandleWaitingForFinishers(n)
}

// HandleGameOver implements SessionEvents: persist the host's score, tell
// the room who won, then forward.
func (h *HostService) HandleGameOver(g protocol.GameOver) {
	h.mu.Lock()
	hostID := h.hostID
	h.mu.Unlock()

	for _, standing := range g.Standings {
		if standing.ParticipantID != hostID {
			continue
		}
		qualified, err := h.scores.AddScore(context.Background(), domain.HighScore{
			PlayerName: standing.Name,
			Score:      standing.Score,
			GameLabel:  g.GameLabel,
			Mode:       "multiplayer",
			Difficulty: g.Difficulty,
			At:         h.sched.Now(),
		})
		if err != nil {
			log.Printf("host: high score save failed: %v", err)
		} else if qualified {
			log.Printf("host: %s entered the high scores with %d", standing.Name, standing.Score)
		}
		break
	}

	h.conn.Broadcast(protocol.TypeFeedback, &protocol.Feedback{
		Message: "Winner: " + g.Winner,
		Level:   "info",
	})
	h.sessionEvents.HandleGameOver(g)
}
