package app

import (
	"context"
	"log"
	"sync"
	"time"

	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
	"peerquiz/internal/transport/peer"
)

// ClientNotices is the typed observer for client-side lobby and connection
// news that falls outside the session itself.
type ClientNotices interface {
	HandleRosterChanged(roster map[string]domain.RosterEntry)
	HandleFeedback(message, level string)
	// HandleHostLost fires when the link to the host goes away; there is no
	// reconnect, the session is over for this participant.
	HandleHostLost(reason domain.DisconnectReason)
}

// ClientConfig carries everything a joining player needs up front.
type ClientConfig struct {
	LocalName   string
	HostCode    string
	Rules       domain.Rules
	Heartbeat   time.Duration
	PeerTimeout time.Duration
}

// ClientService owns the client side of one multiplayer game: the single
// link to the host, the local session mirror, and the protocol dispatch.
type ClientService struct {
	cfg     ClientConfig
	sched   Scheduler
	scores  HighScoreStore
	notices ClientNotices
	events  ClientEvents

	conn *ConnManager

	mu      sync.Mutex
	session *ClientSession
	started bool
}

// NewClientService wires a client over the given transport.
func NewClientService(cfg ClientConfig, transport peer.Transport, sched Scheduler, scores HighScoreStore, notices ClientNotices, events ClientEvents) *ClientService {
	c := &ClientService{
		cfg:     cfg,
		sched:   sched,
		scores:  scores,
		notices: notices,
		events:  events,
	}
	c.conn = NewConnManager(transport, sched, c, cfg.Heartbeat, cfg.PeerTimeout)
	return c
}

// Connect validates the host code and opens the link. The join request goes
// out as soon as the link is up.
func (c *ClientService) Connect(ctx context.Context) error {
	return c.conn.ConnectAsClient(ctx, c.cfg.HostCode, c.cfg.LocalName)
}

// Ready signals lobby readiness (or, after a finished game, rematch intent).
func (c *ClientService) Ready() {
	c.conn.Send(c.cfg.HostCode, protocol.TypeClientReady, &protocol.ClientReady{IsReady: true})
}

// SubmitAnswer forwards the player's answer for the open round.
func (c *ClientService) SubmitAnswer(value string) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		session.SubmitAnswer(value)
	}
}

// Close tears down the link. Idempotent.
func (c *ClientService) Close() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		session.Stop()
	}
	c.conn.Close()
}

// HandleParticipantConnected implements ConnEvents; for a client the only
// participant is the host, so this is where the hello goes out.
func (c *ClientService) HandleParticipantConnected(id string) {
	c.conn.Send(id, protocol.TypeJoinRequest, &protocol.JoinRequest{Name: c.cfg.LocalName})
}

// HandleParticipantDisconnected implements ConnEvents.
func (c *ClientService) HandleParticipantDisconnected(id string, reason domain.DisconnectReason) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		session.Stop()
	}
	c.notices.HandleHostLost(reason)
}

// HandleConnectionFailed implements ConnEvents.
func (c *ClientService) HandleConnectionFailed(err error, context string) {
	log.Printf("client: connection failed (%s): %v", context, err)
	c.Close()
	c.notices.HandleHostLost(domain.ReasonError)
}

// HandleMessage implements ConnEvents: the client-side protocol dispatch.
func (c *ClientService) HandleMessage(senderID string, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeGameInfo:
		var p protocol.GameInfo
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("client: %v", err)
			return
		}
		c.mu.Lock()
		if c.session != nil && !c.session.Over() {
			c.mu.Unlock()
			return
		}
		c.session = NewClientSession(c.sched, c.cfg.Rules, c.conn, c, c.conn.LocalID(), p)
		c.started = false
		c.mu.Unlock()

	case protocol.TypeRosterUpdate:
		var p protocol.RosterUpdate
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("client: %v", err)
			return
		}
		c.notices.HandleRosterChanged(p.Participants)

	case protocol.TypeGameStart:
		var p protocol.GameStart
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("client: %v", err)
			return
		}
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()

	case protocol.TypeQuestionNew:
		var p protocol.QuestionNew
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("client: %v", err)
			return
		}
		c.mu.Lock()
		session := c.session
		c.mu.Unlock()
		if session != nil {
			session.OnQuestionReceived(p)
		}

	case protocol.TypeRoundResult:
		var p protocol.RoundResult
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("client: %v", err)
			return
		}
		c.mu.Lock()
		session := c.session
		c.mu.Unlock()
		if session != nil {
			session.OnRoundResult(p)
		}

	case protocol.TypeGameOver:
		var p protocol.GameOver
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("client: %v", err)
			return
		}
		c.mu.Lock()
		session := c.session
		c.mu.Unlock()
		if session != nil {
			session.OnGameOver(p)
		}

	case protocol.TypeFeedback:
		var p protocol.Feedback
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("client: %v", err)
			return
		}
		c.notices.HandleFeedback(p.Message, p.Level)

	case protocol.TypeError:
		var p protocol.ErrorMessage
		if err := env.DecodePayload(&p); err != nil {
			log.Printf("client: %v", err)
			return
		}
		log.Printf("client: error from host: %s (%s)", p.Message, p.Context)

	default:
		log.Printf("client: ignoring message type %q", env.Type)
	}
}

// HandleQuestionPresented implements ClientEvents.
func (c *ClientService) HandleQuestionPresented(q protocol.QuestionNew) {
	c.events.HandleQuestionPresented(q)
}

// HandleAnswerRecorded implements ClientEvents.
func (c *ClientService) HandleAnswerRecorded(delta int) {
	c.events.HandleAnswerRecorded(delta)
}

// HandleRoundResult implements ClientEvents.
func (c *ClientService) HandleRoundResult(r protocol.RoundResult) {
	c.events.HandleRoundResult(r)
}

// HandleGameOver implements ClientEvents: persist this player's final score
// before forwarding. A failed write costs a log line, never the game.
func (c *ClientService) HandleGameOver(g protocol.GameOver) {
	selfID := c.conn.LocalID()
	for _, standing := range g.Standings {
		if standing.ParticipantID != selfID {
			continue
		}
		qualified, err := c.scores.AddScore(context.Background(), domain.HighScore{
			PlayerName: c.cfg.LocalName,
			Score:      standing.Score,
			GameLabel:  g.GameLabel,
			Mode:       "multiplayer",
			Difficulty: g.Difficulty,
			At:         c.sched.Now(),
		})
		if err != nil {
			log.Printf("client: high score save failed: %v", err)
		} else if qualified {
			c.notices.HandleFeedback("You made the high scores!", "info")
		}
		break
	}
	c.events.HandleGameOver(g)
}
