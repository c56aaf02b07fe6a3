package app

import (
	"log"
	"sync"
	"time"

	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
)

// ClientEvents is the typed observer for client-side progression. Callbacks
// run while the session mutates and must not call back into it.
type ClientEvents interface {
	HandleQuestionPresented(q protocol.QuestionNew)
	// HandleAnswerRecorded reports the provisional local delta; the
	// authoritative figure follows in the round result.
	HandleAnswerRecorded(provisionalDelta int)
	HandleRoundResult(r protocol.RoundResult)
	HandleGameOver(g protocol.GameOver)
}

// ClientSession mirrors the host's progression for one player. It scores
// provisionally for immediate feedback, reports completion, and never
// declares the game over on its own: only the host's GameOver does that.
type ClientSession struct {
	sched  Scheduler
	rules  domain.Rules
	out    Sender
	events ClientEvents
	selfID string
	hostID string

	mu         sync.Mutex
	questions  []domain.Question
	difficulty domain.Difficulty

	idx       int
	answered  bool
	startedAt time.Time
	score     int
	finished  bool
	over      bool
	timer     Task
	delay     Task
}

// NewClientSession builds the local mirror from the GameInfo the host sent
// at connect time; the client never fetches questions itself.
func NewClientSession(sched Scheduler, rules domain.Rules, out Sender, events ClientEvents, selfID string, info protocol.GameInfo) *ClientSession {
	return &ClientSession{
		sched:      sched,
		rules:      rules,
		out:        out,
		events:     events,
		selfID:     selfID,
		hostID:     info.HostID,
		questions:  info.Questions,
		difficulty: info.Difficulty,
		idx:        -1,
	}
}

// Score returns the current local total.
func (c *ClientSession) Score() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.score
}

// Over reports whether the host has closed the game.
func (c *ClientSession) Over() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.over
}

// Stop clears pending timers. Idempotent; used on teardown.
func (c *ClientSession) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
}

// OnQuestionReceived resets the local round state and starts the countdown.
// Stale or out-of-order question indices are ignored; the index never moves
// backwards within a session.
func (c *ClientSession) OnQuestionReceived(q protocol.QuestionNew) {
	c.mu.Lock()
	if c.over || q.QuestionIndex <= c.idx {
		c.mu.Unlock()
		return
	}
	c.idx = q.QuestionIndex
	c.answered = false
	c.startedAt = c.sched.Now()
	if c.timer != nil {
		c.timer.Stop()
	}
	round := c.idx
	c.timer = c.sched.After(c.rules.QuestionDuration(c.difficulty), func() {
		c.onTimeExpired(round)
	})
	c.mu.Unlock()

	c.events.HandleQuestionPresented(q)
}

// SubmitAnswer stops the countdown, applies the provisional local delta,
// reports the answer to the host, and schedules the local advance.
func (c *ClientSession) SubmitAnswer(value string) {
	c.mu.Lock()
	if c.over || c.finished || c.answered || c.idx < 0 {
		c.mu.Unlock()
		return
	}
	c.answered = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	delta := 0
	if c.idx < len(c.questions) && value == c.questions[c.idx].Correct {
		delta = c.rules.Score(c.sched.Now().Sub(c.startedAt), c.rules.QuestionDuration(c.difficulty))
	}
	c.score += delta
	round := c.idx
	c.scheduleAdvanceLocked()
	c.mu.Unlock()

	v := value
	c.out.Send(c.hostID, protocol.TypeAnswerSubmitted, &protocol.AnswerSubmitted{QuestionIndex: round, Answer: &v})
	c.events.HandleAnswerRecorded(delta)
}

// onTimeExpired counts as no answer: zero delta locally, a null answer to
// the host, then the local advance.
func (c *ClientSession) onTimeExpired(round int) {
	c.mu.Lock()
	if c.over || c.finished || c.answered || round != c.idx {
		c.mu.Unlock()
		return
	}
	c.answered = true
	c.scheduleAdvanceLocked()
	c.mu.Unlock()

	c.out.Send(c.hostID, protocol.TypeAnswerSubmitted, &protocol.AnswerSubmitted{QuestionIndex: round, Answer: nil})
	c.events.HandleAnswerRecorded(0)
}

// scheduleAdvanceLocked arms the post-round pacing delay, after which the
// client either waits for the next host question or reports completion.
func (c *ClientSession) scheduleAdvanceLocked() {
	if c.delay != nil {
		c.delay.Stop()
	}
	c.delay = c.sched.After(c.rules.PostRoundDelay, c.advanceLocal)
}

func (c *ClientSession) advanceLocal() {
	c.mu.Lock()
	if c.over || c.finished {
		c.mu.Unlock()
		return
	}
	if c.idx+1 < len(c.questions) {
		// Next question arrives from the host; nothing to do locally.
		c.mu.Unlock()
		return
	}
	c.finished = true
	score := c.score
	c.mu.Unlock()

	c.out.Send(c.hostID, protocol.TypeClientFinished, &protocol.ClientFinished{Score: score})
}

// OnRoundResult adopts the host's authoritative total when it diverges from
// the provisional local one.
func (c *ClientSession) OnRoundResult(r protocol.RoundResult) {
	c.mu.Lock()
	if total, ok := r.Totals[c.selfID]; ok && total != c.score {
		log.Printf("client session: adjusting local score %d -> %d", c.score, total)
		c.score = total
	}
	c.mu.Unlock()

	c.events.HandleRoundResult(r)
}

// OnGameOver ends the local session; standings come from the host alone.
func (c *ClientSession) OnGameOver(g protocol.GameOver) {
	c.mu.Lock()
	if c.over {
		c.mu.Unlock()
		return
	}
	c.over = true
	c.stopTimersLocked()
	c.mu.Unlock()

	c.events.HandleGameOver(g)
}

func (c *ClientSession) stopTimersLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.delay != nil {
		c.delay.Stop()
		c.delay = nil
	}
}
