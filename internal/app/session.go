package app

import (
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
)

// SessionEvents is the typed observer for host-side game progression.
// Callbacks run while the session mutates and must not call back into it;
// everything a handler needs is in the event payload.
type SessionEvents interface {
	HandleQuestionPresented(q protocol.QuestionNew)
	HandleRoundFinalized(r protocol.RoundResult)
	// HandleWaitingForFinishers fires when the host is done but still
	// waiting on n connected participants.
	HandleWaitingForFinishers(n int)
	HandleGameOver(g protocol.GameOver)
}

// HostSession is the authoritative game engine: it sequences questions,
// collects answers, scores with a time-decay bonus, and closes the game
// behind a completion barrier covering every connected participant.
type HostSession struct {
	sched  Scheduler
	rules  domain.Rules
	out    Sender
	events SessionEvents
	hostID string
	rnd    *rand.Rand

	mu         sync.Mutex
	set        domain.QuestionSet
	difficulty domain.Difficulty
	names      map[string]string

	idx         int
	roundOpen   bool
	startedAt   time.Time
	answers     map[string]roundAnswer
	scores      map[string]int
	finished    map[string]time.Time
	hostDone    bool
	hostDoneAt  time.Time
	over        bool
	timer       Task
	advanceTask Task
}

type roundAnswer struct {
	value *string
	at    time.Time
}

// NewHostSession builds a session over the roster snapshot taken at game
// start. Every participant in the snapshot starts at zero.
func NewHostSession(sched Scheduler, rules domain.Rules, out Sender, events SessionEvents, hostID string, roster map[string]domain.RosterEntry) *HostSession {
	s := &HostSession{
		sched:    sched,
		rules:    rules,
		out:      out,
		events:   events,
		hostID:   hostID,
		rnd:      rand.New(rand.NewSource(sched.Now().UnixNano())),
		idx:      -1,
		names:    make(map[string]string, len(roster)),
		scores:   make(map[string]int, len(roster)),
		finished: make(map[string]time.Time),
	}
	for id, entry := range roster {
		s.names[id] = entry.Name
		s.scores[id] = 0
	}
	return s
}

// Start validates the question set and presents question zero.
func (s *HostSession) Start(set domain.QuestionSet, difficulty domain.Difficulty) error {
	s.mu.Lock()
	if len(set.Questions) == 0 {
		s.mu.Unlock()
		return domain.ErrNoQuestions
	}
	if s.idx != -1 || s.over {
		s.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	s.set = set
	s.difficulty = difficulty
	s.advanceLocked()
	s.mu.Unlock()
	return nil
}

// CurrentIndex returns the open question index, -1 before the first round.
func (s *HostSession) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

// Score returns the host's own running total.
func (s *HostSession) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[s.hostID]
}

// Over reports whether the final standings have been broadcast.
func (s *HostSession) Over() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.over
}

// Difficulty returns the difficulty the session runs at.
func (s *HostSession) Difficulty() domain.Difficulty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.difficulty
}

// GameLabel returns the question set's display label.
func (s *HostSession) GameLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Label
}

// Stop clears all pending timers. Idempotent; used on teardown.
func (s *HostSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
}

// OnAnswer records one participant's answer for the round. Duplicates, late
// answers for finalized rounds, and answers after game over are ignored. A
// nil value means the participant's timer ran out without a submission.
func (s *HostSession) OnAnswer(id string, questionIndex int, value *string) {
	s.mu.Lock()
	if s.over || !s.roundOpen || questionIndex != s.idx {
		s.mu.Unlock()
		log.Printf("session: discarding answer from %s for question %d", id, questionIndex)
		return
	}
	if _, dup := s.answers[id]; dup {
		s.mu.Unlock()
		return
	}
	if _, known := s.scores[id]; !known {
		// Late joiner: track them from here with a zero total.
		s.scores[id] = 0
		s.names[id] = "player " + id
	}
	s.answers[id] = roundAnswer{value: value, at: s.sched.Now()}
	if s.allAnsweredLocked() {
		s.finalizeRoundLocked(false)
	}
	s.mu.Unlock()
}

// ClientFinished marks a participant's local sequence as exhausted and
// re-evaluates the completion barrier. The reported score is informational;
// the host's own bookkeeping stays authoritative.
func (s *HostSession) ClientFinished(id string, reportedScore int) {
	s.mu.Lock()
	if s.over {
		s.mu.Unlock()
		return
	}
	if _, done := s.finished[id]; !done {
		s.finished[id] = s.sched.Now()
		if own, ok := s.scores[id]; ok && own != reportedScore {
			log.Printf("session: %s reported %d, host has %d", id, reportedScore, own)
		}
	}
	s.evaluateBarrierLocked()
	s.mu.Unlock()
}

// ParticipantLeft treats a departing participant as finished with their
// last-known score, then re-checks both the round and the barrier so nobody
// absent can block either.
func (s *HostSession) ParticipantLeft(id string) {
	s.mu.Lock()
	if s.over {
		s.mu.Unlock()
		return
	}
	if _, done := s.finished[id]; !done {
		s.finished[id] = s.sched.Now()
	}
	if s.roundOpen && s.allAnsweredLocked() {
		s.finalizeRoundLocked(false)
	}
	s.evaluateBarrierLocked()
	s.mu.Unlock()
}

// advanceLocked moves to the next question, or marks the host finished and
// evaluates the barrier when the sequence is exhausted.
func (s *HostSession) advanceLocked() {
	if s.over {
		return
	}
	next := s.idx + 1
	if next >= len(s.set.Questions) {
		if !s.hostDone {
			s.hostDone = true
			s.hostDoneAt = s.sched.Now()
		}
		s.evaluateBarrierLocked()
		return
	}

	s.idx = next
	s.roundOpen = true
	s.answers = make(map[string]roundAnswer)
	s.startedAt = s.sched.Now()

	q := s.set.Questions[s.idx]
	msg := protocol.QuestionNew{
		QuestionIndex:  s.idx,
		TotalQuestions: len(s.set.Questions),
		Prompt:         q.Prompt,
		Answers:        s.shuffled(q.Answers),
	}
	s.out.Broadcast(protocol.TypeQuestionNew, &msg)
	s.events.HandleQuestionPresented(msg)

	if s.timer != nil {
		s.timer.Stop()
	}
	round := s.idx
	s.timer = s.sched.After(s.rules.QuestionDuration(s.difficulty), func() {
		s.onTimeExpired(round)
	})
}

// shuffled returns a fresh uniform permutation; the correct answer is
// tracked by value, so position carries no meaning.
func (s *HostSession) shuffled(answers []string) []string {
	out := make([]string, len(answers))
	copy(out, answers)
	s.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (s *HostSession) onTimeExpired(round int) {
	s.mu.Lock()
	// All-answered finalization and timer expiry are mutually exclusive:
	// whichever runs first closes the round, the other becomes a no-op.
	if s.over || !s.roundOpen || round != s.idx {
		s.mu.Unlock()
		return
	}
	s.finalizeRoundLocked(true)
	s.mu.Unlock()
}

// allAnsweredLocked reports whether everyone still connected (plus the host)
// has answered the open round. Departed participants never block.
func (s *HostSession) allAnsweredLocked() bool {
	if _, ok := s.answers[s.hostID]; !ok {
		return false
	}
	for _, id := range s.out.Participants() {
		if id == s.hostID {
			continue
		}
		if _, ok := s.answers[id]; !ok {
			return false
		}
	}
	return true
}

// finalizeRoundLocked scores the round once, broadcasts the result, and
// schedules the advance after the feedback pause.
func (s *HostSession) finalizeRoundLocked(timedOut bool) {
	if !s.roundOpen {
		return
	}
	s.roundOpen = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	q := s.set.Questions[s.idx]
	duration := s.rules.QuestionDuration(s.difficulty)
	result := protocol.RoundResult{
		QuestionIndex: s.idx,
		Correctness:   make(map[string]bool, len(s.scores)),
		Deltas:        make(map[string]int, len(s.scores)),
		Totals:        make(map[string]int, len(s.scores)),
		CorrectAnswer: q.Correct,
		TimedOut:      timedOut,
	}
	for id := range s.scores {
		ans, answered := s.answers[id]
		correct := answered && ans.value != nil && *ans.value == q.Correct
		delta := 0
		if correct {
			delta = s.rules.Score(ans.at.Sub(s.startedAt), duration)
		}
		s.scores[id] += delta
		result.Correctness[id] = correct
		result.Deltas[id] = delta
		result.Totals[id] = s.scores[id]
	}

	s.out.Broadcast(protocol.TypeRoundResult, &result)
	s.events.HandleRoundFinalized(result)

	if s.advanceTask != nil {
		s.advanceTask.Stop()
	}
	s.advanceTask = s.sched.After(s.rules.PostRoundDelay, func() {
		s.mu.Lock()
		s.advanceLocked()
		s.mu.Unlock()
	})
}

// evaluateBarrierLocked closes the game once the host is done and every
// connected participant has been recorded as finished. The guard flag makes
// this fire at most once per session.
func (s *HostSession) evaluateBarrierLocked() {
	if s.over || !s.hostDone {
		return
	}
	waiting := 0
	for _, id := range s.out.Participants() {
		if id == s.hostID {
			continue
		}
		if _, done := s.finished[id]; !done {
			waiting++
		}
	}
	if waiting > 0 {
		s.events.HandleWaitingForFinishers(waiting)
		return
	}
	s.over = true
	s.stopTimersLocked()

	g := protocol.GameOver{
		Standings:  s.standingsLocked(),
		GameLabel:  s.set.Label,
		Difficulty: s.difficulty,
	}
	if len(g.Standings) > 0 {
		g.Winner = g.Standings[0].Name
	}
	s.out.Broadcast(protocol.TypeGameOver, &g)
	s.events.HandleGameOver(g)
}

// standingsLocked sorts every tracked participant by score descending; ties
// break by earliest finish time, then name.
func (s *HostSession) standingsLocked() []domain.Standing {
	standings := make([]domain.Standing, 0, len(s.scores))
	for id, score := range s.scores {
		standings = append(standings, domain.Standing{
			ParticipantID: id,
			Name:          s.names[id],
			Score:         score,
		})
	}
	finishedAt := func(id string) time.Time {
		if id == s.hostID {
			return s.hostDoneAt
		}
		return s.finished[id]
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		fi, fj := finishedAt(standings[i].ParticipantID), finishedAt(standings[j].ParticipantID)
		if !fi.Equal(fj) {
			return fi.Before(fj)
		}
		return standings[i].Name < standings[j].Name
	})
	return standings
}

func (s *HostSession) stopTimersLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.advanceTask != nil {
		s.advanceTask.Stop()
		s.advanceTask = nil
	}
}
