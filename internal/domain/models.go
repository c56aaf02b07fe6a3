package domain

import "time"

// Difficulty selects the per-question countdown duration.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Rules bundles the tunable scoring and pacing constants of a game.
type Rules struct {
	BaseScore      int
	MaxTimeBonus   int
	PostRoundDelay time.Duration
	Durations      map[Difficulty]time.Duration
}

// DefaultRules mirrors the reference tuning: 10 base points, up to 50 bonus
// points decaying linearly over the question duration, 2s between rounds.
func DefaultRules() Rules {
	return Rules{
		BaseScore:      10,
		MaxTimeBonus:   50,
		PostRoundDelay: 2 * time.Second,
		Durations: map[Difficulty]time.Duration{
			DifficultyEasy:   60 * time.Second,
			DifficultyMedium: 30 * time.Second,
			DifficultyHard:   10 * time.Second,
		},
	}
}

// QuestionDuration returns the countdown for a difficulty. Unknown
// difficulties fall back to medium so a malformed config never yields a
// zero-length timer.
func (r Rules) QuestionDuration(d Difficulty) time.Duration {
	if dur, ok := r.Durations[d]; ok && dur > 0 {
		return dur
	}
	return r.Durations[DifficultyMedium]
}

// Score computes the delta for a correct answer submitted after elapsed time
// of a question lasting duration. The bonus decays linearly and bottoms out
// at zero; incorrect or absent answers score nothing.
func (r Rules) Score(elapsed, duration time.Duration) int {
	if duration <= 0 {
		return r.BaseScore
	}
	frac := 1 - elapsed.Seconds()/duration.Seconds()
	if frac < 0 {
		frac = 0
	}
	bonus := int(float64(r.MaxTimeBonus)*frac + 0.5)
	return r.BaseScore + bonus
}

// Question is one multiple-choice prompt. Exactly one answer value is
// correct; correctness is decided by value equality, never by position.
type Question struct {
	Prompt  string   `json:"prompt"`
	Answers []string `json:"answers"`
	Correct string   `json:"correct"`
}

// QuestionSet is an ordered collection of questions under a display label.
type QuestionSet struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Questions []Question `json:"questions"`
}

// ConnState tracks the lifecycle of one peer link.
type ConnState int

const (
	ConnOpening ConnState = iota
	ConnOpen
	ConnClosing
	ConnClosed
)

// DisconnectReason explains why a participant left.
type DisconnectReason string

const (
	ReasonLeft    DisconnectReason = "left"
	ReasonTimeout DisconnectReason = "timeout"
	ReasonError   DisconnectReason = "error"
)

// Participant is the connection manager's record of one remote peer.
type Participant struct {
	ID          string
	DisplayName string
	IsHost      bool
	State       ConnState
	LastContact time.Time
}

// RosterEntry is the lobby's view of one participant.
type RosterEntry struct {
	Name    string `json:"name"`
	IsReady bool   `json:"isReady"`
}

// Standing is one row of the final scoreboard.
type Standing struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
}

// HighScore is the record handed to a high-score store when a game ends.
type HighScore struct {
	PlayerName string
	Score      int
	GameLabel  string
	Mode       string
	Difficulty Difficulty
	At         time.Time
}
