// Package protocol defines the wire vocabulary exchanged between a game host
// and its clients. Every message is a {type, payload} envelope; payloads are
// validated on decode so a message missing required fields is rejected whole
// rather than processed partially.
package protocol

import (
	"encoding/json"
	"fmt"

	"peerquiz/internal/domain"
)

// Type tags one message kind on the wire.
type Type string

const (
	TypePing            Type = "ping"
	TypePong            Type = "pong"
	TypeJoinRequest     Type = "joinRequest"
	TypeClientReady     Type = "clientReady"
	TypeRosterUpdate    Type = "rosterUpdate"
	TypeGameInfo        Type = "gameInfo"
	TypeGameStart       Type = "gameStart"
	TypeQuestionNew     Type = "questionNew"
	TypeAnswerSubmitted Type = "answerSubmitted"
	TypeRoundResult     Type = "roundResult"
	TypeClientFinished  Type = "clientFinished"
	TypeGameOver        Type = "gameOver"
	TypeError           Type = "error"
	TypeFeedback        Type = "feedback"
)

// Envelope is the outer shape of every message.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validator is implemented by payloads with required fields.
type Validator interface {
	Validate() error
}

// Encode marshals an envelope around the given payload.
func Encode(typ Type, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses the outer envelope. A missing type tag is a parse error.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrMessageParse, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", domain.ErrMessageParse)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into dst and runs its
// validation. Any failure is reported as a message parse error.
func (e Envelope) DecodePayload(dst Validator) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", domain.ErrMessageParse, e.Type, err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("%w: %s payload: %v", domain.ErrMessageParse, e.Type, err)
	}
	return nil
}

// JoinRequest announces a client's display name after its link opens.
type JoinRequest struct {
	Name string `json:"name"`
}

func (p *JoinRequest) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ClientReady flips the sender's lobby ready flag.
type ClientReady struct {
	IsReady bool `json:"isReady"`
}

func (p *ClientReady) Validate() error { return nil }

// RosterUpdate carries the full lobby roster; there is no delta protocol.
type RosterUpdate struct {
	Participants map[string]domain.RosterEntry `json:"participants"`
}

func (p *RosterUpdate) Validate() error {
	if p.Participants == nil {
		return fmt.Errorf("participants map is required")
	}
	return nil
}

// GameInfo is sent once to each client right after its join request is
// processed, so the client holds the complete question set before play.
type GameInfo struct {
	Questions    []domain.Question             `json:"questions"`
	Difficulty   domain.Difficulty             `json:"difficulty"`
	Participants map[string]domain.RosterEntry `json:"participants"`
	HostID       string                        `json:"hostId"`
}

func (p *GameInfo) Validate() error {
	if len(p.Questions) == 0 {
		return fmt.Errorf("questions are required")
	}
	if p.HostID == "" {
		return fmt.Errorf("hostId is required")
	}
	return nil
}

// GameStart moves every participant out of the lobby.
type GameStart struct {
	Participants map[string]domain.RosterEntry `json:"participants"`
}

func (p *GameStart) Validate() error {
	if p.Participants == nil {
		return fmt.Errorf("participants map is required")
	}
	return nil
}

// QuestionNew presents one question. Answers arrive pre-shuffled by the host.
type QuestionNew struct {
	QuestionIndex  int      `json:"questionIndex"`
	TotalQuestions int      `json:"totalQuestions"`
	Prompt         string   `json:"prompt"`
	Answers        []string `json:"answers"`
}

func (p *QuestionNew) Validate() error {
	if p.QuestionIndex < 0 {
		return fmt.Errorf("questionIndex must be non-negative")
	}
	if p.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if len(p.Answers) == 0 {
		return fmt.Errorf("answers are required")
	}
	return nil
}

// AnswerSubmitted carries one client's answer for a round. A nil Answer
// reports that the client's local timer expired without a submission.
type AnswerSubmitted struct {
	QuestionIndex int     `json:"questionIndex"`
	Answer        *string `json:"answer"`
}

func (p *AnswerSubmitted) Validate() error {
	if p.QuestionIndex < 0 {
		return fmt.Errorf("questionIndex must be non-negative")
	}
	return nil
}

// RoundResult reveals correctness, deltas and running totals for a round.
type RoundResult struct {
	QuestionIndex int             `json:"questionIndex"`
	Correctness   map[string]bool `json:"correctness"`
	Deltas        map[string]int  `json:"deltas"`
	Totals        map[string]int  `json:"totals"`
	CorrectAnswer string          `json:"correctAnswer"`
	TimedOut      bool            `json:"timedOut"`
}

func (p *RoundResult) Validate() error {
	if p.QuestionIndex < 0 {
		return fmt.Errorf("questionIndex must be non-negative")
	}
	if p.Correctness == nil || p.Deltas == nil || p.Totals == nil {
		return fmt.Errorf("correctness, deltas and totals are required")
	}
	if p.CorrectAnswer == "" {
		return fmt.Errorf("correctAnswer is required")
	}
	return nil
}

// ClientFinished reports that a client exhausted its local question sequence.
type ClientFinished struct {
	Score int `json:"score"`
}

func (p *ClientFinished) Validate() error {
	if p.Score < 0 {
		return fmt.Errorf("score must be non-negative")
	}
	return nil
}

// GameOver carries the final standings; only the host ever sends it.
type GameOver struct {
	Standings  []domain.Standing `json:"standings"`
	Winner     string            `json:"winner"`
	GameLabel  string            `json:"gameLabel"`
	Difficulty domain.Difficulty `json:"difficulty"`
}

func (p *GameOver) Validate() error {
	if len(p.Standings) == 0 {
		return fmt.Errorf("standings are required")
	}
	return nil
}

// ErrorMessage forwards a remote failure; it is surfaced, not acted on.
type ErrorMessage struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

func (p *ErrorMessage) Validate() error {
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// Feedback is a host-to-client notice (e.g. high-score qualification).
type Feedback struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

func (p *Feedback) Validate() error {
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
