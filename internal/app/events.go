package app

import (
	"peerquiz/internal/domain"
	"peerquiz/internal/protocol"
)

// Nop observers for callers that only consume a subset of events.

type NopLobbyEvents struct{}

func (NopLobbyEvents) HandleRosterChanged(map[string]domain.RosterEntry) {}
func (NopLobbyEvents) HandleGameStarting(map[string]domain.RosterEntry) {}

type NopSessionEvents struct{}

func (NopSessionEvents) HandleQuestionPresented(protocol.QuestionNew) {}
func (NopSessionEvents) HandleRoundFinalized(protocol.RoundResult)   {}
func (NopSessionEvents) HandleWaitingForFinishers(int)               {}
func (NopSessionEvents) HandleGameOver(protocol.GameOver)            {}

type NopClientEvents struct{}

func (NopClientEvents) HandleQuestionPresented(protocol.QuestionNew) {}
func (NopClientEvents) HandleAnswerRecorded(int)                     {}
func (NopClientEvents) HandleRoundResult(protocol.RoundResult)       {}
func (NopClientEvents) HandleGameOver(protocol.GameOver)             {}

type NopClientNotices struct{}

func (NopClientNotices) HandleRosterChanged(map[string]domain.RosterEntry) {}
func (NopClientNotices) HandleFeedback(string, string)                     {}
func (NopClientNotices) HandleHostLost(domain.DisconnectReason)            {}
