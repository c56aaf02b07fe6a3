package domain

import "errors"

var (
	// ErrEndpointInit is returned when the local transport endpoint cannot start.
	ErrEndpointInit = errors.New("transport endpoint initialization failed")
	// ErrInvalidTarget is returned when a host code is malformed.
	ErrInvalidTarget = errors.New("invalid host code")
	// ErrPeerUnavailable is returned when the target endpoint does not exist.
	ErrPeerUnavailable = errors.New("peer unavailable")
	// ErrNetwork covers transport and signaling failures while connecting.
	ErrNetwork = errors.New("network failure")
	// ErrMessageParse is returned for messages that cannot be decoded or lack required fields.
	ErrMessageParse = errors.New("malformed message")
	// ErrNoQuestions is returned when a game is started with an empty question set.
	ErrNoQuestions = errors.New("question set is empty")
	// ErrQuestionSetNotFound indicates the question content could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrAlreadyStarted is returned when a lobby or session is started twice.
	ErrAlreadyStarted = errors.New("game already started")
	// ErrNotReady is returned when game start is gated on unready participants.
	ErrNotReady = errors.New("not all participants are ready")
)
