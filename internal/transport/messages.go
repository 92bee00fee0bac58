package transport

import (
	"encoding/json"

	"quiz-live/internal/models"
)

// Message is the wire envelope shared by every backend: commands going up
// and events coming down both carry {type, payload}.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage marshals payload into an envelope.
func NewMessage(msgType string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// Commands (client -> server).
const (
	CmdCreateGame   = "create-game"
	CmdJoinGame     = "join-game"
	CmdStartGame    = "start-game"
	CmdSubmitAnswer = "submit-answer"
	CmdNextQuestion = "next-question"
	CmdLeaveGame    = "leave-game"
)

// Events (server -> all subscribers of a game).
const (
	EventGameCreated    = "gameCreated"
	EventPlayerJoined   = "playerJoined"
	EventPlayerLeft     = "playerLeft"
	EventGameStarted    = "gameStarted"
	EventNewQuestion    = "newQuestion"
	EventPlayerAnswered = "playerAnswered"
	EventTimerTick      = "timerTick"
	EventQuestionEnded  = "questionEnded"
	EventGameEnded      = "gameEnded"
	EventError          = "error"
)

// Connection lifecycle events emitted by the WebSocket backend.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	// EventFallback signals that reconnection attempts are exhausted and the
	// caller should switch to the in-process backend.
	EventFallback = "fallback-to-simulation"
)

// Command payloads.

type CreateGamePayload struct {
	GameCode string          `json:"gameCode,omitempty"`
	Settings models.Settings `json:"settings"`
	HostID   string          `json:"hostId"`
}

type JoinGamePayload struct {
	GameCode   string `json:"gameCode"`
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
}

type StartGamePayload struct {
	GameCode string `json:"gameCode"`
}

type SubmitAnswerPayload struct {
	GameCode      string  `json:"gameCode"`
	PlayerID      string  `json:"playerId"`
	Answer        string  `json:"answer"`
	TimeRemaining float64 `json:"timeRemaining"`
}

type NextQuestionPayload struct {
	GameCode string `json:"gameCode"`
}

type LeaveGamePayload struct {
	GameCode string `json:"gameCode"`
	PlayerID string `json:"playerId"`
}

// Event payloads.

type GameCreatedPayload struct {
	GameCode string          `json:"gameCode"`
	HostID   string          `json:"hostId"`
	Settings models.Settings `json:"settings"`
}

type PlayerJoinedPayload struct {
	GameCode    string           `json:"gameCode"`
	Player      models.PlayerDTO `json:"player"`
	PlayerCount int              `json:"playerCount"`
}

type PlayerLeftPayload struct {
	GameCode    string `json:"gameCode"`
	PlayerID    string `json:"playerId"`
	PlayerName  string `json:"playerName"`
	PlayerCount int    `json:"playerCount"`
}

type GameStartedPayload struct {
	GameCode      string          `json:"gameCode"`
	Settings      models.Settings `json:"settings"`
	QuestionCount int             `json:"questionCount"`
}

type NewQuestionPayload struct {
	GameCode  string             `json:"gameCode"`
	Question  models.QuestionDTO `json:"question"`
	Index     int                `json:"index"`
	Total     int                `json:"total"`
	TimeLimit int                `json:"timeLimit"`
}

type PlayerAnsweredPayload struct {
	GameCode   string `json:"gameCode"`
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	Accepted   bool   `json:"accepted"`
	Answered   int    `json:"answered"`
	Expected   int    `json:"expected"`
}

type TimerTickPayload struct {
	GameCode    string `json:"gameCode"`
	SecondsLeft int    `json:"secondsLeft"`
}

type QuestionEndedPayload struct {
	GameCode    string                    `json:"gameCode"`
	QuestionID  string                    `json:"questionId"`
	Correct     string                    `json:"correct"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

type GameEndedPayload struct {
	GameCode    string                    `json:"gameCode"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
