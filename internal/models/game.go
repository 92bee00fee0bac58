package models

import "time"

// Game states. Transitions are monotonic except for an explicit reset
// back to StateWaiting.
type GameState string

const (
	StateWaiting        GameState = "waiting"
	StatePlaying        GameState = "playing"
	StateShowingResults GameState = "showing_results"
	StateFinished       GameState = "finished"
)

// Settings configures one session.
type Settings struct {
	QuestionCount   int `json:"questionCount"`
	TimePerQuestion int `json:"timePerQuestion"` // seconds
}

var DefaultSettings = Settings{
	QuestionCount:   15,
	TimePerQuestion: 15,
}

// Question is one entry of the question bank. Immutable once loaded into
// a session's sequence. Answers maps letters A-D to the option text.
type Question struct {
	ID      string            `json:"id"`
	Text    string            `json:"question"`
	Answers map[string]string `json:"answers"`
	Correct string            `json:"correct"`
}

// Answer is a single recorded submission. At most one per (player, question).
type Answer struct {
	QuestionID    string    `json:"questionId"`
	Answer        string    `json:"answer"`
	TimeRemaining float64   `json:"timeRemaining"`
	Timestamp     time.Time `json:"timestamp"`
}

// Player is one participant of a session.
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	Answers   []Answer  `json:"answers"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// HasAnswered reports whether the player already answered the given question.
func (p *Player) HasAnswered(questionID string) bool {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// LeaderboardEntry is a player projected with a computed rank. Ranks are
// positional (1-based index into the sorted order); ties keep their prior
// relative order and do not share a rank.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// SessionSnapshot is the serializable form of a session, used by the
// fallback persistence layer. One blob per session code.
type SessionSnapshot struct {
	Code          string     `json:"code"`
	HostID        string     `json:"hostId"`
	State         GameState  `json:"state"`
	Settings      Settings   `json:"settings"`
	Questions     []Question `json:"questions"`
	QuestionIndex int        `json:"questionIndex"`
	Players       []Player   `json:"players"`
	TimeLeft      int        `json:"timeLeft"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
