package game

import (
	"sync"
	"time"

	"quiz-live/internal/errors"
	"quiz-live/internal/models"
)

// Session owns one quiz instance: players, question sequence, round pointer,
// scores and state. All exported methods serialize on the session mutex, so
// a timer expiry and a player submission can never double-transition the
// state machine.
type Session struct {
	mu sync.Mutex

	code     string
	hostID   string
	state    models.GameState
	settings models.Settings

	questions []models.Question
	index     int
	timeLeft  int
	phase     int // bumped on every round transition, invalidates armed timers

	players map[string]*models.Player
	order   []string // join order, the deterministic tie-break for ranking

	round *Round
}

func newSession(code, hostID string, settings models.Settings, round *Round) *Session {
	return &Session{
		code:     code,
		hostID:   hostID,
		state:    models.StateWaiting,
		settings: settings,
		players:  make(map[string]*models.Player),
		round:    round,
	}
}

func (s *Session) Code() string   { return s.code }
func (s *Session) HostID() string { return s.hostID }

// Round exposes the round coordinator driving this session's countdowns.
func (s *Session) Round() *Round { return s.round }

func (s *Session) State() models.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Settings() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces the configuration. Only allowed before the game
// starts.
func (s *Session) UpdateSettings(settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.StateWaiting {
		return errors.New(errors.CodeInvalidTransition,
			errors.WithMessagef("settings can only change while waiting, state=%s", s.state))
	}
	s.settings = settings
	return nil
}

// AddPlayer registers a new player. Joining is permitted only while the
// session is waiting or playing; a late joiner has no retroactive answers.
func (s *Session) AddPlayer(id, name string) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.StateWaiting && s.state != models.StatePlaying {
		return nil, errors.New(errors.CodeNotAccepting,
			errors.WithMessagef("session %s is not accepting players, state=%s", s.code, s.state))
	}
	if _, ok := s.players[id]; ok {
		return nil, errors.New(errors.CodeInvalidTransition,
			errors.WithMessagef("player %s already joined session %s", id, s.code))
	}

	p := &models.Player{
		ID:        id,
		Name:      name,
		Connected: true,
		JoinedAt:  time.Now(),
	}
	s.players[id] = p
	s.order = append(s.order, id)

	cp := *p
	return &cp, nil
}

func (s *Session) RemovePlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[id]; !ok {
		return false
	}
	delete(s.players, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// SetConnected flips a player's connectivity flag, keeping their identity
// and answers.
func (s *Session) SetConnected(id string, connected bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return false
	}
	p.Connected = connected
	return true
}

func (s *Session) Player(id string) (models.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return models.Player{}, false
	}
	return *p, true
}

// Players returns a copy of all players in join order.
func (s *Session) Players() []models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersLocked()
}

func (s *Session) playersLocked() []models.Player {
	out := make([]models.Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.players[id])
	}
	return out
}

func (s *Session) ConnectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedLocked()
}

func (s *Session) connectedLocked() int {
	n := 0
	for _, p := range s.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// Start moves the session from waiting to playing with the given question
// sample. Requires at least one connected player and a non-empty sequence.
func (s *Session) Start(questions []models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.StateWaiting {
		return errors.New(errors.CodeInvalidTransition,
			errors.WithMessagef("cannot start session %s from state %s", s.code, s.state))
	}
	if s.connectedLocked() == 0 {
		return errors.New(errors.CodeInvalidTransition,
			errors.WithMessagef("cannot start session %s with no connected players", s.code))
	}
	if len(questions) == 0 {
		return errors.New(errors.CodeLoadFailure,
			errors.WithMessagef("no questions loaded for session %s", s.code))
	}

	s.questions = questions
	s.index = 0
	s.phase++
	s.state = models.StatePlaying
	return nil
}

// Phase identifies the current round transition. A countdown armed for an
// earlier phase must not close the round of a later one.
func (s *Session) Phase() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// CurrentQuestion returns the question at the round pointer, or nil when
// the sequence is exhausted or the game has not started.
func (s *Session) CurrentQuestion() *models.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() *models.Question {
	if s.index < len(s.questions) {
		q := s.questions[s.index]
		return &q
	}
	return nil
}

func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Session) QuestionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}

// ShowResults closes the answering phase. Idempotent under races between
// timer expiry and an all-players-answered early close: only the first
// caller performs the transition.
func (s *Session) ShowResults() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.StatePlaying {
		return false
	}
	s.state = models.StateShowingResults
	return true
}

// Advance moves the round pointer to the next question. Returns the new
// current question and transitions back to playing, or nil and transitions
// to finished when the sequence is exhausted.
func (s *Session) Advance() (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.StateShowingResults {
		return nil, errors.New(errors.CodeInvalidTransition,
			errors.WithMessagef("cannot advance session %s from state %s", s.code, s.state))
	}

	s.index++
	s.phase++
	q := s.currentLocked()
	if q == nil {
		s.state = models.StateFinished
		return nil, nil
	}
	s.state = models.StatePlaying
	return q, nil
}

// SubmitResult is the outcome of one answer submission.
type SubmitResult struct {
	Accepted bool `json:"accepted"`
	Correct  bool `json:"correct"`
	Points   int  `json:"points"`
}

// SubmitAnswer records a player's answer for the current question and
// awards points. A duplicate submission for the same question is an
// idempotent no-op: it is rejected without re-scoring.
func (s *Session) SubmitAnswer(playerID, answer string, timeRemaining float64) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return SubmitResult{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("player %s not in session %s", playerID, s.code))
	}

	q := s.currentLocked()
	if s.state != models.StatePlaying || q == nil {
		return SubmitResult{}, errors.New(errors.CodeInvalidTransition,
			errors.WithMessagef("no active question in session %s", s.code))
	}

	if p.HasAnswered(q.ID) {
		return SubmitResult{}, errors.New(errors.CodeAlreadyAnswered,
			errors.WithMessagef("player %s already answered question %s", playerID, q.ID))
	}

	p.Answers = append(p.Answers, models.Answer{
		QuestionID:    q.ID,
		Answer:        answer,
		TimeRemaining: timeRemaining,
		Timestamp:     time.Now(),
	})

	correct := answer == q.Correct
	points := Score(correct, timeRemaining, float64(s.settings.TimePerQuestion))
	p.Score += points

	return SubmitResult{Accepted: true, Correct: correct, Points: points}, nil
}

// AllPlayersAnswered reports whether every connected player has an answer
// recorded for the current question. False when there are no players or no
// active question.
func (s *Session) AllPlayersAnswered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.currentLocked()
	if q == nil || len(s.players) == 0 {
		return false
	}

	for _, p := range s.players {
		if !p.Connected {
			continue
		}
		if !p.HasAnswered(q.ID) {
			return false
		}
	}
	return true
}

// Leaderboard ranks all players by descending score, stable on join order.
func (s *Session) Leaderboard() []models.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Rank(s.playersLocked())
}

// Reset returns the session to the waiting state for a rematch: round
// pointer, current question and all scores/answers are cleared, player
// identities and connectivity are preserved.
func (s *Session) Reset() {
	s.round.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = 0
	s.questions = nil
	s.timeLeft = 0
	s.phase++
	s.state = models.StateWaiting
	for _, p := range s.players {
		p.Score = 0
		p.Answers = nil
	}
}

// SetTimeLeft records the seconds remaining in the current round, carried
// into snapshots so late readers of the fallback store can resume the
// countdown display.
func (s *Session) SetTimeLeft(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeLeft = seconds
}

// Snapshot captures the full serializable state of the session.
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.SessionSnapshot{
		Code:          s.code,
		HostID:        s.hostID,
		State:         s.state,
		Settings:      s.settings,
		Questions:     append([]models.Question(nil), s.questions...),
		QuestionIndex: s.index,
		Players:       s.playersLocked(),
		TimeLeft:      s.timeLeft,
		UpdatedAt:     time.Now(),
	}
}

// RestoreSession rebuilds a session from a snapshot, used when re-seeding
// the registry from the fallback store.
func RestoreSession(snap models.SessionSnapshot, round *Round) *Session {
	s := newSession(snap.Code, snap.HostID, snap.Settings, round)
	s.state = snap.State
	s.questions = append([]models.Question(nil), snap.Questions...)
	s.index = snap.QuestionIndex
	s.timeLeft = snap.TimeLeft
	for _, p := range snap.Players {
		cp := p
		s.players[p.ID] = &cp
		s.order = append(s.order, p.ID)
	}
	return s
}
