package game

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"quiz-live/internal/bank"
	"quiz-live/internal/errors"
	"quiz-live/internal/models"
	"quiz-live/internal/transport"
)

// Broadcaster fans a state-change event out to every subscriber of a game.
// Implemented by the WebSocket hub in network mode and by the local
// transport backend in single-process mode.
type Broadcaster interface {
	Publish(code string, event string, payload any)
}

// Store persists session snapshots and the leaderboard mirror. Used only by
// the fallback/offline mode; not a durability guarantee.
type Store interface {
	SaveSnapshot(ctx context.Context, snap models.SessionSnapshot) error
	DeleteSnapshot(ctx context.Context, code string) error
	ListSnapshots(ctx context.Context) ([]models.SessionSnapshot, error)
	SetLeaderboard(ctx context.Context, code string, entries []models.LeaderboardEntry) error
}

// QuestionSource supplies the full question bank; the service draws the
// per-session sample from it.
type QuestionSource interface {
	Load(ctx context.Context) ([]models.Question, error)
}

// Service executes the game command surface against the registry. Compound
// operations on one session are serialized through a per-code lock so that
// racing triggers (timer expiry vs. answer submission) cannot double-close
// a round, and so subscribers observe events in mutation order.
type Service struct {
	registry    *Registry
	source      QuestionSource
	broadcaster Broadcaster
	store       Store // optional
	log         *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type ServiceConfig struct {
	Registry    *Registry
	Source      QuestionSource
	Broadcaster Broadcaster
	Store       Store
	Logger      *slog.Logger
}

func NewService(c ServiceConfig) *Service {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		registry:    c.Registry,
		source:      c.Source,
		broadcaster: c.Broadcaster,
		store:       c.Store,
		log:         log,
		locks:       make(map[string]*sync.Mutex),
	}
}

// SetBroadcaster wires the broadcaster after construction, for the
// single-process case where the local backend needs the service and the
// service needs the backend.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) lockFor(code string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[code]
	if !ok {
		l = &sync.Mutex{}
		s.locks[code] = l
	}
	return l
}

func (s *Service) dropLock(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, code)
}

// CreateGame creates a session owned by hostID. A nil settings keeps the
// defaults.
func (s *Service) CreateGame(hostID string, settings *models.Settings) *Session {
	sess := s.registry.CreateSession(hostID)
	if settings != nil && settings.QuestionCount > 0 && settings.TimePerQuestion > 0 {
		// A fresh session is always in the waiting state.
		if err := sess.UpdateSettings(*settings); err != nil {
			s.log.Error("settings rejected on create", "code", sess.Code(), "error", err)
		}
	}

	s.log.Info("game created", "code", sess.Code(), "host", hostID)
	s.saveSnapshot(sess)
	return sess
}

// JoinGame adds a player to the session for code.
func (s *Service) JoinGame(code, playerID, playerName string) (models.Player, error) {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return models.Player{}, err
	}

	p, err := sess.AddPlayer(playerID, playerName)
	if err != nil {
		return models.Player{}, err
	}

	s.log.Info("player joined", "code", code, "player", playerID, "name", playerName)
	s.publish(code, transport.EventPlayerJoined, transport.PlayerJoinedPayload{
		GameCode:    code,
		Player:      p.ToDTO(),
		PlayerCount: len(sess.Players()),
	})
	s.saveSnapshot(sess)
	return *p, nil
}

// StartGame loads and samples the question bank, transitions the session to
// playing and opens the first round.
func (s *Service) StartGame(ctx context.Context, code string) error {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return err
	}

	all, err := s.source.Load(ctx)
	if err != nil {
		return errors.New(errors.CodeLoadFailure, errors.WithCause(err))
	}

	settings := sess.Settings()
	questions := bank.Sample(all, settings.QuestionCount)
	if err := sess.Start(questions); err != nil {
		return err
	}

	s.log.Info("game started", "code", code,
		"questions", len(questions), "players", len(sess.Players()))
	s.publish(code, transport.EventGameStarted, transport.GameStartedPayload{
		GameCode:      code,
		Settings:      settings,
		QuestionCount: len(questions),
	})

	s.beginQuestion(sess)
	return nil
}

// beginQuestion broadcasts the current question and opens its answering
// window. Caller holds the per-code lock.
func (s *Service) beginQuestion(sess *Session) {
	q := sess.CurrentQuestion()
	if q == nil {
		return
	}

	code := sess.Code()
	settings := sess.Settings()
	phase := sess.Phase()
	s.publish(code, transport.EventNewQuestion, transport.NewQuestionPayload{
		GameCode:  code,
		Question:  q.ToDTO(false),
		Index:     sess.QuestionIndex(),
		Total:     sess.QuestionCount(),
		TimeLimit: settings.TimePerQuestion,
	})
	s.saveSnapshot(sess)

	sess.Round().Open(settings.TimePerQuestion,
		func(secondsLeft int) {
			sess.SetTimeLeft(secondsLeft)
			s.publish(code, transport.EventTimerTick, transport.TimerTickPayload{
				GameCode:    code,
				SecondsLeft: secondsLeft,
			})
		},
		func() {
			// Timer expiry re-enters through the serialization point
			// instead of mutating session state from the callback.
			s.closeExpiredRound(code, phase)
		},
	)
}

// closeExpiredRound ends the question a timer was armed for. The callback
// may be delayed behind the per-code lock; if the session moved on in the
// meantime (early close plus advance, or a reset), the expiry is stale and
// must not touch the round that is now running.
func (s *Service) closeExpiredRound(code string, phase int) {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return
	}
	if sess.Phase() != phase {
		return
	}
	s.endQuestionLocked(sess)
}

// SubmitAnswer records a player's answer. Duplicate submissions are
// absorbed as a typed no-op. When every connected player has answered, the
// round closes early.
func (s *Service) SubmitAnswer(code, playerID, answer string, timeRemaining float64) (SubmitResult, error) {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return SubmitResult{}, err
	}

	res, err := sess.SubmitAnswer(playerID, answer, timeRemaining)
	if err != nil {
		// AlreadyAnswered is a no-op, not a hard failure: the first
		// submission stands and the caller sees the typed result.
		return SubmitResult{}, err
	}

	q := sess.CurrentQuestion()
	questionID := ""
	if q != nil {
		questionID = q.ID
	}

	answered := 0
	players := sess.Players()
	for _, p := range players {
		if p.Connected && p.HasAnswered(questionID) {
			answered++
		}
	}

	s.publish(code, transport.EventPlayerAnswered, transport.PlayerAnsweredPayload{
		GameCode:   code,
		PlayerID:   playerID,
		QuestionID: questionID,
		Accepted:   res.Accepted,
		Answered:   answered,
		Expected:   sess.ConnectedCount(),
	})

	if sess.AllPlayersAnswered() {
		s.endQuestionLocked(sess)
	}

	return res, nil
}

// EndQuestion closes the current round (timer expiry path). Idempotent.
func (s *Service) EndQuestion(code string) {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return
	}
	s.endQuestionLocked(sess)
}

// endQuestionLocked performs the playing -> showing_results transition and
// the reveal broadcast. Only the first caller wins; a raced timer expiry
// and early close collapse into one transition. Caller holds the per-code
// lock.
func (s *Service) endQuestionLocked(sess *Session) {
	q := sess.CurrentQuestion()
	if !sess.ShowResults() {
		return
	}
	sess.Round().Close()

	code := sess.Code()
	leaderboard := sess.Leaderboard()
	correct := ""
	questionID := ""
	if q != nil {
		correct = q.Correct
		questionID = q.ID
	}

	s.log.Info("question ended", "code", code, "question", questionID)
	s.publish(code, transport.EventQuestionEnded, transport.QuestionEndedPayload{
		GameCode:    code,
		QuestionID:  questionID,
		Correct:     correct,
		Leaderboard: leaderboard,
	})

	if s.store != nil {
		if err := s.store.SetLeaderboard(context.Background(), code, leaderboard); err != nil {
			s.log.Error("leaderboard cache update failed", "code", code, "error", err)
		}
	}
	s.saveSnapshot(sess)
}

// NextQuestion advances the round pointer: either the next answering
// window opens, or the game finishes.
func (s *Service) NextQuestion(code string) error {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return err
	}

	q, err := sess.Advance()
	if err != nil {
		return err
	}

	if q == nil {
		s.finishGame(sess)
		return nil
	}

	s.beginQuestion(sess)
	return nil
}

func (s *Service) finishGame(sess *Session) {
	code := sess.Code()
	leaderboard := sess.Leaderboard()

	s.log.Info("game finished", "code", code, "players", len(sess.Players()))
	s.publish(code, transport.EventGameEnded, transport.GameEndedPayload{
		GameCode:    code,
		Leaderboard: leaderboard,
	})

	if s.store != nil {
		if err := s.store.SetLeaderboard(context.Background(), code, leaderboard); err != nil {
			s.log.Error("leaderboard cache update failed", "code", code, "error", err)
		}
	}
	s.saveSnapshot(sess)
}

// ResetGame returns a finished session to the lobby for a rematch.
func (s *Service) ResetGame(code string) error {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return err
	}

	sess.Reset()
	s.saveSnapshot(sess)
	return nil
}

// LeaveGame removes a player. The host leaving destroys the session.
func (s *Service) LeaveGame(code, playerID string) error {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return err
	}

	if playerID == sess.HostID() {
		s.destroyLocked(sess)
		return nil
	}

	p, ok := sess.Player(playerID)
	if !sess.RemovePlayer(playerID) {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("player %s not in session %s", playerID, code))
	}

	name := ""
	if ok {
		name = p.Name
	}
	s.log.Info("player left", "code", code, "player", playerID)
	s.publish(code, transport.EventPlayerLeft, transport.PlayerLeftPayload{
		GameCode:    code,
		PlayerID:    playerID,
		PlayerName:  name,
		PlayerCount: len(sess.Players()),
	})

	// The departed player may have been the last holdout.
	if sess.State() == models.StatePlaying && sess.AllPlayersAnswered() {
		s.endQuestionLocked(sess)
	}
	s.saveSnapshot(sess)
	return nil
}

// SetPresence flips a player's connectivity flag, keeping identity and
// answers for a rejoin. A disconnecting last holdout closes the round
// early.
func (s *Service) SetPresence(code, playerID string, connected bool) {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return
	}
	if !sess.SetConnected(playerID, connected) {
		return
	}

	s.log.Info("presence changed", "code", code, "player", playerID, "connected", connected)
	if !connected && sess.State() == models.StatePlaying && sess.AllPlayersAnswered() {
		s.endQuestionLocked(sess)
	}
	s.saveSnapshot(sess)
}

// DestroyGame removes the session and its persisted snapshot. Reports
// whether it existed.
func (s *Service) DestroyGame(code string) bool {
	lock := s.lockFor(code)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.registry.Lookup(code)
	if err != nil {
		return false
	}
	s.destroyLocked(sess)
	return true
}

func (s *Service) destroyLocked(sess *Session) {
	code := sess.Code()
	s.publish(code, transport.EventGameEnded, transport.GameEndedPayload{
		GameCode:    code,
		Leaderboard: sess.Leaderboard(),
	})

	s.registry.Destroy(code)
	s.dropLock(code)
	if s.store != nil {
		if err := s.store.DeleteSnapshot(context.Background(), code); err != nil {
			s.log.Error("snapshot delete failed", "code", code, "error", err)
		}
	}
	s.log.Info("game destroyed", "code", code)
}

// Restore re-seeds the registry from persisted snapshots on boot.
func (s *Service) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	snaps, err := s.store.ListSnapshots(ctx)
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		sess := RestoreSession(snap, NewRound())
		if s.registry.Restore(sess) {
			s.log.Info("session restored", "code", snap.Code, "state", snap.State)
		}
	}
	return nil
}

func (s *Service) publish(code, event string, payload any) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(code, event, payload)
	}
}

func (s *Service) saveSnapshot(sess *Session) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSnapshot(context.Background(), sess.Snapshot()); err != nil {
		s.log.Error("snapshot save failed", "code", sess.Code(), "error", err)
	}
}

// HandleCommand decodes a wire command and routes it to the matching
// operation. This is the single dispatch point shared by the WebSocket hub
// and the in-process backend.
func (s *Service) HandleCommand(msg transport.Message) error {
	switch msg.Type {
	case transport.CmdCreateGame:
		var p transport.CreateGamePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.Internal(err)
		}
		settings := p.Settings
		sess := s.CreateGame(p.HostID, &settings)
		s.publish(sess.Code(), transport.EventGameCreated, transport.GameCreatedPayload{
			GameCode: sess.Code(),
			HostID:   p.HostID,
			Settings: sess.Settings(),
		})
		return nil

	case transport.CmdJoinGame:
		var p transport.JoinGamePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.Internal(err)
		}
		_, err := s.JoinGame(p.GameCode, p.PlayerID, p.PlayerName)
		return err

	case transport.CmdStartGame:
		var p transport.StartGamePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.Internal(err)
		}
		return s.StartGame(context.Background(), p.GameCode)

	case transport.CmdSubmitAnswer:
		var p transport.SubmitAnswerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.Internal(err)
		}
		_, err := s.SubmitAnswer(p.GameCode, p.PlayerID, p.Answer, p.TimeRemaining)
		if errors.Is(err, errors.CodeAlreadyAnswered) {
			return nil // idempotent no-op
		}
		return err

	case transport.CmdNextQuestion:
		var p transport.NextQuestionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.Internal(err)
		}
		return s.NextQuestion(p.GameCode)

	case transport.CmdLeaveGame:
		var p transport.LeaveGamePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return errors.Internal(err)
		}
		return s.LeaveGame(p.GameCode, p.PlayerID)

	default:
		return errors.New(errors.CodeInternal,
			errors.WithMessagef("unknown command type %q", msg.Type))
	}
}
