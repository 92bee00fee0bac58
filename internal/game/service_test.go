package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-live/internal/errors"
	"quiz-live/internal/models"
	"quiz-live/internal/transport"
)

// recorder captures published events in call order.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Code    string
	Event   string
	Payload any
}

func (r *recorder) Publish(code, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Code: code, Event: event, Payload: payload})
}

func (r *recorder) types(code string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Code == code {
			out = append(out, e.Event)
		}
	}
	return out
}

func (r *recorder) count(code, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Code == code && e.Event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(code, event string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Code == code && r.events[i].Event == event {
			return r.events[i].Payload, true
		}
	}
	return nil, false
}

type stubSource struct {
	questions []models.Question
	err       error
}

func (s *stubSource) Load(context.Context) ([]models.Question, error) {
	return s.questions, s.err
}

func newTestService(t *testing.T, questions []models.Question) (*Service, *recorder) {
	t.Helper()

	registry := NewRegistry()
	registry.SetTickInterval(10 * time.Millisecond)
	rec := &recorder{}

	svc := NewService(ServiceConfig{
		Registry:    registry,
		Source:      &stubSource{questions: questions},
		Broadcaster: rec,
	})

	t.Cleanup(func() {
		for _, code := range registry.Codes() {
			registry.Destroy(code)
		}
	})
	return svc, rec
}

func startedGame(t *testing.T, svc *Service, playerIDs ...string) *Session {
	t.Helper()

	sess := svc.CreateGame("host-1", &models.Settings{QuestionCount: 2, TimePerQuestion: 60})
	for i, id := range playerIDs {
		_, err := svc.JoinGame(sess.Code(), id, fmt.Sprintf("player-%d", i))
		require.NoError(t, err)
	}
	require.NoError(t, svc.StartGame(context.Background(), sess.Code()))
	return sess
}

func TestServiceCreateGame(t *testing.T) {
	svc, _ := newTestService(t, testQuestions(4))

	sess := svc.CreateGame("host-1", nil)
	assert.Equal(t, models.DefaultSettings, sess.Settings())

	sess = svc.CreateGame("host-2", &models.Settings{QuestionCount: 3, TimePerQuestion: 20})
	assert.Equal(t, 3, sess.Settings().QuestionCount)

	// Zeroed settings fall back to the defaults.
	sess = svc.CreateGame("host-3", &models.Settings{})
	assert.Equal(t, models.DefaultSettings, sess.Settings())
}

func TestServiceJoinBroadcasts(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := svc.CreateGame("host-1", nil)

	_, err := svc.JoinGame(sess.Code(), "p1", "alice")
	require.NoError(t, err)

	payload, ok := rec.last(sess.Code(), transport.EventPlayerJoined)
	require.True(t, ok)
	joined := payload.(transport.PlayerJoinedPayload)
	assert.Equal(t, "p1", joined.Player.ID)
	assert.Equal(t, 1, joined.PlayerCount)

	_, err = svc.JoinGame("NOPE99", "p2", "bob")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestServiceStartGame(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1")

	assert.Equal(t, models.StatePlaying, sess.State())
	assert.Equal(t, 2, sess.QuestionCount(), "sampled down to the configured count")

	types := rec.types(sess.Code())
	assert.Contains(t, types, transport.EventGameStarted)
	assert.Contains(t, types, transport.EventNewQuestion)
	assert.True(t, sess.Round().Active())

	payload, ok := rec.last(sess.Code(), transport.EventNewQuestion)
	require.True(t, ok)
	q := payload.(transport.NewQuestionPayload)
	assert.Empty(t, q.Question.Correct, "answer key never leaves the server")
	assert.Equal(t, 60, q.TimeLimit)
}

func TestServiceStartGameLoadFailure(t *testing.T) {
	registry := NewRegistry()
	registry.SetTickInterval(10 * time.Millisecond)
	svc := NewService(ServiceConfig{
		Registry:    registry,
		Source:      &stubSource{err: fmt.Errorf("disk gone")},
		Broadcaster: &recorder{},
	})

	sess := svc.CreateGame("host-1", nil)
	_, err := svc.JoinGame(sess.Code(), "p1", "alice")
	require.NoError(t, err)

	err = svc.StartGame(context.Background(), sess.Code())
	assert.True(t, errors.Is(err, errors.CodeLoadFailure))
	assert.Equal(t, models.StateWaiting, sess.State())
}

func TestServiceSubmitAnswerEarlyClose(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1", "p2")

	res, err := svc.SubmitAnswer(sess.Code(), "p1", "A", 50)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, models.StatePlaying, sess.State(), "one holdout left")

	payload, ok := rec.last(sess.Code(), transport.EventPlayerAnswered)
	require.True(t, ok)
	answered := payload.(transport.PlayerAnsweredPayload)
	assert.Equal(t, 1, answered.Answered)
	assert.Equal(t, 2, answered.Expected)

	_, err = svc.SubmitAnswer(sess.Code(), "p2", "B", 40)
	require.NoError(t, err)

	// Everyone answered: the round closes without waiting for the timer.
	assert.Equal(t, models.StateShowingResults, sess.State())
	assert.False(t, sess.Round().Active())
	assert.Equal(t, 1, rec.count(sess.Code(), transport.EventQuestionEnded))
}

func TestServiceDuplicateSubmitKeepsFirstScore(t *testing.T) {
	svc, _ := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1", "p2")

	_, err := svc.SubmitAnswer(sess.Code(), "p1", "A", 50)
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(sess.Code(), "p1", "B", 55)
	assert.True(t, errors.Is(err, errors.CodeAlreadyAnswered))

	p, ok := sess.Player("p1")
	require.True(t, ok)
	assert.Equal(t, 150, p.Score)
}

func TestServiceTimerExpiryClosesRound(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))

	sess := svc.CreateGame("host-1", &models.Settings{QuestionCount: 1, TimePerQuestion: 2})
	_, err := svc.JoinGame(sess.Code(), "p1", "alice")
	require.NoError(t, err)
	require.NoError(t, svc.StartGame(context.Background(), sess.Code()))

	// Ticks are 10ms in tests, so a 2 second window expires in ~20ms.
	require.Eventually(t, func() bool {
		return sess.State() == models.StateShowingResults
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, rec.count(sess.Code(), transport.EventQuestionEnded))
	assert.GreaterOrEqual(t, rec.count(sess.Code(), transport.EventTimerTick), 2)
}

func TestServiceStaleTimerExpiryIgnoredAfterAdvance(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1", "p2")

	// The timer for question 1 was armed at this phase. Its callback can be
	// delayed behind the per-code lock for arbitrarily long.
	stalePhase := sess.Phase()

	// Question 1 closes early because everyone answered, and the host moves
	// on to question 2 before the delayed expiry gets its turn.
	_, err := svc.SubmitAnswer(sess.Code(), "p1", "A", 50)
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(sess.Code(), "p2", "B", 40)
	require.NoError(t, err)
	require.Equal(t, models.StateShowingResults, sess.State())
	require.NoError(t, svc.NextQuestion(sess.Code()))
	require.Equal(t, models.StatePlaying, sess.State())

	// The delayed expiry for question 1 finally runs: it must not close
	// question 2's round.
	svc.closeExpiredRound(sess.Code(), stalePhase)

	assert.Equal(t, models.StatePlaying, sess.State())
	assert.Equal(t, 1, sess.QuestionIndex())
	assert.Equal(t, 1, rec.count(sess.Code(), transport.EventQuestionEnded))

	// A current-phase expiry still closes the round.
	svc.closeExpiredRound(sess.Code(), sess.Phase())
	assert.Equal(t, models.StateShowingResults, sess.State())
	assert.Equal(t, 2, rec.count(sess.Code(), transport.EventQuestionEnded))
}

func TestServiceStaleTimerExpiryIgnoredAfterReset(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1")

	stalePhase := sess.Phase()
	require.NoError(t, svc.ResetGame(sess.Code()))
	require.NoError(t, svc.StartGame(context.Background(), sess.Code()))

	svc.closeExpiredRound(sess.Code(), stalePhase)

	assert.Equal(t, models.StatePlaying, sess.State())
	assert.Zero(t, rec.count(sess.Code(), transport.EventQuestionEnded))
}

func TestServiceEndQuestionIdempotent(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1")

	svc.EndQuestion(sess.Code())
	svc.EndQuestion(sess.Code())

	assert.Equal(t, models.StateShowingResults, sess.State())
	assert.Equal(t, 1, rec.count(sess.Code(), transport.EventQuestionEnded))
}

func TestServiceNextQuestionAndFinish(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1")

	svc.EndQuestion(sess.Code())
	require.NoError(t, svc.NextQuestion(sess.Code()))
	assert.Equal(t, models.StatePlaying, sess.State())
	assert.Equal(t, 1, sess.QuestionIndex())
	assert.Equal(t, 2, rec.count(sess.Code(), transport.EventNewQuestion))

	svc.EndQuestion(sess.Code())
	require.NoError(t, svc.NextQuestion(sess.Code()))
	assert.Equal(t, models.StateFinished, sess.State())
	assert.Equal(t, 1, rec.count(sess.Code(), transport.EventGameEnded))

	err := svc.NextQuestion(sess.Code())
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition))
}

func TestServiceTwoPlayerScenario(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(2))

	sess := svc.CreateGame("host-1", &models.Settings{QuestionCount: 2, TimePerQuestion: 10})
	_, err := svc.JoinGame(sess.Code(), "pa", "A")
	require.NoError(t, err)
	_, err = svc.JoinGame(sess.Code(), "pb", "B")
	require.NoError(t, err)
	require.NoError(t, svc.StartGame(context.Background(), sess.Code()))

	// A answers correctly with 8 of 10 seconds left: 100 + 50 speed bonus.
	res, err := svc.SubmitAnswer(sess.Code(), "pa", "A", 8)
	require.NoError(t, err)
	assert.Equal(t, 150, res.Points)

	// B answers wrong: zero points, and the round closes early.
	res, err = svc.SubmitAnswer(sess.Code(), "pb", "C", 8)
	require.NoError(t, err)
	assert.Zero(t, res.Points)

	payload, ok := rec.last(sess.Code(), transport.EventQuestionEnded)
	require.True(t, ok)
	ended := payload.(transport.QuestionEndedPayload)
	require.Len(t, ended.Leaderboard, 2)
	assert.Equal(t, "pa", ended.Leaderboard[0].PlayerID)
	assert.Equal(t, 1, ended.Leaderboard[0].Rank)
	assert.Equal(t, 150, ended.Leaderboard[0].Score)
	assert.Equal(t, "pb", ended.Leaderboard[1].PlayerID)
	assert.Equal(t, 2, ended.Leaderboard[1].Rank)
	assert.Zero(t, ended.Leaderboard[1].Score)
}

func TestServiceLeaveGame(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1", "p2")

	require.NoError(t, svc.LeaveGame(sess.Code(), "p2"))
	assert.Len(t, sess.Players(), 1)
	assert.Equal(t, 1, rec.count(sess.Code(), transport.EventPlayerLeft))

	err := svc.LeaveGame(sess.Code(), "ghost")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestServiceHostLeaveDestroys(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1")

	require.NoError(t, svc.LeaveGame(sess.Code(), "host-1"))
	assert.Equal(t, 1, rec.count(sess.Code(), transport.EventGameEnded))

	_, err := svc.Registry().Lookup(sess.Code())
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestServiceLastHoldoutLeavesClosesRound(t *testing.T) {
	svc, _ := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1", "p2")

	_, err := svc.SubmitAnswer(sess.Code(), "p1", "A", 50)
	require.NoError(t, err)
	require.Equal(t, models.StatePlaying, sess.State())

	require.NoError(t, svc.LeaveGame(sess.Code(), "p2"))
	assert.Equal(t, models.StateShowingResults, sess.State())
}

func TestServiceDisconnectLastHoldoutClosesRound(t *testing.T) {
	svc, _ := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1", "p2")

	_, err := svc.SubmitAnswer(sess.Code(), "p1", "A", 50)
	require.NoError(t, err)

	svc.SetPresence(sess.Code(), "p2", false)
	assert.Equal(t, models.StateShowingResults, sess.State())
}

func TestServiceResetGame(t *testing.T) {
	svc, _ := newTestService(t, testQuestions(4))
	sess := startedGame(t, svc, "p1")

	svc.EndQuestion(sess.Code())
	require.NoError(t, svc.NextQuestion(sess.Code()))
	svc.EndQuestion(sess.Code())
	require.NoError(t, svc.NextQuestion(sess.Code()))
	require.Equal(t, models.StateFinished, sess.State())

	require.NoError(t, svc.ResetGame(sess.Code()))
	assert.Equal(t, models.StateWaiting, sess.State())
	assert.Len(t, sess.Players(), 1)

	// The rematch runs through the same lifecycle.
	require.NoError(t, svc.StartGame(context.Background(), sess.Code()))
	assert.Equal(t, models.StatePlaying, sess.State())
}

func TestServiceHandleCommand(t *testing.T) {
	svc, rec := newTestService(t, testQuestions(4))

	msg, err := transport.NewMessage(transport.CmdCreateGame, transport.CreateGamePayload{
		HostID:   "host-1",
		Settings: models.Settings{QuestionCount: 2, TimePerQuestion: 60},
	})
	require.NoError(t, err)
	require.NoError(t, svc.HandleCommand(msg))

	codes := svc.Registry().Codes()
	require.Len(t, codes, 1)
	code := codes[0]
	assert.Equal(t, 1, rec.count(code, transport.EventGameCreated))

	msg, err = transport.NewMessage(transport.CmdJoinGame, transport.JoinGamePayload{
		GameCode: code, PlayerID: "p1", PlayerName: "alice",
	})
	require.NoError(t, err)
	require.NoError(t, svc.HandleCommand(msg))

	msg, err = transport.NewMessage(transport.CmdStartGame, transport.StartGamePayload{GameCode: code})
	require.NoError(t, err)
	require.NoError(t, svc.HandleCommand(msg))

	msg, err = transport.NewMessage(transport.CmdSubmitAnswer, transport.SubmitAnswerPayload{
		GameCode: code, PlayerID: "p1", Answer: "A", TimeRemaining: 55,
	})
	require.NoError(t, err)
	require.NoError(t, svc.HandleCommand(msg))

	// A duplicate submission over the wire is absorbed, not an error.
	require.NoError(t, svc.HandleCommand(msg))

	msg, err = transport.NewMessage("bogus", struct{}{})
	require.NoError(t, err)
	err = svc.HandleCommand(msg)
	assert.True(t, errors.Is(err, errors.CodeInternal))
}
