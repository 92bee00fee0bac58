package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-live/internal/errors"
)

type fakeSink struct {
	received []Message
	err      error
}

func (f *fakeSink) HandleCommand(msg Message) error {
	f.received = append(f.received, msg)
	return f.err
}

func TestLocalSendDeliversCommand(t *testing.T) {
	sink := &fakeSink{}
	l := NewLocal(sink)

	ok := l.Send(CmdJoinGame, JoinGamePayload{GameCode: "ABC123", PlayerID: "p1", PlayerName: "alice"})
	assert.True(t, ok)

	require.Len(t, sink.received, 1)
	assert.Equal(t, CmdJoinGame, sink.received[0].Type)

	var p JoinGamePayload
	require.NoError(t, json.Unmarshal(sink.received[0].Payload, &p))
	assert.Equal(t, "alice", p.PlayerName)
}

func TestLocalCommandErrorBecomesErrorEvent(t *testing.T) {
	sink := &fakeSink{err: errors.New(errors.CodeNotFound)}
	l := NewLocal(sink)

	var got ErrorPayload
	seen := false
	l.On(EventError, func(data json.RawMessage) {
		seen = true
		json.Unmarshal(data, &got)
	})

	ok := l.Send(CmdStartGame, StartGamePayload{GameCode: "NOPE99"})
	assert.True(t, ok, "delivery succeeded even though the command failed")
	assert.True(t, seen)
	assert.Contains(t, got.Message, "session not found")
}

func TestLocalPublishReachesSubscribers(t *testing.T) {
	l := NewLocal(&fakeSink{})

	var got GameStartedPayload
	l.On(EventGameStarted, func(data json.RawMessage) {
		json.Unmarshal(data, &got)
	})

	l.Publish("ABC123", EventGameStarted, GameStartedPayload{GameCode: "ABC123", QuestionCount: 5})
	assert.Equal(t, "ABC123", got.GameCode)
	assert.Equal(t, 5, got.QuestionCount)
}

func TestLocalUnsubscribe(t *testing.T) {
	l := NewLocal(&fakeSink{})

	calls := 0
	off := l.On(EventTimerTick, func(json.RawMessage) { calls++ })

	l.Publish("ABC123", EventTimerTick, TimerTickPayload{SecondsLeft: 3})
	off()
	l.Publish("ABC123", EventTimerTick, TimerTickPayload{SecondsLeft: 2})

	assert.Equal(t, 1, calls)
	assert.NoError(t, l.Close())
}
