package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDispatchOrder(t *testing.T) {
	b := NewBus()

	var got []int
	b.Subscribe("ev", func(json.RawMessage) { got = append(got, 1) })
	b.Subscribe("ev", func(json.RawMessage) { got = append(got, 2) })
	b.Subscribe("ev", func(json.RawMessage) { got = append(got, 3) })

	b.Emit("ev", nil)
	assert.Equal(t, []int{1, 2, 3}, got, "handlers run in subscription order")

	b.Emit("other", nil)
	assert.Len(t, got, 3, "unrelated events do not dispatch")
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()

	calls := 0
	off := b.Subscribe("ev", func(json.RawMessage) { calls++ })

	b.Emit("ev", nil)
	off()
	b.Emit("ev", nil)

	assert.Equal(t, 1, calls)

	// Unsubscribing twice is harmless.
	off()
}

func TestBusPanicIsolation(t *testing.T) {
	b := NewBus()

	survived := false
	b.Subscribe("ev", func(json.RawMessage) { panic("boom") })
	b.Subscribe("ev", func(json.RawMessage) { survived = true })

	assert.NotPanics(t, func() { b.Emit("ev", nil) })
	assert.True(t, survived, "later handlers still run after a panic")
}

func TestBusEmitPayload(t *testing.T) {
	b := NewBus()

	var got TimerTickPayload
	b.Subscribe(EventTimerTick, func(data json.RawMessage) {
		require.NoError(t, json.Unmarshal(data, &got))
	})

	b.EmitPayload(EventTimerTick, TimerTickPayload{GameCode: "ABC123", SecondsLeft: 7})

	assert.Equal(t, "ABC123", got.GameCode)
	assert.Equal(t, 7, got.SecondsLeft)
}
