package transport

import (
	"log/slog"
)

// Local is the in-process backend: commands go straight to the game
// service, events come back over the shared bus. It implements the same
// command/event surface as the WebSocket backend so callers stay
// backend-agnostic, and doubles as the game service's broadcaster in
// single-process mode.
type Local struct {
	sink CommandSink
	bus  *Bus
	log  *slog.Logger
}

var _ Transport = (*Local)(nil)

func NewLocal(sink CommandSink) *Local {
	return &Local{
		sink: sink,
		bus:  NewBus(),
		log:  slog.Default(),
	}
}

// Bind attaches the command sink after construction, for the case where
// the service itself needs the Local as its broadcaster.
func (l *Local) Bind(sink CommandSink) {
	l.sink = sink
}

func (l *Local) Send(msgType string, payload any) bool {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		l.log.Error("transport: encode command", "type", msgType, "error", err)
		return false
	}

	if err := l.sink.HandleCommand(msg); err != nil {
		// Command errors surface as error events, same as the network
		// backend; the send itself was still delivered.
		l.bus.EmitPayload(EventError, ErrorPayload{Message: err.Error()})
	}
	return true
}

func (l *Local) On(event string, h Handler) (off func()) {
	return l.bus.Subscribe(event, h)
}

func (l *Local) Close() error {
	return nil
}

// Publish implements the game service's broadcaster over the local bus.
// The game code rides inside every event payload, so in-process
// subscribers filter by code themselves.
func (l *Local) Publish(_ string, event string, payload any) {
	l.bus.EmitPayload(event, payload)
}
