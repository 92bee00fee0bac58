// Package transport delivers session-mutating commands to the
// authoritative game service and broadcasts state-change events back,
// behind one interface with two backends: an in-process direct-call
// backend and a WebSocket client. The backend is selected at construction,
// never swapped silently.
package transport

// Transport is the command/event surface shared by every backend.
type Transport interface {
	// Send delivers a command. Fire-and-forget with ack: false means the
	// command was not delivered (not connected), and the caller may retry
	// once reconnection has been signalled.
	Send(msgType string, payload any) bool

	// On subscribes a handler to an event and returns its unsubscribe
	// handle. Multiple handlers per event are supported.
	On(event string, h Handler) (off func())

	// Close releases the backend. For the WebSocket backend this also
	// stops any pending reconnection attempts.
	Close() error
}

// CommandSink is the authoritative receiver of commands; implemented by the
// game service.
type CommandSink interface {
	HandleCommand(msg Message) error
}
