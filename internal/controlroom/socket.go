package controlroom

// Socket is the minimal send/close surface the control room needs from a
// connected WebSocket. Kept transport-agnostic for the same reason as
// docengine.Socket: the gateway package owns the real gorilla/websocket
// implementation, and tests use an in-memory fake.
type Socket interface {
	// Send queues a JSON-encoded control message for delivery. Must not
	// block the caller on a slow reader.
	Send(payload []byte)
	// Close terminates the connection with the given human-readable reason.
	Close(reason string)
}
