package docengine

// Socket is the minimal send/close surface the document engine needs from
// a connected WebSocket. The gateway package supplies the real
// gorilla/websocket-backed implementation; tests use an in-memory fake.
// This mirrors the transport-agnostic ClientInterface pattern the teacher
// repo uses to keep its room package free of a transport-layer dependency.
type Socket interface {
	// Send queues a binary frame for delivery. Implementations must not
	// block the caller on a slow reader; a full send buffer drops the
	// frame rather than stalling the document's lock holder.
	Send(frame []byte)
	// Close terminates the connection with the given human-readable reason.
	Close(reason string)
}
