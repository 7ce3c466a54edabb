package core

// Frame is a raw text frame as read from or written to a transport.
type Frame []byte

// ConnID identifies one physical connection, assigned by the adapter at
// upgrade time, before the client has declared anything about itself.
type ConnID string

// SignalConn abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it, exactly once.
type SignalConn interface {
	// TrySend queues a frame without blocking. It fails when the
	// connection is closed or its send queue is full.
	TrySend(Frame) error
	Close()
}
