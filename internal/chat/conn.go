// Package chat implements the realtime core: sessions, presence, rooms, typing
// state and message dispatch. Transports plug in through Conn.
package chat

import "context"

// Conn abstracts a bidirectional frame-oriented connection.
// This interface isolates transport details from chat logic.
type Conn interface {
	// Read reads a single text frame.
	// Returns io.EOF when connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
