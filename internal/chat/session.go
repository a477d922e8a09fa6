package chat

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultSendBuffer is the outbound queue length used when none is configured.
const DefaultSendBuffer = 64

// Session is the typed record of one authenticated live connection.
// Frames queued with Send are written by the transport's write loop.
type Session struct {
	ID   string
	User User
	Conn Conn

	outgoing  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
}

// NewSession creates a session in the Connecting state.
func NewSession(conn Conn, user User, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Session{
		ID:       uuid.NewString(),
		User:     user,
		Conn:     conn,
		outgoing: make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// Send queues a frame without blocking. It reports false when the session is
// closed or its queue is full, in which case the frame is dropped.
func (s *Session) Send(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outgoing <- frame:
		return true
	default:
		return false
	}
}

// Outgoing exposes the queue drained by the write loop.
func (s *Session) Outgoing() <-chan []byte {
	return s.outgoing
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session closed and closes the underlying connection.
// It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.SetState(StateClosed)
		close(s.done)
		if s.Conn != nil {
			_ = s.Conn.Close()
		}
	})
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// SetState moves the session to st.
func (s *Session) SetState(st SessionState) {
	s.state.Store(int32(st))
}
