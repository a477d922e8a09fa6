// Package ws provides the WebSocket transport of the chat server on gobwas/ws.
package ws

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn adapts a server side gobwas/ws connection to chat.Conn.
// Frames are text frames carrying one JSON event each.
type Conn struct {
	conn         net.Conn
	reader       *wsutil.Reader
	remoteAddr   string
	readTimeout  time.Duration
	writeTimeout time.Duration

	// mu serializes frame writes, including control replies from the reader.
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an upgraded connection. src is where frames are read from,
// usually the buffered reader returned by the upgrade; nil means conn itself.
func NewConn(conn net.Conn, src io.Reader, remoteAddr string, readTimeout, writeTimeout time.Duration) *Conn {
	if src == nil {
		src = conn
	}
	c := &Conn{
		conn:         conn,
		remoteAddr:   remoteAddr,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}
	return c
}

// Read implements chat.Conn.
// Reads the next data message, answering pings and close frames on the way.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.readTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.reader); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := c.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(c.reader)
	}
}

// Write implements chat.Conn.
// Writes a text message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.writeFrame(ctx, ws.OpText, data)
}

// Ping sends a ping control frame.
func (c *Conn) Ping(ctx context.Context) error {
	return c.writeFrame(ctx, ws.OpPing, nil)
}

// Close implements chat.Conn.
// Sends a normal closure frame and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, body)
		c.mu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Conn) writeFrame(ctx context.Context, op ws.OpCode, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(c.writeDeadline(ctx))
	return wsutil.WriteServerMessage(c.conn, op, data)
}

func (c *Conn) writeDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// handleControl answers a control frame. The reply is buffered and written
// in one piece so it cannot interleave with a data frame.
func (c *Conn) handleControl(h ws.Header, r io.Reader) error {
	var reply bytes.Buffer
	err := wsutil.ControlFrameHandler(&reply, ws.StateServerSide)(h, r)
	if reply.Len() > 0 {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_, werr := c.conn.Write(reply.Bytes())
		c.mu.Unlock()
		if err == nil {
			err = werr
		}
	}
	return err
}
