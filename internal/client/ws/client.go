// Package ws provides a WebSocket client for the chat server.
package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochice/realtime-chat/pkg/protocol"
)

// ErrNotConnected is returned by send methods before Connect or after Disconnect.
var ErrNotConnected = errors.New("not connected to server")

const writeWait = 10 * time.Second

// Client represents a WebSocket chat client.
type Client struct {
	address string
	token   string
	logger  *slog.Logger

	conn   *websocket.Conn
	events chan protocol.Event
	mu     sync.RWMutex
	// writeMu serialises frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a new WebSocket Client for the ws:// or wss:// address.
// The token is sent as a bearer credential on Connect.
func New(address, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		address: address,
		token:   token,
		logger:  logger,
		events:  make(chan protocol.Event, 32),
		done:    make(chan struct{}),
	}
}

// Connect establishes a WebSocket connection to the server.
func (c *Client) Connect() error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(c.address, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to server: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	conn.SetPingHandler(func(data string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveEvents(conn)

	return nil
}

// Disconnect closes the WebSocket connection. The Events channel is closed
// once the receive loop ends.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	close(c.done)
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
	c.wg.Wait()
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Events returns the channel of server events.
func (c *Client) Events() <-chan protocol.Event {
	return c.events
}

// SendMessage posts a text message to a conversation.
func (c *Client) SendMessage(conversationID int64, content string) error {
	return c.send(protocol.EventSendMessage, protocol.SendMessage{
		ConversationID: conversationID,
		Content:        content,
		MessageType:    "text",
	})
}

// Join subscribes to a conversation room.
func (c *Client) Join(conversationID int64) error {
	return c.send(protocol.EventJoinConversation, protocol.ConversationRef{ConversationID: conversationID})
}

// Leave unsubscribes from a conversation room.
func (c *Client) Leave(conversationID int64) error {
	return c.send(protocol.EventLeaveConversation, protocol.ConversationRef{ConversationID: conversationID})
}

func (c *Client) StartTyping(conversationID int64) error {
	return c.send(protocol.EventTypingStart, protocol.Typing{ConversationID: conversationID})
}

func (c *Client) StopTyping(conversationID int64) error {
	return c.send(protocol.EventTypingStop, protocol.Typing{ConversationID: conversationID})
}

// MarkAsRead marks the peer's messages as read. A nil messageID marks all of them.
func (c *Client) MarkAsRead(conversationID int64, messageID *int64) error {
	return c.send(protocol.EventMarkAsRead, protocol.MarkAsRead{ConversationID: conversationID, MessageID: messageID})
}

func (c *Client) StartConversation(userID int64) error {
	return c.send(protocol.EventStartConversation, protocol.StartConversation{UserID: userID})
}

func (c *Client) GetConversations() error {
	return c.send(protocol.EventGetConversations, nil)
}

func (c *Client) GetOnlineUsers() error {
	return c.send(protocol.EventGetOnlineUsers, nil)
}

func (c *Client) send(name string, payload any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := protocol.Encode(name, payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

func (c *Client) receiveEvents(conn *websocket.Conn) {
	defer c.wg.Done()
	defer close(c.events)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("read from server failed", "error", err)
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
			}
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("failed to decode event", "error", err)
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}
