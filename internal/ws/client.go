package ws

import (
	"encoding/json"
	"errors"
	"sync"
)

// Client errors.
var (
	ErrClientClosed  = errors.New("client is closed")
	ErrSendQueueFull = errors.New("client send queue is full")
)

// sendQueueSize bounds the per-client outbound buffer. A client that falls
// this far behind is disconnected rather than allowed to block its peers.
const sendQueueSize = 256

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Client represents one connected participant. Outbound messages are
// enqueued onto a buffered channel drained by a single write loop, so
// enqueue order is delivery order and a slow connection never blocks the
// caller.
type Client struct {
	ID     string
	UserID string

	conn Conn
	send chan Message
	done chan struct{}

	closeOnce sync.Once

	mu    sync.Mutex
	docID string // Currently subscribed document
}

// NewClient creates a client wrapper and starts its write loop.
func NewClient(id, userID string, conn Conn) *Client {
	c := &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan Message, sendQueueSize),
		done:   make(chan struct{}),
	}

	go c.writeLoop()

	return c
}

// writeLoop drains the send queue onto the connection.
func (c *Client) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				_ = c.Close()

				return
			}
		case <-c.done:
			return
		}
	}
}

// Send enqueues a message for delivery. Returns ErrSendQueueFull if the
// client has fallen too far behind, ErrClientClosed after Close.
func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendQueueFull
	}
}

// SendError sends an error message to the client.
func (c *Client) SendError(code, message string) error {
	return c.Send(Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Receive reads and decodes the next client-to-server message.
func (c *Client) Receive() (Message, error) {
	var raw struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := c.conn.ReadJSON(&raw); err != nil {
		return Message{}, err
	}

	msg := Message{Type: raw.Type}

	switch raw.Type {
	case MessageTypeUpdate:
		var payload UpdatePayload
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return Message{}, err
		}

		msg.Payload = payload
	case MessageTypeCursor:
		var payload CursorPayload
		if err := json.Unmarshal(raw.Payload, &payload); err != nil {
			return Message{}, err
		}

		msg.Payload = payload
	default:
		// Server-to-client messages - keep raw payload
		msg.Payload = raw.Payload
	}

	return msg, nil
}

// Close tears down the write loop and the underlying connection. Safe to
// call more than once.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})

	return err
}

// Closed reports whether the client has been closed.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// DocID returns the document the client is subscribed to.
func (c *Client) DocID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.docID
}

// SetDocID sets the document the client is subscribed to.
func (c *Client) SetDocID(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docID = docID
}
