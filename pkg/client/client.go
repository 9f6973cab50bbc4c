package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/destiny/pkg/messages"
)

var (
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrClosed           = errors.New("connection closed")
)

type Client struct {
	mu   *sync.Mutex
	user string
	roll string

	conn     *websocket.Conn
	logger   *slog.Logger
	messages chan messages.Message
	done     chan struct{}

	Room messages.RoomState
}

func connectLoop(wsUrl string) (*websocket.Conn, error) {
	for range 3 {
		slog.Debug("attempting connection", "url", wsUrl)
		conn, resp, err := websocket.DefaultDialer.Dial(wsUrl, nil)
		slog.Debug("connection attempted",
			"resp", resp,
			"error", err)
		if err != nil {
			if resp != nil {
				_, _ = io.Copy(os.Stderr, resp.Body)
			}
			return nil, err
		}
		if resp != nil && resp.StatusCode >= 300 && resp.StatusCode < 400 {
			wsUrl = resp.Header.Get("Location")
			slog.Debug("redirecting", "location", wsUrl)
			continue
		}
		return conn, nil
	}

	return nil, ErrTooManyRedirects
}

func hostUrl(endpoint, room string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	var scheme string
	switch parsed.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("%s is not a valid protocol", parsed.Scheme)
	}
	parsed.Scheme = scheme
	parsed.Path = "/" + room
	return parsed.String(), nil
}

func setupLogger(user string, logWriter io.Writer) *slog.Logger {
	if logWriter == nil {
		logWriter = io.Discard
	}
	h := slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h).With("user", user)
}

// New connects user to room on host. roll is the notation offered to the
// room and may be empty to accept the room's dice.
func New(host, room, user, roll string, logWriter io.Writer) (*Client, error) {
	logger := setupLogger(user, logWriter)

	endpoint, err := hostUrl(host, room)
	if err != nil {
		return nil, err
	}
	logger.Debug("using endpoint", "endpoint", endpoint)

	conn, err := connectLoop(endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		mu:       new(sync.Mutex),
		user:     user,
		roll:     roll,
		logger:   logger,
		conn:     conn,
		messages: make(chan messages.Message, 1),
		done:     make(chan struct{}),
		Room: messages.RoomState{
			Rolls: []messages.RollResult{},
		},
	}, nil
}

func (c *Client) Init() error {
	c.logger.Debug("running Init")
	req := messages.New(messages.RollRequestType, messages.RollRequest{
		User: c.user,
		Roll: c.roll,
	})
	b, err := msgpack.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	c.logger.Debug("writing initial message")
	err = c.conn.WriteMessage(websocket.BinaryMessage, b)
	if err != nil {
		return fmt.Errorf("unable to write server: %w", err)
	}

	go c.updateLoop(c.messages)
	return nil
}

// ToggleDone flips this user's done flag in the room.
func (c *Client) ToggleDone() error {
	b, err := msgpack.Marshal(messages.New(messages.DoneRequestType, messages.DoneRequest{
		User: c.user,
	}))
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

// State returns the latest room state received.
func (c *Client) State() messages.RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Room
}

// ReadUpdate blocks for the next message and returns the room's rolls, or
// an error if the server reported one or the connection closed.
func (c *Client) ReadUpdate() any {
	c.logger.Debug("reading update")
	var msg messages.Message
	select {
	case msg = <-c.messages:
	case <-c.done:
		return ErrClosed
	}
	switch payload := msg.Payload.(type) {
	case messages.RoomState:
		c.logger.Debug("room state message received", "version", payload.Version)
		return payload.Rolls
	case messages.ErrorResponse:
		return fmt.Errorf("server: %s", payload.Error)
	default:
		return fmt.Errorf("%w: %s", messages.ErrUnknownMessageType, msg.Type)
	}
}

func (c *Client) Close() error {
	c.logger.Debug("closing connection")
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil {
		c.logger.Error("close control message failed", "error", err)
		return fmt.Errorf("close control message failed: %w", err)
	}
	return nil
}

func (c *Client) updateLoop(updates chan messages.Message) {
	defer close(c.done)
	c.logger.Debug("running update loop")
	for {
		t, b, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug("update loop stopped", "error", err)
			return
		}
		if t != websocket.BinaryMessage {
			continue
		}
		var msg messages.Message
		err = msgpack.Unmarshal(b, &msg)
		if err != nil {
			c.logger.Error("failed parsing message", "error", err, "payload", b)
			continue
		}
		c.logger.Debug("message received", "type", msg.Type)
		if payload, ok := msg.Payload.(messages.RoomState); ok {
			c.logger.Debug("new room version", "version", payload.Version)
			c.mu.Lock()
			if payload.Version > c.Room.Version {
				c.Room = payload
			}
			c.mu.Unlock()
		}
		offer(updates, msg)
	}
}

// offer delivers msg, dropping an unread older message if need be.
func offer(ch chan messages.Message, msg messages.Message) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
