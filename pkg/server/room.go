package server

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/destiny/pkg"
	"github.com/abennett/destiny/pkg/messages"
)

const (
	PingInterval = 5 * time.Second
)

type userSession struct {
	wg      *sync.WaitGroup
	logger  *slog.Logger
	name    string
	writeCh chan []byte
}

type Room struct {
	mu           *sync.Mutex
	logger       *slog.Logger
	clock        quartz.Clock
	roller       *pkg.Roller
	pingInterval time.Duration
	userSessions map[string]userSession

	Version int
	Name    string
	// Dice is the notation every participant rolls.
	Dice  string
	Rolls map[string]messages.RollResult
}

func (r *Room) RunSession(ctx context.Context, conn *websocket.Conn) {
	_, b, err := conn.ReadMessage()
	if err != nil {
		r.logger.Error("failed to read initial message", "error", err)
		return
	}

	var msg messages.Message
	if err = msgpack.Unmarshal(b, &msg); err != nil {
		r.logger.Error("failed to parse initial message", "error", err, "payload", string(b))
		return
	}

	req, ok := msg.Payload.(messages.RollRequest)
	if !ok || req.User == "" {
		r.logger.Error("initial message was incorrect", "type", msg.Type, "payload", string(b))
		return
	}

	name := req.User
	r.logger.Debug("starting a session", "user", name)
	writeCh := make(chan []byte, 1)
	session := userSession{
		wg:      new(sync.WaitGroup),
		logger:  r.logger.With("user", req.User),
		name:    req.User,
		writeCh: writeCh,
	}

	r.startUserSession(ctx, session, conn)

	if err := r.join(req); err != nil {
		session.logger.Error("roll failed", "error", err)
		r.sendError(session, err)
	}

	session.wg.Wait()
	r.stopUserSession(session)
	r.logger.Info("closing session", "active_sessions", r.activeSessions(), "user", name)
}

// join rolls for a joining user and records the result under a single hold
// of the room lock. Every recorded roll uses the dice the room shows.
func (r *Room) join(req messages.RollRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, err := r.rollFor(req)
	if err != nil {
		return err
	}
	return r.update(result)
}

// rollFor rolls the room's dice for a joining user. A notation offered to
// a room nobody has rolled in yet replaces the room's dice if it rolls.
// Callers hold the room lock.
func (r *Room) rollFor(req messages.RollRequest) (messages.RollResult, error) {
	if req.Roll != "" && req.Roll != r.Dice && len(r.Rolls) == 0 {
		roll, err := r.roller.Roll(req.Roll)
		if err == nil {
			r.Dice = req.Roll
			r.logger.Info("room dice set", "dice", req.Roll, "user", req.User)
			return toResult(req.User, roll), nil
		}
		r.logger.Info("ignoring offered dice", "dice", req.Roll, "user", req.User, "error", err)
	}

	roll, err := r.roller.Roll(r.Dice)
	if err != nil {
		return messages.RollResult{}, fmt.Errorf("rolling %q: %w", r.Dice, err)
	}
	return toResult(req.User, roll), nil
}

func toResult(user string, roll pkg.Roll) messages.RollResult {
	return messages.RollResult{
		User:       user,
		Result:     roll.Total,
		Expression: roll.Expression,
	}
}

func (r *Room) activeSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.userSessions)
}

func (r *Room) startUserSession(ctx context.Context, session userSession, conn *websocket.Conn) {
	r.mu.Lock()
	r.userSessions[session.name] = session
	r.mu.Unlock()

	// Add to the waitGroup outside of goroutines here to avoid race condition on Add
	ctx, cancel := context.WithCancel(ctx)
	session.wg.Add(2)
	go r.userReadLoop(cancel, session, conn)
	go r.userWriteLoop(ctx, session, conn)
}

func (r *Room) stopUserSession(session userSession) {
	r.mu.Lock()
	delete(r.userSessions, session.name)
	r.mu.Unlock()
}

func (r *Room) userReadLoop(cancel func(), session userSession, conn *websocket.Conn) {
	defer cancel()
	defer session.wg.Done()
	defer session.logger.Debug("closing read loop")

	for {
		t, b, err := conn.ReadMessage()
		if closeErr, ok := err.(*websocket.CloseError); ok {
			if closeErr.Code == websocket.CloseNormalClosure {
				session.logger.Info("close message received")
				return
			}
		}
		if err != nil {
			r.logger.Error("failure in user read loop", "error", err)
			return
		}

		switch t {
		case websocket.CloseMessage:
			session.logger.Info("close message received")
			return
		case websocket.BinaryMessage:
			session.logger.Debug("binary message received")
			if err := r.HandleBinaryMessage(session.name, b); err != nil {
				session.logger.Error("failed handling message", "error", err)
				r.sendError(session, err)
			}
		}
	}
}

// HandleBinaryMessage applies a message sent by user after joining.
func (r *Room) HandleBinaryMessage(user string, b []byte) error {
	var msg messages.Message
	err := msgpack.Unmarshal(b, &msg)
	if err != nil {
		return fmt.Errorf("%w: %w", messages.ErrMessageInvalid, err)
	}

	switch msg.Payload.(type) {
	case messages.DoneRequest:
		// users may only toggle their own roll
		return r.Update(messages.DoneRequest{User: user})
	default:
		return fmt.Errorf("%w: %s after join", messages.ErrUnknownMessageType, msg.Type)
	}
}

func (r *Room) userWriteLoop(ctx context.Context, session userSession, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer session.wg.Done()
	defer session.logger.Debug("closing write loop")
	interval := r.pingInterval
	if interval <= 0 {
		interval = PingInterval
	}
	ticker := r.clock.NewTicker(interval, "room", "ping")
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			session.logger.Debug("write loop is done")
			return
		case b := <-session.writeCh:
			session.logger.Debug("writing message")
			err := conn.WriteMessage(websocket.BinaryMessage, b)
			if err != nil {
				r.logger.Error(err.Error())
				return
			}
		case <-ticker.C:
			session.logger.Debug("writing ping message")
			err := conn.WriteMessage(websocket.PingMessage, []byte{})
			if err == websocket.ErrCloseSent {
				session.logger.Debug("error close was sent")
				return
			}
			if err != nil {
				session.logger.Error("ping failed", "error", err)
				return
			}
		}
	}
}

func (r *Room) Update(update any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(update)
}

func (r *Room) update(update any) error {
	switch u := update.(type) {
	case messages.RollResult:
		r.Rolls[u.User] = u
		r.logger.Debug("added roll", "active_sessions", len(r.userSessions), "user", u.User)
	case messages.DoneRequest:
		roll, ok := r.Rolls[u.User]
		if !ok {
			return fmt.Errorf("no roll for user %q", u.User)
		}
		roll.IsDone = !roll.IsDone
		r.Rolls[u.User] = roll
		r.logger.Debug("toggled done", "user", u.User, "is_done", roll.IsDone)
	default:
		err := fmt.Errorf("unknown update type: %T", update)
		r.logger.Error(err.Error())
		return err
	}

	r.Version++

	b, err := msgpack.Marshal(messages.New(messages.StateMsgType, r.ToState()))
	if err != nil {
		r.logger.Error("failed marshalling room", "error", err)
		return err
	}

	for _, us := range r.userSessions {
		r.logger.Debug("pushing update", "user", us.name, "version", r.Version)
		push(us.writeCh, b)
	}
	return nil
}

func (r *Room) sendError(session userSession, err error) {
	b, mErr := msgpack.Marshal(messages.New(messages.ErrorMsgType, messages.ErrorResponse{Error: err.Error()}))
	if mErr != nil {
		session.logger.Error("failed marshalling error", "error", mErr)
		return
	}
	r.mu.Lock()
	push(session.writeCh, b)
	r.mu.Unlock()
}

// push hands b to a session's writer, replacing any message it has not
// picked up yet. Every state message is a full snapshot, so the newest one
// is all a slow reader needs. Callers hold the room lock.
func push(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- b
}

// ToState must be called with the room lock held.
func (r *Room) ToState() messages.RoomState {
	rolls := make([]messages.RollResult, 0, len(r.Rolls))
	for _, roll := range r.Rolls {
		rolls = append(rolls, roll)
	}
	slices.SortFunc(rolls, func(a, b messages.RollResult) int {
		return cmp.Or(
			cmp.Compare(b.Result, a.Result),
			cmp.Compare(a.User, b.User),
		)
	})
	return messages.RoomState{
		Version: r.Version,
		Name:    r.Name,
		Dice:    r.Dice,
		Rolls:   rolls,
	}
}
