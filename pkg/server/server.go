package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/abennett/destiny/pkg"
	"github.com/abennett/destiny/pkg/messages"
)

var (
	ErrRoomExists    = errors.New("room exists")
	ErrRoomNotExists = errors.New("room does not exist")
)

type Server struct {
	rw       *sync.RWMutex
	upgrader websocket.Upgrader
	cfg      Config
	clock    quartz.Clock
	roller   *pkg.Roller
	builder  *pkg.Builder

	Rooms map[string]*Room
}

type Option func(*Server)

// WithClock replaces the clock driving room keepalive pings.
func WithClock(clock quartz.Clock) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithRoller replaces the roller used for room and API rolls. The roller
// must be safe for concurrent use.
func WithRoller(r *pkg.Roller) Option {
	return func(s *Server) {
		s.roller = r
	}
}

func NewServer(cfg Config, opts ...Option) *Server {
	policy := pkg.FailFast
	if cfg.SkipFailures {
		policy = pkg.SkipFailures
	}
	s := &Server{
		rw:     &sync.RWMutex{},
		cfg:    cfg,
		clock:  quartz.NewReal(),
		roller: pkg.NewRoller(pkg.WithMaxDice(cfg.MaxDice)),
		builder: pkg.NewBuilder(
			pkg.WithWorkers(cfg.Workers),
			pkg.WithPolicy(policy),
			pkg.WithLogger(slog.With("component", "builder")),
		),
		Rooms: map[string]*Room{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "roomName")
	if roomName == "" {
		http.Error(w, "room name is required", http.StatusBadRequest)
		return
	}
	slog.Info("serving request", "roomName", roomName)
	room, err := s.GetRoom(roomName)
	if errors.Is(err, ErrRoomNotExists) {
		room, err = s.NewRoom(roomName)
	}
	if err != nil {
		slog.Error("unable to create new room", "room_name", roomName, "error", err)
		http.Error(w, "unable to create new room", http.StatusInternalServerError)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error(err.Error())
		return
	}
	defer conn.Close()

	// Keep connection alive
	room.RunSession(r.Context(), conn)

	room.mu.Lock()
	if len(room.userSessions) == 0 {
		s.rw.Lock()
		if s.Rooms[roomName] == room {
			delete(s.Rooms, roomName)
		}
		s.rw.Unlock()
		slog.Info("closed room", "room", roomName)
	}
	room.mu.Unlock()
}

func (s *Server) NewRoom(name string) (*Room, error) {
	s.rw.Lock()
	defer s.rw.Unlock()
	_, ok := s.Rooms[name]
	if ok {
		return nil, ErrRoomExists
	}
	s.Rooms[name] = &Room{
		mu:           new(sync.Mutex),
		logger:       slog.With("room", name),
		clock:        s.clock,
		roller:       s.roller,
		pingInterval: s.cfg.PingInterval,
		userSessions: make(map[string]userSession),
		Version:      0,
		Dice:         s.cfg.DefaultDice,
		Name:         name,
		Rolls:        map[string]messages.RollResult{},
	}
	return s.Rooms[name], nil
}

func (s *Server) GetRoom(roomName string) (*Room, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()
	room, ok := s.Rooms[roomName]
	if !ok {
		return room, ErrRoomNotExists
	}
	return room, nil
}

// GetRooms snapshots the state of every open room.
func (s *Server) GetRooms() map[string]messages.RoomState {
	s.rw.RLock()
	rooms := make([]*Room, 0, len(s.Rooms))
	for _, room := range s.Rooms {
		rooms = append(rooms, room)
	}
	s.rw.RUnlock()

	states := make(map[string]messages.RoomState, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		states[room.Name] = room.ToState()
		room.mu.Unlock()
	}
	return states
}
