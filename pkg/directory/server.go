// Package directory implements the rendezvous server of a peer-to-peer
// room chat. It authenticates users, tracks rooms, and publishes each
// member's reachable endpoint to every other member so peers can open
// direct TCP sessions. Chat payloads never pass through it; the only
// thing it forwards is "a new member arrived at address X".
package directory

import (
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/rendezchat/rendez/pkg/config"
)

// Server is the directory server. It owns the two process-wide
// registries and one session per connected client.
type Server struct {
	cfg config.ServerConfig
	log *zap.Logger

	users *UserRegistry
	rooms *RoomRegistry

	lock     sync.RWMutex
	listener net.Listener
	sessions map[*session]bool

	quit chan struct{}
}

// New returns an unstarted Server with the given configuration.
func New(cfg config.ServerConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		users:    NewUserRegistry(),
		rooms:    NewRoomRegistry(),
		sessions: make(map[*session]bool),
		quit:     make(chan struct{}),
	}
}

// Listen binds the TCP listener on the configured address.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.cfg.BindAddress())
	if err != nil {
		return err
	}
	s.lock.Lock()
	s.listener = l
	s.lock.Unlock()
	s.log.Info("server is listening", zap.Stringer("addr", l.Addr()))
	return nil
}

// Addr returns the bound listener address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop, spawning an independent session per
// connection. It blocks until Shutdown closes the listener.
func (s *Server) Serve() error {
	s.lock.RLock()
	l := s.listener
	s.lock.RUnlock()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("TCP accept error", zap.Error(err))
			continue
		}
		s.log.Debug("new connection", zap.Stringer("peer", conn.RemoteAddr()))
		sess := newSession(conn, s)
		s.register(sess)
		go sess.run()
	}
}

// Shutdown closes the listener and every live session.
func (s *Server) Shutdown() {
	s.log.Info("shutting down server")
	close(s.quit)
	s.lock.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.lock.Unlock()
	for _, sess := range sessions {
		sess.conn.Close()
	}
}

// Users exposes the user registry for the admin console and tests.
func (s *Server) Users() *UserRegistry { return s.users }

// Rooms exposes the room registry for the admin console and tests.
func (s *Server) Rooms() *RoomRegistry { return s.rooms }

func (s *Server) register(sess *session) {
	s.lock.Lock()
	s.sessions[sess] = true
	updateSessionsMetric(len(s.sessions))
	s.lock.Unlock()
}

func (s *Server) unregister(sess *session) {
	s.lock.Lock()
	delete(s.sessions, sess)
	updateSessionsMetric(len(s.sessions))
	s.lock.Unlock()
}
