package directory

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/rendezchat/rendez/pkg/payload"
	"github.com/rendezchat/rendez/pkg/wire"
)

// notifyQueueLen bounds the per-session join-notification queue. Pushes
// into a full queue are dropped, never blocked on: the registry lock must
// not wait on another session's socket.
const notifyQueueLen = 64

// session drives one control connection through its two states:
// await-login, then the in-room loop. It is the only goroutine writing to
// its socket.
type session struct {
	srv  *Server
	conn net.Conn
	log  *zap.Logger

	user payload.User
	// addr is the endpoint published to room members. The client dials
	// the directory from the same reusable local endpoint it accepts
	// peers on, so the remote address of this connection is exactly the
	// address peers can reach.
	addr  string
	rooms []payload.ID
	// awaitingFeedback is set after a join until the client reports
	// which snapshot members it could not reach.
	awaitingFeedback bool

	notify chan payload.ClientInfo
	done   chan struct{}
}

func newSession(conn net.Conn, srv *Server) *session {
	return &session{
		srv:    srv,
		conn:   conn,
		log:    srv.log.With(zap.Stringer("peer", conn.RemoteAddr())),
		addr:   conn.RemoteAddr().String(),
		notify: make(chan payload.ClientInfo, notifyQueueLen),
		done:   make(chan struct{}),
	}
}

func (s *session) run() {
	defer s.cleanup()
	if err := s.awaitLogin(); err != nil {
		s.log.Warn("login never completed", zap.Error(err))
		return
	}
	s.log.Info("user logged in",
		zap.Uint32("id", uint32(s.user.ID)),
		zap.String("name", s.user.Name))
	if err := s.roomLoop(); err != nil && !errors.Is(err, wire.ErrClosed) {
		s.log.Warn("session ended", zap.Error(err))
	}
}

// awaitLogin loops until a frame decodes to a valid, unique user record.
// Heartbeats and short reads keep the loop going; a garbage header or a
// closed peer ends the session.
func (s *session) awaitLogin() error {
	for {
		frame, err := wire.Read(s.conn)
		if err != nil {
			var trunc *wire.TruncatedError
			if errors.As(err, &trunc) {
				s.log.Debug("short read during login", zap.Error(err))
				continue
			}
			return err
		}
		if len(frame) == 0 {
			continue
		}
		var u payload.User
		if err := json.Unmarshal(frame, &u); err != nil || u.Name == "" || u.Passwd == "" {
			if werr := wire.Write(s.conn, []byte(payload.StatusLoginFailed)); werr != nil {
				return werr
			}
			continue
		}
		if err := s.srv.users.Add(&u); err != nil {
			if werr := wire.Write(s.conn, []byte(payload.StatusUserExists)); werr != nil {
				return werr
			}
			continue
		}
		s.user = u
		if err := wire.Write(s.conn, []byte(payload.StatusOK)); err != nil {
			return err
		}
		info, err := json.Marshal(payload.BaseUserInfo{ID: u.ID, Name: u.Name})
		if err != nil {
			return err
		}
		return wire.Write(s.conn, info)
	}
}

// roomLoop multiplexes inbound frames, join notifications destined for
// this user, and the keepalive tick. Any write failure ends the session.
func (s *session) roomLoop() error {
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go s.readPump(frames, readErr)

	ticker := time.NewTicker(s.srv.cfg.KeepAliveDuration())
	defer ticker.Stop()
	for {
		select {
		case frame := <-frames:
			if err := s.handleFrame(frame); err != nil {
				return err
			}
		case err := <-readErr:
			return err
		case ci := <-s.notify:
			b, err := json.Marshal(ci)
			if err != nil {
				return err
			}
			if err := wire.Write(s.conn, b); err != nil {
				return err
			}
		case <-ticker.C:
			if err := wire.WriteHeartbeat(s.conn); err != nil {
				return err
			}
		case <-s.srv.quit:
			return nil
		}
	}
}

func (s *session) readPump(frames chan<- []byte, readErr chan<- error) {
	var rd wire.Reader
	for {
		ok, err := rd.Poll(s.conn)
		if err != nil {
			select {
			case readErr <- err:
			case <-s.done:
			}
			return
		}
		if !ok {
			continue
		}
		select {
		case frames <- rd.Take():
		case <-s.done:
			return
		}
	}
}

// handleFrame dispatches one inbound frame in the in-room state. The
// accepted payloads are the empty heartbeat, the unreachable-peer report
// owed after a join, and a room join/create request. Anything else is
// logged and ignored; the session continues.
func (s *session) handleFrame(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	if s.awaitingFeedback {
		var failed []payload.ClientInfo
		if err := json.Unmarshal(frame, &failed); err == nil {
			s.awaitingFeedback = false
			if len(failed) > 0 {
				s.log.Warn("unreachable peers reported",
					zap.String("user", s.user.Name),
					zap.Int("count", len(failed)),
					zap.Any("peers", failed))
			}
			return nil
		}
	}
	var req payload.Room
	if err := json.Unmarshal(frame, &req); err != nil || req.Name == "" {
		s.log.Debug("ignoring unexpected frame", zap.Int("size", len(frame)))
		return nil
	}
	return s.joinRoom(req)
}

// joinRoom runs the join-or-create procedure and the success protocol:
// "OK", the canonical room record, then the member snapshot. Refusal is
// answered with a status frame and the session keeps serving.
func (s *session) joinRoom(req payload.Room) error {
	m := &Member{ID: s.user.ID, Name: s.user.Name, Addr: s.addr, Notify: s.notify}
	res, err := s.srv.rooms.Join(req, m)
	if err != nil {
		s.log.Info("join refused",
			zap.String("user", s.user.Name),
			zap.String("room", req.Name),
			zap.Error(err))
		return wire.Write(s.conn, []byte(payload.StatusJoinFailed))
	}
	s.recordRoom(res.Room.ID)

	if err := wire.Write(s.conn, []byte(payload.StatusOK)); err != nil {
		return err
	}
	echo, err := json.Marshal(res.Room)
	if err != nil {
		return err
	}
	if err := wire.Write(s.conn, echo); err != nil {
		return err
	}
	snap, err := json.Marshal(res.Snapshot)
	if err != nil {
		return err
	}
	if err := wire.Write(s.conn, snap); err != nil {
		return err
	}
	info := m.Info()
	for _, target := range res.Targets {
		select {
		case target <- info:
		default:
			s.log.Warn("notification dropped, queue full",
				zap.String("joiner", info.Name))
		}
	}
	s.awaitingFeedback = true
	if res.Created {
		s.log.Info("room created",
			zap.Uint32("id", uint32(res.Room.ID)),
			zap.String("room", res.Room.Name),
			zap.String("user", s.user.Name))
	} else {
		s.log.Info("user joined room",
			zap.String("user", s.user.Name),
			zap.String("room", res.Room.Name),
			zap.Int("members", len(res.Snapshot)+1))
	}
	return nil
}

func (s *session) recordRoom(id payload.ID) {
	for _, rid := range s.rooms {
		if rid == id {
			return
		}
	}
	s.rooms = append(s.rooms, id)
}

func (s *session) cleanup() {
	close(s.done)
	s.conn.Close()
	s.srv.unregister(s)
	if s.user.ID == 0 {
		return
	}
	s.srv.users.Remove(s.user.ID)
	for _, rid := range s.rooms {
		if s.srv.rooms.Leave(rid, s.user.ID) {
			s.log.Info("room destroyed", zap.Uint32("id", uint32(rid)))
		}
	}
	s.log.Info("user disconnected",
		zap.Uint32("id", uint32(s.user.ID)),
		zap.String("name", s.user.Name))
}
