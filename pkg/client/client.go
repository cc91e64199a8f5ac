package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/rendezchat/rendez/pkg/config"
	"github.com/rendezchat/rendez/pkg/payload"
	"github.com/rendezchat/rendez/pkg/wire"
)

const (
	eventQueueLen    = 128
	dialControlTries = 8
	peerDrainTimeout = 5 * time.Second
)

// Credentials is one name/password pair, used both for the user login
// and for the room join.
type Credentials struct {
	Name   string
	Passwd string
}

// Authenticator supplies login and room credentials on demand. The
// directory may refuse either step; the client then asks again, so an
// interactive implementation can re-prompt. Returning an error aborts
// the connect.
type Authenticator interface {
	UserCredentials() (Credentials, error)
	RoomCredentials() (Credentials, error)
}

// Client is a chat peer: it keeps one control link to the directory and
// one direct link per room member, all bound to the same reusable local
// endpoint so that peers can reach each other by the address the
// directory observed.
type Client struct {
	cfg config.ClientConfig
	log *zap.Logger

	local   *net.TCPAddr
	control net.Conn
	self    payload.BaseUserInfo
	room    payload.Room

	input    *Broadcaster
	events   chan Event
	listener net.Listener

	peersMtx     sync.Mutex
	peers        map[payload.ID]*peerSession
	peersWG      sync.WaitGroup
	drainTimeout time.Duration

	quit   chan struct{}
	closed atomic.Bool
}

// New returns an unconnected Client.
func New(cfg config.ClientConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:          cfg,
		log:          log,
		input:        NewBroadcaster(),
		events:       make(chan Event, eventQueueLen),
		peers:        make(map[payload.ID]*peerSession),
		drainTimeout: peerDrainTimeout,
		quit:         make(chan struct{}),
	}
}

// Self returns the identity assigned by the directory. Valid after
// Connect succeeds.
func (c *Client) Self() payload.BaseUserInfo { return c.self }

// Room returns the joined room. Valid after Connect succeeds.
func (c *Client) Room() payload.Room { return c.room }

// Events returns the UI sink. Peer messages, membership changes and the
// loss of the control link all arrive here.
func (c *Client) Events() <-chan Event { return c.events }

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.quit }

// Broadcast sends one chat line to every connected peer and returns the
// number of peers it reached.
func (c *Client) Broadcast(line string) int {
	return c.input.Send(line)
}

// Connect dials the directory, logs in, joins a room and establishes a
// direct link to every member already present. It returns once the mesh
// is up and the control link is being serviced in the background.
func (c *Client) Connect(auth Authenticator) error {
	if err := c.dialControl(); err != nil {
		return err
	}
	if err := c.login(auth); err != nil {
		c.control.Close()
		return err
	}
	if err := c.joinRoom(auth); err != nil {
		c.control.Close()
		return err
	}
	snapshot, err := c.readSnapshot()
	if err != nil {
		c.control.Close()
		return err
	}
	if c.cfg.Listen {
		if err := c.startListener(); err != nil {
			c.control.Close()
			return err
		}
	}
	c.massConnect(snapshot)
	go c.controlLoop()
	return nil
}

// dialControl connects to the directory from a random local port inside
// the configured range. The port doubles as the client's rendezvous
// endpoint, so bind collisions with other local clients are expected
// and simply retried on another port.
func (c *Client) dialControl() error {
	min, max := c.cfg.PortRange()
	var lastErr error
	for i := 0; i < dialControlTries; i++ {
		port := min + rand.Intn(max-min)
		d := net.Dialer{
			LocalAddr: &net.TCPAddr{Port: port},
			Timeout:   c.cfg.DialTimeoutDuration(),
			Control:   reuseControl,
		}
		conn, err := d.Dial("tcp", c.cfg.ServerAddress)
		if err != nil {
			lastErr = err
			continue
		}
		c.control = conn
		c.local = conn.LocalAddr().(*net.TCPAddr)
		c.log.Info("directory connected",
			zap.String("server", c.cfg.ServerAddress),
			zap.String("local", c.local.String()))
		return nil
	}
	return fmt.Errorf("dial directory: %w", lastErr)
}

func (c *Client) login(auth Authenticator) error {
	for {
		creds, err := auth.UserCredentials()
		if err != nil {
			return err
		}
		data, err := json.Marshal(payload.User{Name: creds.Name, Passwd: creds.Passwd})
		if err != nil {
			return err
		}
		if err := wire.Write(c.control, data); err != nil {
			return err
		}
		status, err := wire.Read(c.control)
		if err != nil {
			return err
		}
		if !payload.IsOK(status) {
			c.log.Warn("login refused", zap.String("status", string(status)))
			continue
		}
		frame, err := wire.Read(c.control)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(frame, &c.self); err != nil {
			return fmt.Errorf("decode assigned identity: %w", err)
		}
		c.log.Info("logged in",
			zap.Uint32("id", uint32(c.self.ID)),
			zap.String("name", c.self.Name))
		return nil
	}
}

func (c *Client) joinRoom(auth Authenticator) error {
	for {
		creds, err := auth.RoomCredentials()
		if err != nil {
			return err
		}
		data, err := json.Marshal(payload.Room{Name: creds.Name, Passwd: creds.Passwd})
		if err != nil {
			return err
		}
		if err := wire.Write(c.control, data); err != nil {
			return err
		}
		status, err := wire.Read(c.control)
		if err != nil {
			return err
		}
		if !payload.IsOK(status) {
			c.log.Warn("join refused", zap.String("status", string(status)))
			continue
		}
		frame, err := wire.Read(c.control)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(frame, &c.room); err != nil {
			return fmt.Errorf("decode room: %w", err)
		}
		c.log.Info("room joined",
			zap.Uint32("room", uint32(c.room.ID)),
			zap.String("name", c.room.Name))
		return nil
	}
}

func (c *Client) readSnapshot() ([]payload.ClientInfo, error) {
	frame, err := wire.Read(c.control)
	if err != nil {
		return nil, err
	}
	var members []payload.ClientInfo
	if err := json.Unmarshal(frame, &members); err != nil {
		return nil, fmt.Errorf("decode member snapshot: %w", err)
	}
	return members, nil
}

func (c *Client) startListener() error {
	lc := net.ListenConfig{Control: reuseControl}
	ln, err := lc.Listen(context.Background(), "tcp", c.local.String())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.local, err)
	}
	c.listener = ln
	go c.acceptLoop()
	return nil
}

func (c *Client) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.log.Error("accept failed", zap.Error(err))
			}
			return
		}
		go func() {
			remote, err := c.handshake(conn, conn.RemoteAddr().String())
			if err != nil {
				c.log.Warn("inbound peer handshake failed",
					zap.Stringer("addr", conn.RemoteAddr()),
					zap.Error(err))
				conn.Close()
				return
			}
			c.startPeer(conn, remote, true)
		}()
	}
}

// massConnect dials every member of the snapshot in parallel, then
// reports the members it could not reach back to the directory. The
// report is sent even when empty so the directory always gets exactly
// one feedback frame per join.
func (c *Client) massConnect(members []payload.ClientInfo) {
	failed := make([]payload.ClientInfo, 0, len(members))
	var (
		wg  sync.WaitGroup
		mtx sync.Mutex
	)
	for _, m := range members {
		wg.Add(1)
		go func(m payload.ClientInfo) {
			defer wg.Done()
			if err := c.connectPeer(m); err != nil {
				c.log.Warn("peer unreachable",
					zap.String("peer", m.Name),
					zap.String("addr", m.Addr),
					zap.Error(err))
				mtx.Lock()
				failed = append(failed, m)
				mtx.Unlock()
			}
		}(m)
	}
	wg.Wait()

	data, err := json.Marshal(failed)
	if err == nil {
		err = wire.Write(c.control, data)
	}
	if err != nil {
		c.log.Error("unable to report unreachable peers", zap.Error(err))
	}
}

// connectPeer dials one room member from the shared local endpoint and
// verifies that whoever answered announces the identity the directory
// told us to expect.
func (c *Client) connectPeer(m payload.ClientInfo) error {
	c.peersMtx.Lock()
	_, known := c.peers[m.ID]
	c.peersMtx.Unlock()
	if known || m.ID == c.self.ID {
		return nil
	}
	d := net.Dialer{
		LocalAddr: c.local,
		Timeout:   c.cfg.DialTimeoutDuration(),
		Control:   reuseControl,
	}
	conn, err := d.Dial("tcp", m.Addr)
	if err != nil {
		return err
	}
	remote, err := c.handshake(conn, m.Addr)
	if err != nil {
		conn.Close()
		return err
	}
	if remote.ID != m.ID || remote.Name != m.Name {
		conn.Close()
		return fmt.Errorf("peer at %s announced %q (id %d), expected %q (id %d)",
			m.Addr, remote.Name, remote.ID, m.Name, m.ID)
	}
	c.startPeer(conn, remote, false)
	return nil
}

// controlLoop services the directory link after the join: it answers
// membership pushes by dialing the new peer, keeps the link warm and
// reports the link's death to the UI.
func (c *Client) controlLoop() {
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		var rd wire.Reader
		for {
			ok, err := rd.Poll(c.control)
			if err != nil {
				select {
				case readErr <- err:
				case <-done:
				}
				return
			}
			if !ok {
				continue
			}
			select {
			case frames <- rd.Take():
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(c.cfg.ControlKeepAliveDuration())
	defer ticker.Stop()

	for {
		select {
		case frame := <-frames:
			if len(frame) == 0 {
				continue // directory heartbeat
			}
			var m payload.ClientInfo
			if err := json.Unmarshal(frame, &m); err != nil {
				c.log.Warn("garbage on control link", zap.Error(err))
				continue
			}
			if err := c.connectPeer(m); err != nil {
				c.log.Warn("unable to reach announced peer",
					zap.String("peer", m.Name),
					zap.String("addr", m.Addr),
					zap.Error(err))
			}
		case <-ticker.C:
			if err := wire.WriteHeartbeat(c.control); err != nil {
				c.log.Error("control heartbeat failed", zap.Error(err))
				c.emit(Event{Kind: KindControlDown})
				return
			}
		case err := <-readErr:
			if !errors.Is(err, wire.ErrClosed) && !errors.Is(err, net.ErrClosed) {
				c.log.Error("control link failed", zap.Error(err))
			}
			c.emit(Event{Kind: KindControlDown})
			return
		case <-c.quit:
			return
		}
	}
}

// emit delivers ev to the UI sink, giving up only on shutdown.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// Close tears the client down: the control link, the optional listener
// and every peer session. Safe to call more than once.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.quit)
	if c.listener != nil {
		c.listener.Close()
	}
	if c.control != nil {
		c.control.Close()
	}
	c.input.Close()

	finished := make(chan struct{})
	go func() {
		c.peersWG.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(c.drainTimeout):
		// a session stuck in a socket write never sees the quit signal;
		// closing its socket does
		c.log.Warn("peer sessions did not drain in time, closing their sockets")
		c.peersMtx.Lock()
		for _, ps := range c.peers {
			ps.conn.Close()
		}
		c.peersMtx.Unlock()
		<-finished
	}
}
