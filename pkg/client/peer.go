package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/rendezchat/rendez/pkg/payload"
	"github.com/rendezchat/rendez/pkg/wire"
)

// handshake runs the identity swap on a fresh peer link: write our
// BaseUserInfo, read theirs, and attach the address we already know the
// peer by. Both directions of a link run the same exchange; the identity
// received is accepted trustingly.
func (c *Client) handshake(conn net.Conn, addr string) (payload.ClientInfo, error) {
	self, err := json.Marshal(c.self)
	if err != nil {
		return payload.ClientInfo{}, err
	}
	if err := wire.Write(conn, self); err != nil {
		return payload.ClientInfo{}, fmt.Errorf("send identity: %w", err)
	}
	frame, err := wire.Read(conn)
	if err != nil {
		return payload.ClientInfo{}, fmt.Errorf("read identity: %w", err)
	}
	var base payload.BaseUserInfo
	if err := json.Unmarshal(frame, &base); err != nil {
		return payload.ClientInfo{}, fmt.Errorf("decode identity: %w", err)
	}
	return payload.ClientInfo{ID: base.ID, Name: base.Name, Addr: addr}, nil
}

// peerSession is one live peer link. It is the only goroutine writing to
// its socket: inbound frames become UI events, lines from the local
// input broadcast become outbound frames, and a timer keeps the link
// warm.
type peerSession struct {
	owner  *Client
	conn   net.Conn
	remote payload.ClientInfo
	log    *zap.Logger

	lines       <-chan string
	cancelLines func()
	// superseded is set under owner.peersMtx when a simultaneous-dial
	// duplicate replaces this session. The replacement keeps the peer,
	// so the exit path must not announce a departure.
	superseded bool
}

// startPeer registers and launches a session for an established,
// handshaken connection. Simultaneous dials in both directions can race
// a pair of links to the same peer; each side would see a duplicate and
// without a tie-break could close the socket the other side kept,
// killing both. Both sides therefore keep the socket dialed by the peer
// with the lower user id: the duplicate is dropped when it is not that
// socket, and replaces the registered session when it is.
func (c *Client) startPeer(conn net.Conn, remote payload.ClientInfo, inbound bool) bool {
	ps := &peerSession{
		owner:  c,
		conn:   conn,
		remote: remote,
		log: c.log.With(
			zap.String("peer", remote.Name),
			zap.String("addr", remote.Addr)),
	}
	// conn is canonical when its initiator holds the lower user id
	keep := inbound && remote.ID < c.self.ID || !inbound && c.self.ID < remote.ID

	c.peersMtx.Lock()
	old, dup := c.peers[remote.ID]
	if dup && !keep {
		c.peersMtx.Unlock()
		conn.Close()
		ps.log.Debug("duplicate peer link dropped")
		return false
	}
	if dup {
		old.superseded = true
	}
	c.peers[remote.ID] = ps
	c.peersMtx.Unlock()
	if dup {
		old.conn.Close()
		ps.log.Debug("duplicate peer link replaced")
	}

	// subscribe before announcing the peer, so a broadcast issued right
	// after the event cannot miss it
	ps.lines, ps.cancelLines = c.input.Subscribe()
	c.peersWG.Add(1)
	go ps.run()
	if !dup {
		c.emit(Event{Kind: KindPeerUp, Peer: remote.Base()})
	}
	return true
}

// removePeer drops the session's registration, leaving the slot alone
// when a replacement already took it. It reports whether the peer's
// departure should be announced.
func (c *Client) removePeer(ps *peerSession) bool {
	c.peersMtx.Lock()
	defer c.peersMtx.Unlock()
	if c.peers[ps.remote.ID] == ps {
		delete(c.peers, ps.remote.ID)
	}
	return !ps.superseded
}

func (ps *peerSession) run() {
	defer ps.owner.peersWG.Done()
	defer ps.conn.Close()

	defer ps.cancelLines()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		var rd wire.Reader
		for {
			ok, err := rd.Poll(ps.conn)
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

	ticker := time.NewTicker(ps.owner.cfg.PeerKeepAliveDuration())
	defer ticker.Stop()

	var reason error
loop:
	for {
		select {
		case frame := <-frames:
			if len(frame) == 0 {
				continue // peer heartbeat
			}
			ps.owner.emit(Event{
				Kind: KindMessage,
				Peer: ps.remote.Base(),
				Text: string(frame),
			})
		case line, ok := <-ps.lines:
			if !ok {
				break loop // input source closed, we are shutting down
			}
			if err := wire.Write(ps.conn, []byte(line)); err != nil {
				reason = err
				break loop
			}
		case <-ticker.C:
			if err := wire.WriteHeartbeat(ps.conn); err != nil {
				reason = err
				break loop
			}
		case err := <-readErr:
			if !errors.Is(err, wire.ErrClosed) {
				reason = err
			}
			break loop
		case <-ps.owner.quit:
			break loop
		}
	}
	if reason != nil {
		ps.log.Debug("peer session ended", zap.Error(reason))
	}
	if ps.owner.removePeer(ps) {
		ps.owner.emit(Event{Kind: KindPeerDown, Peer: ps.remote.Base()})
	}
}
