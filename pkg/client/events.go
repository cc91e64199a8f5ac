package client

import "github.com/rendezchat/rendez/pkg/payload"

// EventKind discriminates the events delivered to the UI sink.
type EventKind int

const (
	// KindMessage is a chat line received from a peer.
	KindMessage EventKind = iota
	// KindPeerUp announces a newly established peer session.
	KindPeerUp
	// KindPeerDown announces a terminated peer session.
	KindPeerDown
	// KindControlDown announces the loss of the directory connection.
	KindControlDown
)

// Event is one item on the UI sink: many producers (peer sessions, the
// control session), one consumer (whatever renders the chat).
type Event struct {
	Kind EventKind
	Peer payload.BaseUserInfo
	Text string
}
