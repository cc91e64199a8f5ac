package directory

import (
	"errors"
	"sort"
	"sync"

	"github.com/rendezchat/rendez/pkg/payload"
)

var (
	// ErrUserExists means the login name is already taken by a live user.
	ErrUserExists = errors.New("user already exists")
	// ErrRoomMismatch means the join request's name or password did not
	// match the stored room.
	ErrRoomMismatch = errors.New("room name or password mismatch")
)

// Member is the directory's view of a user occupying a room: identity,
// the endpoint published to other members, and the queue used to push
// join notifications to the owning session. Members hold the session's
// notify channel only, never the session itself; sessions in turn record
// room ids, not rooms, so no reference cycle forms.
type Member struct {
	ID     payload.ID
	Name   string
	Addr   string
	Notify chan<- payload.ClientInfo
}

// Info returns the published form of the member.
func (m *Member) Info() payload.ClientInfo {
	return payload.ClientInfo{ID: m.ID, Name: m.Name, Addr: m.Addr}
}

// allocID hands out the next free id: recycled ids first, then an upward
// scan starting at the current map size. Zero stays reserved for "not
// assigned".
func allocID(free *[]payload.ID, taken func(payload.ID) bool, size int) payload.ID {
	if n := len(*free); n > 0 {
		id := (*free)[n-1]
		*free = (*free)[:n-1]
		return id
	}
	id := payload.ID(size)
	for id == 0 || taken(id) {
		id++
	}
	return id
}

// UserRegistry tracks live users in two consistent maps, by id and by
// name. Ids of departed users go to a free list and are handed out again
// first.
type UserRegistry struct {
	mtx    sync.Mutex
	byID   map[payload.ID]payload.User
	byName map[string]payload.ID
	free   []payload.ID
}

// NewUserRegistry returns an empty user registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{
		byID:   make(map[payload.ID]payload.User),
		byName: make(map[string]payload.ID),
	}
}

// Add assigns an id and registers the user. The name must be unique
// among live users.
func (r *UserRegistry) Add(u *payload.User) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.byName[u.Name]; ok {
		return ErrUserExists
	}
	u.ID = allocID(&r.free, func(id payload.ID) bool {
		_, ok := r.byID[id]
		return ok
	}, len(r.byID))
	r.byID[u.ID] = *u
	r.byName[u.Name] = u.ID
	updateUsersMetric(len(r.byID))
	return nil
}

// Remove unregisters the user and recycles its id. Unknown ids are
// ignored.
func (r *UserRegistry) Remove(id payload.ID) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byName, u.Name)
	r.free = append(r.free, id)
	updateUsersMetric(len(r.byID))
}

// Len returns the number of live users.
func (r *UserRegistry) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.byID)
}

// Snapshot returns the live users ordered by id, for the admin console
// and tests.
func (r *UserRegistry) Snapshot() []payload.User {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	users := make([]payload.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

type room struct {
	id      payload.ID
	name    string
	passwd  string
	members map[payload.ID]*Member
}

// RoomRegistry tracks live rooms in two consistent maps, by id and by
// name, with the same id recycling scheme as users. A room exists only
// while it has members.
type RoomRegistry struct {
	mtx    sync.Mutex
	byID   map[payload.ID]*room
	byName map[string]payload.ID
	free   []payload.ID
}

// NewRoomRegistry returns an empty room registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		byID:   make(map[payload.ID]*room),
		byName: make(map[string]payload.ID),
	}
}

// JoinResult carries everything a session must act on after a join or
// create: the echoed room record, the member snapshot taken before the
// joiner was inserted, and the notify queues of those members.
type JoinResult struct {
	Room     payload.Room
	Snapshot []payload.ClientInfo
	Targets  []chan<- payload.ClientInfo
	Created  bool
}

// Join resolves the request and inserts m as a member: a nonzero id
// targets an existing room, otherwise the name is looked up, otherwise a
// room is created with m as sole occupant. Joining an existing room
// requires name and password to match exactly.
//
// Snapshot contents and member insertion are decided under one lock
// acquisition, so the snapshot sent to the joiner and the notifications
// sent to everyone else describe a consistent mesh. The caller performs
// all writes after this returns.
func (r *RoomRegistry) Join(req payload.Room, m *Member) (JoinResult, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var rm *room
	if req.ID != 0 {
		rm = r.byID[req.ID]
	}
	if rm == nil {
		if id, ok := r.byName[req.Name]; ok {
			rm = r.byID[id]
			req.ID = id
		}
	}
	if rm == nil {
		id := allocID(&r.free, func(id payload.ID) bool {
			_, ok := r.byID[id]
			return ok
		}, len(r.byID))
		rm = &room{
			id:      id,
			name:    req.Name,
			passwd:  req.Passwd,
			members: map[payload.ID]*Member{m.ID: m},
		}
		r.byID[id] = rm
		r.byName[req.Name] = id
		updateRoomsMetric(len(r.byID))
		return JoinResult{
			Room:     payload.Room{ID: id, Name: req.Name, Passwd: req.Passwd},
			Snapshot: []payload.ClientInfo{},
			Created:  true,
		}, nil
	}

	if rm.name != req.Name || rm.passwd != req.Passwd {
		return JoinResult{}, ErrRoomMismatch
	}
	res := JoinResult{
		Room:     payload.Room{ID: rm.id, Name: rm.name, Passwd: rm.passwd},
		Snapshot: make([]payload.ClientInfo, 0, len(rm.members)),
		Targets:  make([]chan<- payload.ClientInfo, 0, len(rm.members)),
	}
	for _, mem := range rm.members {
		if mem.ID == m.ID {
			continue
		}
		res.Snapshot = append(res.Snapshot, mem.Info())
		res.Targets = append(res.Targets, mem.Notify)
	}
	rm.members[m.ID] = m
	return res, nil
}

// Leave removes the user from the room, destroying the room when its
// last member departs. It reports whether the room was destroyed.
func (r *RoomRegistry) Leave(roomID, userID payload.ID) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	rm, ok := r.byID[roomID]
	if !ok {
		return false
	}
	delete(rm.members, userID)
	if len(rm.members) > 0 {
		return false
	}
	delete(r.byID, roomID)
	delete(r.byName, rm.name)
	r.free = append(r.free, roomID)
	updateRoomsMetric(len(r.byID))
	return true
}

// Len returns the number of live rooms.
func (r *RoomRegistry) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.byID)
}

// RoomInfo is the console view of a room.
type RoomInfo struct {
	ID      payload.ID
	Name    string
	Members []payload.ClientInfo
}

// Snapshot returns the live rooms ordered by id, members ordered by id.
func (r *RoomRegistry) Snapshot() []RoomInfo {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	rooms := make([]RoomInfo, 0, len(r.byID))
	for _, rm := range r.byID {
		info := RoomInfo{ID: rm.id, Name: rm.name}
		for _, mem := range rm.members {
			info.Members = append(info.Members, mem.Info())
		}
		sort.Slice(info.Members, func(i, j int) bool { return info.Members[i].ID < info.Members[j].ID })
		rooms = append(rooms, info)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}
