package payload

// Room is the join-or-create request and its echo. A zero ID asks the
// directory to resolve the room by name, creating it if unknown; a
// nonzero ID targets an existing room directly. Name and Passwd must both
// match the stored room for a join to succeed.
type Room struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Passwd string `json:"passwd"`
}
