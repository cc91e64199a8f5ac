// Package payload defines the JSON records exchanged over rendez links:
// login and room requests on the control link, and the identity records
// published to room members so they can dial each other directly.
package payload

// ID identifies a live user or room. Zero means "not assigned yet"; the
// directory allocates real ids starting from one and recycles them when
// their owner goes away.
type ID uint32

// User is the login request. The directory fills in ID on success. The
// password check is plain string equality, a placeholder inherited from
// the wire contract.
type User struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Passwd string `json:"passwd"`
}

// BaseUserInfo names a user without credentials. It is echoed to the
// client after login and exchanged on every peer-link identity swap.
type BaseUserInfo struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// ClientInfo is the published form of a room member: identity plus the
// endpoint other members can dial. Addr is a host:port string.
type ClientInfo struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// Base strips the address off a ClientInfo.
func (ci ClientInfo) Base() BaseUserInfo {
	return BaseUserInfo{ID: ci.ID, Name: ci.Name}
}
