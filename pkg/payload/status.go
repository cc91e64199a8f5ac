package payload

import "strings"

// Status strings sent by the directory on the control link. Clients match
// them by substring, case-insensitively: "OK" anywhere in the payload
// means success. That loose match is a wire contract, not an accident;
// keep it unless both sides change together.
const (
	StatusOK          = "OK"
	StatusLoginFailed = "Fail to login user"
	StatusUserExists  = "User already exists"
	StatusJoinFailed  = "Fail to join room"
)

// IsOK reports whether a control frame signals success.
func IsOK(frame []byte) bool {
	return strings.Contains(strings.ToUpper(string(frame)), StatusOK)
}
