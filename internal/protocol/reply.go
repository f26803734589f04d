package protocol

// Reply status codes. Every handler sends exactly one Reply per action.
const (
	StatusOK      uint32 = 0
	StatusFailure uint32 = 1
)

// UserEntry is the wire shape of one directory projection: username and
// phone number only. Password material never appears in any reply type.
type UserEntry struct {
	Username    string
	PhoneNumber string
}

// Reply is the single response message sent for every dispatched action.
//
// On failure, Message carries only a short fixed human-readable string;
// internal error chains never cross the wire. Users is populated only by
// the user-listing action.
type Reply struct {
	Status  uint32
	Message string
	Users   []UserEntry
}

// OK builds a success reply with no payload.
func OK() Reply {
	return Reply{Status: StatusOK}
}

// OKUsers builds a success reply carrying a directory listing.
func OKUsers(users []UserEntry) Reply {
	return Reply{Status: StatusOK, Users: users}
}

// Failure builds a failure reply with the given fixed message.
func Failure(message string) Reply {
	return Reply{Status: StatusFailure, Message: message}
}

// IsOK reports whether the reply indicates success.
func (r Reply) IsOK() bool {
	return r.Status == StatusOK
}
