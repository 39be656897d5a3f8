package config

// State is the combined role/session operating state. The five states form a
// closed set; transition checks live on the Config mutators so illegal
// combinations are rejected in one place.
type State int

const (
	// StateNormal: no role, no session.
	StateNormal State = iota
	// StateRole: a role is active, no session.
	StateRole
	// StateEmptySession: a session exists but has no messages yet.
	StateEmptySession
	// StateEmptySessionWithRole: an empty session plus an active role.
	StateEmptySessionWithRole
	// StateSession: a session with at least one exchange. The role, if one
	// was set, is already baked into the stored history.
	StateSession
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateRole:
		return "role"
	case StateEmptySession:
		return "empty-session"
	case StateEmptySessionWithRole:
		return "empty-session-with-role"
	case StateSession:
		return "session"
	default:
		return "unknown"
	}
}

// InSession reports whether any session is active.
func (s State) InSession() bool {
	switch s {
	case StateEmptySession, StateEmptySessionWithRole, StateSession:
		return true
	}
	return false
}

// InRole reports whether a role is active and still changeable.
func (s State) InRole() bool {
	return s == StateRole || s == StateEmptySessionWithRole
}

// CanChangeRole reports whether setting or clearing a role is legal. Once a
// session has messages the original role's effect lives in the stored first
// message, so changing it would contradict the history.
func (s State) CanChangeRole() bool {
	return s != StateSession
}
