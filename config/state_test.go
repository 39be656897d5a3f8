package config

import "testing"

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNormal:               "normal",
		StateRole:                 "role",
		StateEmptySession:         "empty-session",
		StateEmptySessionWithRole: "empty-session-with-role",
		StateSession:              "session",
		State(99):                 "unknown",
	}
	for state, expected := range cases {
		if got := state.String(); got != expected {
			t.Errorf("Expected %q, got %q", expected, got)
		}
	}
}

func TestStateCanChangeRole(t *testing.T) {
	for _, state := range []State{StateNormal, StateRole, StateEmptySession, StateEmptySessionWithRole} {
		if !state.CanChangeRole() {
			t.Errorf("Expected role changes to be legal in %s", state)
		}
	}
	if StateSession.CanChangeRole() {
		t.Error("Expected role changes to be illegal in a session with messages")
	}
}

func TestStateInSession(t *testing.T) {
	if StateNormal.InSession() || StateRole.InSession() {
		t.Error("Expected no session outside session states")
	}
	for _, state := range []State{StateEmptySession, StateEmptySessionWithRole, StateSession} {
		if !state.InSession() {
			t.Errorf("Expected %s to report an active session", state)
		}
	}
}

func TestStateInRole(t *testing.T) {
	if !StateRole.InRole() || !StateEmptySessionWithRole.InRole() {
		t.Error("Expected role states to report an active role")
	}
	if StateNormal.InRole() || StateSession.InRole() {
		t.Error("Expected no changeable role in normal or locked-session state")
	}
}
