package outreach

import (
	"errors"
	"fmt"
)

// State is the position of one profile in the outreach state machine.
type State int

const (
	Pending State = iota
	Navigating
	ComposerFound
	ComposerNotFound
	Sent
	Excluded
)

var stateNames = [...]string{
	Pending:          "pending",
	Navigating:       "navigating",
	ComposerFound:    "composer_found",
	ComposerNotFound: "composer_not_found",
	Sent:             "sent",
	Excluded:         "excluded",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s ends processing of a profile.
func (s State) Terminal() bool { return s == Sent || s == Excluded }

var (
	// ErrNotFound means a page element did not appear within its wait.
	// It drives a state transition, never a retry.
	ErrNotFound = errors.New("outreach: element not found")

	// ErrSessionLost means the browser session is no longer authenticated.
	// The run aborts and the in-flight profile is left unrecorded.
	ErrSessionLost = errors.New("outreach: session lost")
)
