// Package playback schedules decoded buffers on an audio output for gapless,
// seekable, pausable playback of audio that may still be streaming in.
package playback

// State is the transport state of the scheduler.
type State int

const (
	// StateStopped is the initial state; nothing is scheduled.
	StateStopped State = iota
	// StatePlaying means a playback session is scheduled on the output.
	StatePlaying
	// StatePaused means playback was interrupted by the user.
	StatePaused
	// StateWaiting means playback ran out of buffered audio while
	// generation is still in progress.
	StateWaiting
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateWaiting:
		return "waiting-for-audio"
	default:
		return "unknown"
	}
}

// stateMachine enforces the transport transition table. It is not safe for
// concurrent use; the scheduler serializes access.
type stateMachine struct {
	current     State
	transitions map[State][]State
	onChange    func(from, to State)
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateStopped,
		transitions: map[State][]State{
			StateStopped: {StatePlaying, StateWaiting},
			StatePlaying: {StatePlaying, StatePaused, StateWaiting, StateStopped},
			StatePaused:  {StatePlaying, StateWaiting, StateStopped},
			StateWaiting: {StatePlaying, StateWaiting, StateStopped},
		},
	}
}

// transition moves to the target state if the table allows it.
func (sm *stateMachine) transition(to State) bool {
	allowed := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	from := sm.current
	sm.current = to
	if sm.onChange != nil && from != to {
		sm.onChange(from, to)
	}
	return true
}

// force sets the state without consulting the table. Used by Reset.
func (sm *stateMachine) force(to State) {
	from := sm.current
	sm.current = to
	if sm.onChange != nil && from != to {
		sm.onChange(from, to)
	}
}
