package job

// State is the logical state tag of a job record.
type State string

const (
	// StateTimer means the job waits for its due date.
	StateTimer State = "timer"
	// StateExecutable means the job may be claimed and run.
	StateExecutable State = "executable"
	// StateSuspended means the owning process instance is suspended and
	// the job is invisible to acquisition.
	StateSuspended State = "suspended"
	// StateDeadLetter means the job exhausted its retries and waits for
	// explicit reactivation.
	StateDeadLetter State = "deadletter"
)

// States lists every state in a stable order.
var States = []State{StateTimer, StateExecutable, StateSuspended, StateDeadLetter}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	switch s {
	case StateTimer, StateExecutable, StateSuspended, StateDeadLetter:
		return true
	}
	return false
}

// transitions is the complete state machine. Deletion on success is not a
// transition and is allowed from executable only.
var transitions = map[State]map[State]bool{
	StateTimer: {
		StateExecutable: true,
		StateSuspended:  true,
		StateDeadLetter: true,
	},
	StateExecutable: {
		StateTimer:      true,
		StateSuspended:  true,
		StateDeadLetter: true,
	},
	StateSuspended: {
		StateTimer:      true,
		StateExecutable: true,
	},
	StateDeadLetter: {
		StateExecutable: true,
	},
}

// CanTransition reports whether a job may move from one state to another.
func CanTransition(from, to State) bool {
	return transitions[from][to]
}

// Category partitions acquirable work. One acquisition pass never mixes
// categories.
type Category string

const (
	// CategoryTimer selects due timer jobs.
	CategoryTimer Category = "timer"
	// CategoryAsync selects executable jobs.
	CategoryAsync Category = "async"
)

// State returns the job state scanned by acquisition for this category.
func (c Category) State() State {
	if c == CategoryTimer {
		return StateTimer
	}
	return StateExecutable
}
