package kernel

import "github.com/pkg/errors"

// ProcessState is the scheduling state of a process. The process the
// scheduler has selected is running; it is still Runnable.
type ProcessState int

const (
	// Runnable processes are eligible to run.
	Runnable ProcessState = iota

	// Blocked processes wait for an event and are skipped by the scheduler.
	Blocked

	// Zombie processes have exited and wait to be reaped. Terminal.
	Zombie
)

func (s ProcessState) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Blocked:
		return "blocked"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// Transition returns the state reached by moving from s to to, or
// ErrInvalidTransition.
func (s ProcessState) Transition(to ProcessState) (ProcessState, error) {
	ok := false

	switch s {
	case Runnable:
		ok = to == Runnable || to == Blocked || to == Zombie
	case Blocked:
		ok = to == Runnable || to == Zombie
	case Zombie:
		ok = false
	}

	if !ok {
		return s, errors.Wrapf(ErrInvalidTransition, "%s -> %s", s, to)
	}

	return to, nil
}

// CanResume reports whether a process in state s may be switched to.
func (s ProcessState) CanResume() bool {
	return s == Runnable
}
