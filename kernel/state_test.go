package kernel

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestProcessState(t *testing.T) {
	allowed := map[ProcessState][]ProcessState{
		Runnable: {Runnable, Blocked, Zombie},
		Blocked:  {Runnable, Zombie},
		Zombie:   {},
	}

	for from, tos := range allowed {
		ok := map[ProcessState]bool{}
		for _, to := range tos {
			ok[to] = true
		}

		for _, to := range []ProcessState{Runnable, Blocked, Zombie} {
			next, err := from.Transition(to)

			if ok[to] {
				require.NoError(t, err, "%s -> %s", from, to)
				require.Equal(t, to, next)
			} else {
				require.Equal(t, ErrInvalidTransition, errors.Cause(err), "%s -> %s", from, to)
				require.Equal(t, from, next)
			}
		}
	}

	require.True(t, Runnable.CanResume())
	require.False(t, Blocked.CanResume())
	require.False(t, Zombie.CanResume())
	require.Equal(t, "unknown", ProcessState(42).String())
}
