package kernel

import (
	"github.com/evanphx/penguin/arch"
	"github.com/evanphx/penguin/log"
	"github.com/evanphx/penguin/pkg/spin"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

type runQueue struct {
	queue   []*Process
	current *Process
}

// Scheduler picks the process that runs. Switching is cooperative: a
// process runs until it calls Switch itself.
type Scheduler struct {
	L    hclog.Logger
	arch arch.Arch
	rq   *spin.Guard[runQueue]

	// idle is the context of the idle path, resumed when nothing is
	// runnable.
	idle arch.Context
}

func NewScheduler(a arch.Arch) *Scheduler {
	return &Scheduler{
		L:    log.Named("sched"),
		arch: a,
		rq:   spin.NewGuard(&runQueue{}),
	}
}

// Current returns the running process, or nil while idle.
func (s *Scheduler) Current() *Process {
	var cur *Process

	s.rq.Do(func(rq *runQueue) error {
		cur = rq.current
		return nil
	})

	return cur
}

// Runnable is the number of processes waiting for the CPU.
func (s *Scheduler) Runnable() int {
	var n int

	s.rq.Do(func(rq *runQueue) error {
		n = len(rq.queue)
		return nil
	})

	return n
}

// Enqueue makes a Runnable process eligible for selection.
func (s *Scheduler) Enqueue(p *Process) error {
	if st := p.State(); !st.CanResume() {
		return errors.Wrapf(ErrInvalidTransition, "enqueue of %s process %d", st, p.Pid)
	}

	return s.rq.Do(func(rq *runQueue) error {
		rq.queue = append(rq.queue, p)
		return nil
	})
}

// pop removes the first resumable process from the queue. Entries that
// stopped being Runnable while queued are dropped.
func (rq *runQueue) pop() *Process {
	for len(rq.queue) > 0 {
		p := rq.queue[0]
		rq.queue[0] = nil
		rq.queue = rq.queue[1:]

		if p.State().CanResume() {
			return p
		}
	}

	return nil
}

func (rq *runQueue) remove(p *Process) {
	for i, q := range rq.queue {
		if q == p {
			rq.queue = append(rq.queue[:i], rq.queue[i+1:]...)
			return
		}
	}
}

// Switch records state as the outgoing state of the running process, picks
// the next runnable process and switches to it. It returns the process now
// running, or nil when the CPU went idle.
func (s *Scheduler) Switch(state ProcessState) (*Process, error) {
	var next *Process

	err := s.rq.Do(func(rq *runQueue) error {
		prev := rq.current

		if prev != nil {
			if err := prev.setState(state); err != nil {
				return err
			}

			if state == Runnable {
				rq.queue = append(rq.queue, prev)
			}
		}

		next = rq.pop()
		rq.current = next

		from := &s.idle
		if prev != nil {
			from = &prev.Context
		}

		to := &s.idle
		if next != nil {
			to = &next.Context
		}

		if prev != nil || next != nil {
			s.L.Trace("switch", "from", pidOf(prev), "to", pidOf(next), "state", state.String())
		}

		if from != to {
			s.arch.SwitchContext(from, to)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return next, nil
}

func pidOf(p *Process) int {
	if p == nil {
		return 0
	}

	return p.Pid
}

// Wake moves a Blocked process back to the run queue.
func (s *Scheduler) Wake(p *Process) error {
	err := s.rq.Do(func(rq *runQueue) error {
		if st := p.State(); st != Blocked {
			return errors.Wrapf(ErrInvalidTransition, "wake of %s process %d", st, p.Pid)
		}

		if err := p.setState(Runnable); err != nil {
			return err
		}

		rq.queue = append(rq.queue, p)
		return nil
	})

	if err != nil {
		return err
	}

	if h, ok := s.arch.(interface{ Interrupt() }); ok {
		h.Interrupt()
	}

	return nil
}

// retire takes p off the CPU and out of the queue after it became a Zombie
// without being the one to call Switch.
func (s *Scheduler) retire(p *Process) {
	s.rq.Do(func(rq *runQueue) error {
		rq.remove(p)

		if rq.current == p {
			rq.current = nil
			s.arch.SwitchContext(&p.Context, &s.idle)
		}

		return nil
	})
}
