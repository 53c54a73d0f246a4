package spin

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestGuard(t *testing.T) {
	n := neko.Modern(t)

	n.It("serializes concurrent writers", func(t *testing.T) {
		counter := 0
		g := NewGuard(&counter)

		var wg sync.WaitGroup

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 1000; j++ {
					g.Do(func(c *int) error {
						*c++
						return nil
					})
				}
			}()
		}

		wg.Wait()

		require.Equal(t, 8000, counter)
	})

	n.It("releases the lock when f fails", func(t *testing.T) {
		v := 1
		g := NewGuard(&v)

		boom := errors.New("boom")

		err := g.Do(func(_ *int) error { return boom })
		require.Equal(t, boom, err)
		require.False(t, g.Locked())
	})

	n.It("releases the lock when f panics", func(t *testing.T) {
		v := 1
		g := NewGuard(&v)

		require.Panics(t, func() {
			g.Do(func(_ *int) error { panic("boom") })
		})

		require.False(t, g.Locked())
	})

	n.It("rejects unlocking an unlocked lock", func(t *testing.T) {
		var l Lock
		require.Panics(t, l.Unlock)
	})

	n.It("fails TryLock while held", func(t *testing.T) {
		var l Lock
		require.True(t, l.TryLock())
		require.False(t, l.TryLock())
		l.Unlock()
		require.True(t, l.TryLock())
	})

	n.Meow()
}
