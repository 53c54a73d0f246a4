package kernel

import (
	"context"
	"io"

	"github.com/evanphx/penguin/arch"
	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/loader"
	"github.com/evanphx/penguin/log"
	"github.com/evanphx/penguin/memory"
	"github.com/evanphx/penguin/pkg/once"
	"github.com/evanphx/penguin/pkg/spin"
	hclog "github.com/hashicorp/go-hclog"
)

const (
	DefaultInitPath = "/bin/sh"

	DefaultLoaderCacheSize = 16
)

// SharedRootFs is the root filesystem every process resolves paths in.
type SharedRootFs = *spin.Guard[fs.RootFs]

type Config struct {
	// InitPath is the executable run as pid 1. Defaults to DefaultInitPath.
	InitPath string

	// InitArgs is the argv of pid 1. Defaults to just InitPath.
	InitArgs []string

	// Console backs /dev/console.
	Console io.ReadWriter

	// Initramfs is the root filesystem backend.
	Initramfs fs.Filesystem

	Arch arch.Arch

	FS fs.Options

	LoaderCacheSize int
}

func (c *Config) initPath() string {
	if c.InitPath == "" {
		return DefaultInitPath
	}

	return c.InitPath
}

func (c *Config) initArgs() []string {
	if len(c.InitArgs) == 0 {
		return []string{c.initPath()}
	}

	return c.InitArgs
}

type Kernel struct {
	L hclog.Logger

	cfg    Config
	arch   arch.Arch
	pages  *memory.PageAllocator
	loader *loader.Loader
	rootFs *once.Value[SharedRootFs]

	processes *ProcessManager
	sched     *Scheduler
}

func NewKernel(cfg Config, pages *memory.PageAllocator) *Kernel {
	if cfg.Arch == nil {
		cfg.Arch = arch.NewHost()
	}

	size := cfg.LoaderCacheSize
	if size <= 0 {
		size = DefaultLoaderCacheSize
	}

	k := &Kernel{
		L:      log.Named("kernel"),
		cfg:    cfg,
		arch:   cfg.Arch,
		pages:  pages,
		loader: loader.NewLoader(loader.NewLoaderCache(size)),
		rootFs: &once.Value[SharedRootFs]{},
	}

	k.sched = NewScheduler(k.arch)
	k.processes = NewProcessManager(k.rootFs, pages, k.loader, k.sched)

	return k
}

// PublishRootFs makes r the root filesystem of every process. It can only
// happen once.
func (k *Kernel) PublishRootFs(r *fs.RootFs) SharedRootFs {
	guard := spin.NewGuard(r)
	k.rootFs.Init(func() SharedRootFs { return guard })
	return guard
}

// RootFs returns the published root filesystem, or false before
// PublishRootFs.
func (k *Kernel) RootFs() (SharedRootFs, bool) {
	return k.rootFs.TryGet()
}

func (k *Kernel) Processes() *ProcessManager {
	return k.processes
}

func (k *Kernel) Scheduler() *Scheduler {
	return k.sched
}

func (k *Kernel) Pages() *memory.PageAllocator {
	return k.pages
}

// Current is the process the scheduler has selected, or nil when idle.
func (k *Kernel) Current() *Process {
	return k.sched.Current()
}

// Switch gives up the CPU, leaving the current process in state.
func (k *Kernel) Switch(state ProcessState) (*Process, error) {
	return k.sched.Switch(state)
}

// Wake makes a blocked process runnable and interrupts an idle CPU.
func (k *Kernel) Wake(p *Process) error {
	return k.sched.Wake(p)
}

// Idle waits for interrupts and switches to any process they made runnable
// until ctx ends.
func (k *Kernel) Idle(ctx context.Context) {
	for ctx.Err() == nil {
		if k.sched.Current() == nil && k.sched.Runnable() > 0 {
			next, err := k.sched.Switch(Runnable)
			if err != nil {
				k.L.Error("error switching from idle", "error", err)
			} else if next != nil {
				k.L.Trace("idle-switch", "pid", next.Pid)
				continue
			}
		}

		k.arch.Idle(ctx)
	}
}
