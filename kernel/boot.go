package kernel

import (
	"context"

	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/fs/devfs"
	"github.com/evanphx/penguin/memory"
	"github.com/pkg/errors"
)

// MaxRAMAreas bounds the RAM areas a boot loader may describe.
const MaxRAMAreas = 8

type RAMArea = memory.Area

// BootInfo is what the boot loader hands over about the machine.
type BootInfo struct {
	RAMAreas []RAMArea
}

var ErrTooManyRAMAreas = errors.New("too many RAM areas")

// Start brings the kernel up to the point where pid 1 is selected to run.
// A failure of any step is fatal and panics with *FatalError.
func Start(ctx context.Context, info BootInfo, cfg Config) (*Kernel, *Process) {
	if len(info.RAMAreas) > MaxRAMAreas {
		halt("boot info", errors.Wrapf(ErrTooManyRAMAreas, "%d areas", len(info.RAMAreas)))
	}

	pages, err := memory.NewPageAllocator(info.RAMAreas)
	if err != nil {
		halt("page allocator", err)
	}

	if cfg.Initramfs == nil {
		halt("initramfs", errors.New("no initramfs configured"))
	}

	k := NewKernel(cfg, pages)

	total, _ := pages.Stats()
	k.L.Info("booting", "pages", total, "init", cfg.initPath())

	root, err := fs.NewRootFs(cfg.Initramfs, cfg.FS)
	if err != nil {
		halt("root filesystem", err)
	}

	dev, err := root.LookupDir(ctx, "/dev")
	if err != nil {
		halt("lookup /dev", err)
	}

	if err := root.Mount(dev, devfs.New(cfg.Console)); err != nil {
		halt("mount devfs", err)
	}

	console, err := root.LookupPath(ctx, "/dev/console")
	if err != nil {
		halt("open console", err)
	}

	exe, err := root.LookupFile(ctx, cfg.initPath())
	if err != nil {
		halt("open init", err)
	}

	k.PublishRootFs(root)

	proc, err := k.processes.NewInitProcess(ctx, exe, console, cfg.initArgs())
	if err != nil {
		halt("create init", err)
	}

	if _, err := k.sched.Switch(Runnable); err != nil {
		halt("switch to init", err)
	}

	return k, proc
}

// Boot starts the kernel and then idles until ctx ends.
func Boot(ctx context.Context, info BootInfo, cfg Config) *Kernel {
	k, _ := Start(ctx, info, cfg)
	k.Idle(ctx)
	return k
}
