package kernel

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"

	"github.com/evanphx/penguin/arch"
	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/loader"
	"github.com/evanphx/penguin/log"
	"github.com/evanphx/penguin/memory"
	"github.com/evanphx/penguin/pkg/once"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// MaxCString bounds strings copied in from user memory.
const MaxCString = 4096

type prockey struct{}

func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, prockey{}, t)
}

// Task is the process a system call runs on behalf of.
type Task struct {
	*Process
}

type Process struct {
	Pid int
	L   hclog.Logger

	mu       sync.Mutex
	state    ProcessState
	exitCode int

	Files   *FDTable
	Root    SharedRootFs
	Mem     *memory.VirtualMemory
	Context arch.Context
	Args    []string

	pm *ProcessManager
}

func (p *Process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Process) setState(to ProcessState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := p.state.Transition(to)
	if err != nil {
		return errors.Wrapf(err, "pid %d", p.Pid)
	}

	p.state = next
	return nil
}

// ExitCode is valid once the process is a Zombie.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitCode
}

func (p *Process) ReadAt(b []byte, off int64) (int, error) {
	return p.Mem.ReadAt(b, off)
}

func (p *Process) WriteAt(b []byte, off int64) (int, error) {
	return p.Mem.WriteAt(b, off)
}

// ReadCString copies a NUL terminated string out of user memory.
func (p *Process) ReadCString(addr uint64) (string, error) {
	var (
		buf bytes.Buffer
		t   [1]byte
	)

	off := int64(addr)

	for {
		if buf.Len() >= MaxCString {
			return "", errors.Wrapf(ErrArgumentsTooLarge, "string at %#x", addr)
		}

		if _, err := p.Mem.ReadAt(t[:], off); err != nil {
			return "", err
		}

		if t[0] == 0 {
			break
		}

		buf.WriteByte(t[0])
		off++
	}

	return buf.String(), nil
}

func (p *Process) CopyOut(addr uint64, val interface{}) error {
	return binary.Write(&writeAdapter{sub: p.Mem, offset: int64(addr)}, binary.LittleEndian, val)
}

func (p *Process) CopyIn(addr uint64, val interface{}) error {
	return binary.Read(&readAdapter{sub: p.Mem, offset: int64(addr)}, binary.LittleEndian, val)
}

// OpenPath resolves path in the shared root filesystem and binds the result
// at the lowest free descriptor.
func (p *Process) OpenPath(ctx context.Context, path string, flags fs.OpenFlags, opts OpenOptions, create bool) (Fd, error) {
	var inode *fs.Inode

	err := p.Root.Do(func(r *fs.RootFs) error {
		d, err := r.Resolve(ctx, nil, path, fs.LookupOptions{
			FollowLast: true,
			Create:     create,
			CreateType: fs.RegularFile,
			Perms:      0644,
		})
		if err != nil {
			return err
		}

		inode = d.Inode
		return nil
	})

	if err != nil {
		return -1, err
	}

	file, err := OpenInode(ctx, inode, flags)
	if err != nil {
		return -1, err
	}

	return p.Files.Open(file, opts)
}

// Exec replaces the image of p with the executable at path. The old image
// stays in place when anything fails.
func (p *Process) Exec(ctx context.Context, path string, argv []string) error {
	var exe *fs.Inode

	err := p.Root.Do(func(r *fs.RootFs) error {
		var err error
		exe, err = r.LookupFile(ctx, path)
		return err
	})

	if err != nil {
		return err
	}

	if len(argv) == 0 {
		argv = []string{path}
	}

	img, err := p.pm.loadImage(ctx, exe, argv)
	if err != nil {
		return err
	}

	old := p.Mem

	p.Mem = img.mem
	p.Context = img.context
	p.Args = argv

	old.Release()

	p.Files.CloseOnExec()

	p.L.Debug("exec", "path", path, "entry", hclog.Fmt("%#x", img.context.IP))

	return nil
}

// Exit closes every descriptor, takes p off the CPU as a Zombie and
// releases its memory. The pid stays registered until reaped.
func (p *Process) Exit(code int) error {
	p.L.Trace("process-exit", "pid", p.Pid, "code", code)

	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()

	p.Files.CloseAll()

	sched := p.pm.sched

	if sched.Current() == p {
		if _, err := sched.Switch(Zombie); err != nil {
			return err
		}
	} else {
		if err := p.setState(Zombie); err != nil {
			return err
		}

		sched.retire(p)
	}

	p.Mem.Release()

	return nil
}

// Yield gives the CPU to the next runnable process. p must be the one
// running.
func (p *Process) Yield() (*Process, error) {
	sched := p.pm.sched

	if sched.Current() != p {
		return nil, errors.Wrapf(ErrNoCurrentProcess, "pid %d is not running", p.Pid)
	}

	return sched.Switch(Runnable)
}

// ProcessManager owns the pid space and creates processes.
type ProcessManager struct {
	L hclog.Logger

	mu        sync.RWMutex
	processes map[int]*Process

	root   *once.Value[SharedRootFs]
	pages  *memory.PageAllocator
	loader *loader.Loader
	sched  *Scheduler
}

func NewProcessManager(root *once.Value[SharedRootFs], pages *memory.PageAllocator, ld *loader.Loader, sched *Scheduler) *ProcessManager {
	return &ProcessManager{
		L:         log.Named("proc"),
		processes: make(map[int]*Process),
		root:      root,
		pages:     pages,
		loader:    ld,
		sched:     sched,
	}
}

func (pm *ProcessManager) Lookup(pid int) (*Process, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, ok := pm.processes[pid]
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchProcess, "pid %d", pid)
	}

	return proc, nil
}

func (pm *ProcessManager) Len() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return len(pm.processes)
}

// Reap frees the pid of an exited process and returns its exit code.
func (pm *ProcessManager) Reap(pid int) (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	proc, ok := pm.processes[pid]
	if !ok {
		return 0, errors.Wrapf(ErrNoSuchProcess, "pid %d", pid)
	}

	if proc.State() != Zombie {
		return 0, errors.Wrapf(ErrNotZombie, "pid %d", pid)
	}

	delete(pm.processes, pid)

	return proc.ExitCode(), nil
}

// sharedRoot returns the published root filesystem. Asking for it before
// publication is a kernel bug.
func (pm *ProcessManager) sharedRoot() SharedRootFs {
	root, ok := pm.root.TryGet()
	if !ok {
		halt("create process", ErrRootFsUnpublished)
	}

	return root
}

// NewInitProcess creates pid 1 from exe with console bound to descriptors
// 0, 1 and 2, and queues it. Nothing is registered when it fails.
func (pm *ProcessManager) NewInitProcess(ctx context.Context, exe, console *fs.Inode, argv []string) (*Process, error) {
	root := pm.sharedRoot()

	pm.mu.RLock()
	_, exists := pm.processes[1]
	pm.mu.RUnlock()

	if exists {
		return nil, ErrInitExists
	}

	img, err := pm.loadImage(ctx, exe, argv)
	if err != nil {
		return nil, err
	}

	files := NewFDTable()

	if err := seedConsole(ctx, files, console); err != nil {
		img.mem.Release()
		files.CloseAll()
		return nil, err
	}

	proc := &Process{
		Pid:     1,
		L:       pm.L.With("pid", 1),
		state:   Runnable,
		Files:   files,
		Root:    root,
		Mem:     img.mem,
		Context: img.context,
		Args:    argv,
		pm:      pm,
	}

	if err := pm.admit(proc); err != nil {
		return nil, err
	}

	proc.L.Info("created init process", "args", argv, "entry", hclog.Fmt("%#x", proc.Context.IP))

	return proc, nil
}

// admit registers proc under its pid and queues it. When either step fails
// proc is unregistered and its memory and descriptors are released.
func (pm *ProcessManager) admit(proc *Process) error {
	pm.mu.Lock()
	if _, ok := pm.processes[proc.Pid]; ok {
		pm.mu.Unlock()
		proc.Mem.Release()
		proc.Files.CloseAll()
		return ErrInitExists
	}

	pm.processes[proc.Pid] = proc
	pm.mu.Unlock()

	if err := pm.sched.Enqueue(proc); err != nil {
		pm.mu.Lock()
		delete(pm.processes, proc.Pid)
		pm.mu.Unlock()

		proc.Mem.Release()
		proc.Files.CloseAll()

		return err
	}

	return nil
}

func seedConsole(ctx context.Context, files *FDTable, console *fs.Inode) error {
	file, err := OpenInode(ctx, console, fs.OpenFlags{Read: true, Write: true})
	if err != nil {
		return errors.Wrap(err, "open console")
	}

	if err := files.OpenAt(0, file, OpenOptions{}); err != nil {
		return err
	}

	for _, fd := range []Fd{1, 2} {
		if _, err := files.Dup2(0, fd, OpenOptions{}); err != nil {
			return err
		}
	}

	return nil
}
