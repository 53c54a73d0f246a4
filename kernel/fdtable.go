package kernel

import (
	"sync"

	"github.com/evanphx/penguin/log"
	"github.com/pkg/errors"
)

// MaxFds bounds the descriptor numbers a process can use.
const MaxFds = 1024

type Fd int

// OpenOptions are attached to a descriptor, not to the file it refers to.
type OpenOptions struct {
	CloseOnExec bool
	Append      bool
}

func NewOpenOptions(closeOnExec, append bool) OpenOptions {
	return OpenOptions{CloseOnExec: closeOnExec, Append: append}
}

type binding struct {
	file *OpenedFile
	opts OpenOptions
}

// FDTable maps a process's descriptors to opened files.
type FDTable struct {
	mu    sync.Mutex
	files []*binding
}

func NewFDTable() *FDTable {
	return &FDTable{}
}

// lookup returns the binding of fd. Callers hold mu.
func (t *FDTable) lookup(fd Fd) (*binding, error) {
	if fd < 0 || int(fd) >= len(t.files) || t.files[fd] == nil {
		return nil, errors.Wrapf(ErrBadDescriptor, "fd %d", fd)
	}

	return t.files[fd], nil
}

// lowest returns the lowest unbound descriptor. Callers hold mu.
func (t *FDTable) lowest() (Fd, error) {
	for i, b := range t.files {
		if b == nil {
			return Fd(i), nil
		}
	}

	if len(t.files) >= MaxFds {
		return -1, errors.Wrapf(ErrResourceExhausted, "all %d descriptors in use", MaxFds)
	}

	return Fd(len(t.files)), nil
}

// bind stores b at fd, growing the table. Callers hold mu and have range
// checked fd.
func (t *FDTable) bind(fd Fd, b *binding) {
	for int(fd) >= len(t.files) {
		t.files = append(t.files, nil)
	}

	t.files[fd] = b
}

func release(file *OpenedFile) {
	if err := file.decRef(); err != nil {
		log.L.Error("error closing file", "error", err, "inode", file.Inode.String())
	}
}

// Open binds file at the lowest unused descriptor. It takes over the
// caller's reference: on failure the file is released.
func (t *FDTable) Open(file *OpenedFile, opts OpenOptions) (Fd, error) {
	t.mu.Lock()

	fd, err := t.lowest()
	if err != nil {
		t.mu.Unlock()
		release(file)
		return -1, err
	}

	t.bind(fd, &binding{file: file, opts: opts})
	t.mu.Unlock()

	return fd, nil
}

// OpenAt binds file at fd, which must be free. Like Open it takes over the
// caller's reference.
func (t *FDTable) OpenAt(fd Fd, file *OpenedFile, opts OpenOptions) error {
	t.mu.Lock()

	if fd < 0 || fd >= MaxFds {
		t.mu.Unlock()
		release(file)
		return errors.Wrapf(ErrBadDescriptor, "fd %d out of range", fd)
	}

	if int(fd) < len(t.files) && t.files[fd] != nil {
		t.mu.Unlock()
		release(file)
		return errors.Wrapf(ErrBadDescriptor, "fd %d already bound", fd)
	}

	t.bind(fd, &binding{file: file, opts: opts})
	t.mu.Unlock()

	return nil
}

func (t *FDTable) Get(fd Fd) (*OpenedFile, OpenOptions, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, err := t.lookup(fd)
	if err != nil {
		return nil, OpenOptions{}, err
	}

	return b.file, b.opts, nil
}

// Close unbinds fd, closing the file if fd held its last reference.
func (t *FDTable) Close(fd Fd) error {
	t.mu.Lock()

	b, err := t.lookup(fd)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	t.files[fd] = nil
	t.mu.Unlock()

	return b.file.decRef()
}

// Dup2 makes new refer to the same file as old, with opts. A file previously
// bound at new is closed. The table never shows new unbound in between.
func (t *FDTable) Dup2(old, new Fd, opts OpenOptions) (Fd, error) {
	t.mu.Lock()

	b, err := t.lookup(old)
	if err != nil {
		t.mu.Unlock()
		return -1, err
	}

	if new < 0 || new >= MaxFds {
		t.mu.Unlock()
		return -1, errors.Wrapf(ErrBadDescriptor, "fd %d out of range", new)
	}

	if new == old {
		t.mu.Unlock()
		return new, nil
	}

	var prev *binding
	if int(new) < len(t.files) {
		prev = t.files[new]
	}

	b.file.incRef()
	t.bind(new, &binding{file: b.file, opts: opts})
	t.mu.Unlock()

	if prev != nil {
		release(prev.file)
	}

	return new, nil
}

// Dup binds the lowest unused descriptor to old's file.
func (t *FDTable) Dup(old Fd, opts OpenOptions) (Fd, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, err := t.lookup(old)
	if err != nil {
		return -1, err
	}

	fd, err := t.lowest()
	if err != nil {
		return -1, err
	}

	b.file.incRef()
	t.bind(fd, &binding{file: b.file, opts: opts})

	return fd, nil
}

func (t *FDTable) unbindAll(match func(*binding) bool) []*binding {
	t.mu.Lock()
	defer t.mu.Unlock()

	var dropped []*binding

	for i, b := range t.files {
		if b != nil && match(b) {
			dropped = append(dropped, b)
			t.files[i] = nil
		}
	}

	return dropped
}

// CloseOnExec closes every descriptor marked close-on-exec.
func (t *FDTable) CloseOnExec() {
	for _, b := range t.unbindAll(func(b *binding) bool { return b.opts.CloseOnExec }) {
		release(b.file)
	}
}

// CloseAll closes every descriptor, as on exit.
func (t *FDTable) CloseAll() {
	for _, b := range t.unbindAll(func(*binding) bool { return true }) {
		release(b.file)
	}
}

// Len is the number of bound descriptors.
func (t *FDTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, b := range t.files {
		if b != nil {
			n++
		}
	}

	return n
}
