package kernel

import "io"

// writeAdapter and readAdapter turn the offset based access of a process's
// memory into a stream starting at offset.
type writeAdapter struct {
	sub    io.WriterAt
	offset int64
}

func (w *writeAdapter) Write(b []byte) (int, error) {
	n, err := w.sub.WriteAt(b, w.offset)
	w.offset += int64(n)
	return n, err
}

type readAdapter struct {
	sub    io.ReaderAt
	offset int64
}

func (r *readAdapter) Read(b []byte) (int, error) {
	n, err := r.sub.ReadAt(b, r.offset)
	r.offset += int64(n)
	return n, err
}
