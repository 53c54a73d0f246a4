package main

import (
	delf "debug/elf"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/penguin/loader"
)

func perms(flags delf.ProgFlag) string {
	b := []byte("---")
	if flags&delf.PF_R != 0 {
		b[0] = 'r'
	}
	if flags&delf.PF_W != 0 {
		b[1] = 'w'
	}
	if flags&delf.PF_X != 0 {
		b[2] = 'x'
	}
	return string(b)
}

func dump(w io.Writer, path string, raw bool) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	f, err := loader.NewLoader(nil).Load(buf)
	if err != nil {
		return err
	}

	if raw {
		spew.Fdump(w, f.Header)
	}

	fmt.Fprintf(w, "\n[header]\n")
	fmt.Fprintf(w, "type=%s machine=%s entry=%#x phnum=%d\n",
		f.Header.Type, f.Header.Machine, f.Entry(), f.Header.Phnum)

	fmt.Fprintf(w, "\n[program headers]\n")

	tr := tabwriter.NewWriter(w, 4, 8, 1, ' ', 0)
	fmt.Fprintf(tr, "#\ttype\tflags\toffset\tvaddr\tfilesz\tmemsz\talign\n")

	for i, ph := range f.ProgramHeaders() {
		fmt.Fprintf(tr, "%d\t%s\t%s\t%#x\t%#x\t%#x\t%#x\t%#x\n",
			i, ph.Type, perms(ph.Flags), ph.Offset, ph.Vaddr, ph.Filesz, ph.Memsz, ph.Align)
	}

	tr.Flush()

	fmt.Fprintf(w, "\n[load segments]\n")

	for _, ph := range f.LoadSegments() {
		data, err := f.SegmentData(buf, ph)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%#x-%#x %s file=%d zero=%d\n",
			ph.Vaddr, ph.Vaddr+ph.Memsz, perms(ph.Flags), len(data), ph.Memsz-ph.Filesz)
	}

	return nil
}

