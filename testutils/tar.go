package testutils

import (
	"archive/tar"
	"bytes"
	"time"
)

// Entry is one member of a synthetic tar archive. A trailing slash in Name
// makes a directory; a non-empty Link makes a symlink.
type Entry struct {
	Name string
	Body []byte
	Link string
	Mode int64
}

func Dir(name string) Entry {
	return Entry{Name: name + "/", Mode: 0755}
}

func File(name string, body []byte) Entry {
	return Entry{Name: name, Body: body, Mode: 0755}
}

func Symlink(name, target string) Entry {
	return Entry{Name: name, Link: target, Mode: 0777}
}

// BuildTar writes entries, in order, as a tar archive.
func BuildTar(entries ...Entry) []byte {
	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)

	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Name,
			Mode:    e.Mode,
			ModTime: time.Unix(0, 0),
		}

		switch {
		case e.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
		case len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/':
			hdr.Typeflag = tar.TypeDir
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
		}

		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}

		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write(e.Body); err != nil {
				panic(err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		panic(err)
	}

	return buf.Bytes()
}

// Initramfs is a root filesystem with /dev, /bin/sh and /etc/motd.
func Initramfs() []byte {
	return BuildTar(
		Dir("dev"),
		Dir("bin"),
		File("bin/sh", MinimalELF()),
		Dir("etc"),
		File("etc/motd", []byte("hello from initramfs\n")),
	)
}
