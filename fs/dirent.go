package fs

import "strings"

// Dirent is a named step of a resolved path. Parent links make ".." work
// across mount points.
type Dirent struct {
	Name   string
	Parent *Dirent
	Inode  *Inode
}

// Path reconstructs the absolute path of d.
func (d *Dirent) Path() string {
	var parts []string

	for cur := d; cur != nil && cur.Parent != nil; cur = cur.Parent {
		parts = append(parts, cur.Name)
	}

	if len(parts) == 0 {
		return "/"
	}

	var sb strings.Builder

	for i := len(parts) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(parts[i])
	}

	return sb.String()
}
