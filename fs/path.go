package fs

import "strings"

func isAbs(path string) bool {
	return len(path) > 0 && path[0] == '/'
}

// splitPath breaks path into its components, dropping empty ones produced by
// leading, trailing or repeated slashes.
func splitPath(path string) []string {
	var parts []string

	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}

		parts = append(parts, part)
	}

	return parts
}
