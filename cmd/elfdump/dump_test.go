package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/evanphx/penguin/testutils"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sh")
	require.NoError(t, os.WriteFile(path, testutils.MinimalELF(), 0755))

	var out bytes.Buffer
	require.NoError(t, dump(&out, path, false))

	require.Contains(t, out.String(), "entry=0x400000")
	require.Contains(t, out.String(), "0x400000-0x400003 r-x file=3 zero=0")

	bad := filepath.Join(t.TempDir(), "bad")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0644))

	require.Error(t, dump(&out, bad, false))
}
