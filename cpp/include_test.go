package cpp

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIncludePaths(t *testing.T) {
	assert.Equal(t, []string{"/usr/include", "inc"}, SplitIncludePaths(" /usr/include ;;inc;"))
	assert.Empty(t, SplitIncludePaths(""))
}

func TestStandardIncludeSearcher(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "src/local.h", []byte("l"), 0644))
	require.NoError(t, util.WriteFile(fs, "sys/sys.h", []byte("s"), 0644))
	require.NoError(t, util.WriteFile(fs, "sys/local.h", []byte("s"), 0644))
	require.NoError(t, fs.MkdirAll("sys/dir.h", 0755))
	is := NewStandardIncludeSearcher(fs, "", "sys", "")

	p, err := is.IncludeQuote("src/main.c", "local.h")
	require.NoError(t, err)
	assert.Equal(t, "src/local.h", p)

	p, err = is.IncludeAngled("src/main.c", "local.h")
	require.NoError(t, err)
	assert.Equal(t, "sys/local.h", p)

	p, err = is.IncludeQuote("src/main.c", "sys.h")
	require.NoError(t, err)
	assert.Equal(t, "sys/sys.h", p)

	_, err = is.IncludeAngled("src/main.c", "dir.h")
	assert.Error(t, err, "directories are not headers")

	_, err = is.IncludeQuote("src/main.c", "missing.h")
	assert.Error(t, err)

	a, err := is.Identify("src/local.h")
	require.NoError(t, err)
	b, err := is.Identify("sys/../src/./local.h")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	rc, err := is.Open("sys/sys.h")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "s", string(data))

	_, err = is.Open("nope.h")
	assert.Error(t, err)
}

func TestIncludeRegistry(t *testing.T) {
	r := NewIncludeRegistry()
	id := FileID{Dev: 1, Ino: 2}
	assert.False(t, r.Contains(id))
	r.Add(id)
	r.Add(id)
	assert.True(t, r.Contains(id))
	assert.False(t, r.Contains(FileID{Dev: 1, Ino: 3}))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "dev=1,ino=2", id.String())
	assert.Equal(t, "a.h", FileID{Path: "a.h"}.String())
}

// A symlink reaches the same file under another name, only the
// device and inode pair can tell.
func TestPragmaOnceFollowsFileIdentity(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no inode identity")
	}
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("real.h", "#pragma once\nreal\n")
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.h"), filepath.Join(dir, "alias.h")))
	write("main.c", "#include \"real.h\"\n#include \"alias.h\"\nend\n")

	sess, err := NewSession(Options{FS: osfs.New("/"), Now: testNow})
	require.NoError(t, err)
	pp, err := sess.Open(filepath.Join(dir, "main.c"))
	require.NoError(t, err)
	var sb strings.Builder
	_, err = WriteText(&sb, pp)
	require.NoError(t, err)
	assert.Equal(t, "real\nend\n", sb.String())

	id, err := sess.is.Identify(filepath.Join(dir, "real.h"))
	require.NoError(t, err)
	assert.Empty(t, id.Path)
	assert.True(t, sess.Once.Contains(id))
}
