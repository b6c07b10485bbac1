package cpp

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"
)

type IncludeSearcher interface {
	//IncludeQuote is invoked when the preprocessor
	//encounters an include of the form #include "foo.h".
	//returns the full path of the file or an error.
	IncludeQuote(requestingFile, headerPath string) (string, error)
	//IncludeAngled is invoked when the preprocessor
	//encounters an include of the form #include <foo.h>.
	//returns the full path of the file or an error.
	IncludeAngled(requestingFile, headerPath string) (string, error)
	//Identify returns a key that is the same for every path
	//reaching the same file.
	Identify(path string) (FileID, error)
	//Open returns the contents of a file found by the searcher.
	Open(path string) (io.ReadCloser, error)
}

// FileID is the identity of a source file used by #pragma once.
// Dev and Ino are set when the filesystem exposes them,
// otherwise Path holds the cleaned path.
type FileID struct {
	Dev  uint64
	Ino  uint64
	Path string
}

func (id FileID) String() string {
	if id.Path != "" {
		return id.Path
	}
	return fmt.Sprintf("dev=%d,ino=%d", id.Dev, id.Ino)
}

type StandardIncludeSearcher struct {
	fs billy.Filesystem
	// relative paths are opened relative to dir when it is set.
	dir string
	//Priority order list of paths to search for headers
	systemHeadersPath []string
}

// resolve returns the name used to access p on the filesystem.
// Names handed back to the preprocessor keep their original form.
func (is *StandardIncludeSearcher) resolve(p string) string {
	if is.dir == "" || path.IsAbs(p) {
		return p
	}
	return path.Join(is.dir, p)
}

func (is *StandardIncludeSearcher) fileExists(p string) (bool, error) {
	fi, err := is.fs.Stat(is.resolve(p))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", p)
	}
	return !fi.IsDir(), nil
}

func (is *StandardIncludeSearcher) IncludeQuote(requestingFile, headerPath string) (string, error) {
	p := headerPath
	if !path.IsAbs(headerPath) {
		p = path.Join(path.Dir(requestingFile), headerPath)
	}
	exists, err := is.fileExists(p)
	if err != nil {
		return "", err
	}
	if !exists {
		return is.IncludeAngled(requestingFile, headerPath)
	}
	return p, nil
}

func (is *StandardIncludeSearcher) IncludeAngled(requestingFile, headerPath string) (string, error) {
	if path.IsAbs(headerPath) {
		exists, err := is.fileExists(headerPath)
		if err != nil {
			return "", err
		}
		if exists {
			return headerPath, nil
		}
		return "", fmt.Errorf("header %s not found", headerPath)
	}
	for _, dir := range is.systemHeadersPath {
		p := path.Join(dir, headerPath)
		exists, err := is.fileExists(p)
		if err != nil {
			return "", err
		}
		if exists {
			return p, nil
		}
	}
	return "", fmt.Errorf("header %s not found", headerPath)
}

func (is *StandardIncludeSearcher) Identify(p string) (FileID, error) {
	fi, err := is.fs.Stat(is.resolve(p))
	if err != nil {
		return FileID{}, errors.Wrapf(err, "stat %s", p)
	}
	if id, ok := statIdentity(fi); ok {
		return id, nil
	}
	return FileID{Path: path.Clean(is.resolve(p))}, nil
}

func (is *StandardIncludeSearcher) Open(p string) (io.ReadCloser, error) {
	f, err := is.fs.Open(is.resolve(p))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", p)
	}
	return f, nil
}

// NewStandardIncludeSearcher searches the directories in order, after the
// directory of the including file for quoted includes. Relative names are
// looked up under dir, or as given when dir is empty.
func NewStandardIncludeSearcher(fs billy.Filesystem, dir string, includePaths ...string) *StandardIncludeSearcher {
	ret := &StandardIncludeSearcher{fs: fs, dir: dir}
	for _, p := range includePaths {
		if p != "" {
			ret.systemHeadersPath = append(ret.systemHeadersPath, p)
		}
	}
	return ret
}

//SplitIncludePaths splits a ; seperated list of paths
func SplitIncludePaths(includePaths string) []string {
	var ret []string
	for _, p := range strings.Split(includePaths, ";") {
		p = strings.TrimSpace(p)
		if p != "" {
			ret = append(ret, p)
		}
	}
	return ret
}

// IncludeRegistry remembers the files marked with #pragma once.
type IncludeRegistry struct {
	once map[FileID]struct{}
}

func NewIncludeRegistry() *IncludeRegistry {
	return &IncludeRegistry{once: make(map[FileID]struct{})}
}

func (r *IncludeRegistry) Add(id FileID) {
	r.once[id] = struct{}{}
}

func (r *IncludeRegistry) Contains(id FileID) bool {
	_, ok := r.once[id]
	return ok
}

func (r *IncludeRegistry) Len() int {
	return len(r.once)
}
