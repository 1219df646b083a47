package remotefs

import (
	"fmt"
	"io"
	"math"
	"path"
	"path/filepath"
	"strings"
)

// Client is the remote filesystem contract shared by the FTP and SFTP
// clients. A Client owns one session and must not be used from several
// goroutines at once.
type Client interface {
	// Connect opens and authenticates the session.
	Connect() error
	// Disconnect closes the session and wipes the stored password. Use a
	// new client to connect again.
	Disconnect() error

	// ListDir returns the base names of the immediate children of path.
	ListDir(path string) ([]string, error)
	// FileGlob returns the paths in the pattern's parent directory matching
	// pattern, in listing order. A missing parent yields no matches.
	FileGlob(pattern string) ([]string, error)
	// Exists reports whether path exists. A missing path is not an error.
	Exists(path string) (bool, error)
	IsDir(path string) (bool, error)
	IsFile(path string) (bool, error)
	// Mkdir creates path and any missing parents. Existing directories are left alone.
	Mkdir(path string) error
	// Delete removes a file or a whole directory tree. Missing paths are ignored.
	Delete(path string) error
	// Open opens a remote file for reading, writing or appending.
	Open(path string, mode OpenMode) (RemoteFile, error)
	// FileSize returns the size of path divided by 1024^m.
	FileSize(path string, m Magnitude) (float64, error)

	// CopyTree transfers a tree in the given direction. With DirectionAuto
	// the direction is guessed from whether src exists locally.
	CopyTree(src, dst string, d Direction) error
	// CopyFile transfers a single file, resolving DirectionAuto like CopyTree.
	CopyFile(src, dst string, d Direction) error

	UploadTree(src, dst string) error
	DownloadTree(src, dst string) error
	UploadFile(src, dst string) error
	DownloadFile(src, dst string) error
}

// RemoteFile is an open remote file.
type RemoteFile interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Direction is the direction of a copy operation.
type Direction string

const (
	// DirectionUp copies from the local filesystem to the remote host.
	DirectionUp Direction = "up"
	// DirectionDown copies from the remote host to the local filesystem.
	DirectionDown Direction = "down"
	// DirectionAuto picks DirectionUp when the source exists locally and
	// DirectionDown otherwise. This is a guess: a path that exists on both
	// sides is always uploaded. Pass an explicit direction when it matters.
	DirectionAuto Direction = "auto"
)

// Magnitude selects the unit FileSize reports in.
type Magnitude int

const (
	Bytes Magnitude = iota
	Kilobytes
	Megabytes
	Gigabytes
)

func (m Magnitude) scale(size int64) float64 {
	if m <= Bytes {
		return float64(size)
	}
	return float64(size) / math.Pow(1024, float64(m))
}

// OpenMode is the mode a remote file is opened with.
type OpenMode string

const (
	ModeRead   OpenMode = "r"
	ModeWrite  OpenMode = "w"
	ModeAppend OpenMode = "a"
)

// ParseOpenMode accepts "r", "w", "a" with an optional "b" suffix.
func ParseOpenMode(s string) (OpenMode, error) {
	m := OpenMode(strings.TrimSuffix(s, "b"))
	switch m {
	case ModeRead, ModeWrite, ModeAppend:
		return m, nil
	}
	return "", fmt.Errorf("invalid open mode %q", s)
}

// transferer is the set of primitives the direction dispatch needs.
type transferer interface {
	UploadTree(src, dst string) error
	DownloadTree(src, dst string) error
	UploadFile(src, dst string) error
	DownloadFile(src, dst string) error
}

func resolveDirection(local LocalFS, src string, d Direction) (Direction, error) {
	switch d {
	case DirectionUp, DirectionDown:
		return d, nil
	case DirectionAuto, "":
		if local.Exists(src) {
			return DirectionUp, nil
		}
		return DirectionDown, nil
	}
	return "", fmt.Errorf("invalid copy direction %q", d)
}

func copyTree(t transferer, local LocalFS, src, dst string, d Direction) error {
	d, err := resolveDirection(local, src, d)
	if err != nil {
		return err
	}
	if d == DirectionDown {
		return t.DownloadTree(src, dst)
	}
	return t.UploadTree(src, dst)
}

func copyFile(t transferer, local LocalFS, src, dst string, d Direction) error {
	d, err := resolveDirection(local, src, d)
	if err != nil {
		return err
	}
	if d == DirectionDown {
		return t.DownloadFile(src, dst)
	}
	return t.UploadFile(src, dst)
}

// matchGlob keeps the candidates matching pattern, preserving order.
func matchGlob(pattern string, candidates []string) ([]string, error) {
	matches := []string{}
	for _, c := range candidates {
		ok, err := path.Match(pattern, c)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// remoteParent returns the parent of a remote directory path after trailing
// separators are stripped.
func remoteParent(dir string) string {
	return path.Dir(trimTrailingSlash(dir))
}

func trimTrailingSlash(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" && strings.HasPrefix(p, "/") {
		return "/"
	}
	return trimmed
}

// isRootLike reports paths that need no creation.
func isRootLike(p string) bool {
	return p == "" || p == "." || p == "/"
}

type uploader interface {
	Mkdir(dst string) error
	UploadFile(src, dst string) error
}

// uploadTree walks the local tree at src depth-first, creating remote
// directories before descending.
func uploadTree(u uploader, local LocalFS, src, dst string) error {
	switch {
	case local.IsFile(src):
		return u.UploadFile(src, dst)
	case local.IsDir(src):
		if err := u.Mkdir(dst); err != nil {
			return err
		}
		children, err := local.ListChildren(src)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", src, err)
		}
		for _, child := range children {
			if err := uploadTree(u, local, child, path.Join(dst, filepath.Base(child))); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%s: %w", src, ErrUnsupportedEntry)
}
