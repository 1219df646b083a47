package remotefs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS is the local side of every transfer.
type LocalFS interface {
	Exists(name string) bool
	IsFile(name string) bool
	IsDir(name string) bool
	// ListChildren returns the full paths of the entries of a directory, sorted by name.
	ListChildren(name string) ([]string, error)
	OpenRead(name string) (io.ReadCloser, error)
	// OpenWrite creates or truncates a file.
	OpenWrite(name string) (io.WriteCloser, error)
	MkdirAll(name string) error
	RemoveIfExists(name string) error
	Size(name string) (int64, error)
}

// OSFS is a LocalFS backed by the os package.
type OSFS struct{}

var _ LocalFS = OSFS{}

func (OSFS) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (OSFS) IsFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

func (OSFS) IsDir(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.IsDir()
}

func (OSFS) ListChildren(name string) ([]string, error) {
	entries, err := os.ReadDir(name)
	if err != nil {
		return nil, err
	}
	children := make([]string, 0, len(entries))
	for _, e := range entries {
		children = append(children, filepath.Join(name, e.Name()))
	}
	return children, nil
}

func (OSFS) OpenRead(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

func (OSFS) OpenWrite(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// TODO receive mode from the remote side instead of always using 0755
func (OSFS) MkdirAll(name string) error {
	return os.MkdirAll(name, 0755)
}

func (OSFS) RemoveIfExists(name string) error {
	err := os.Remove(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (OSFS) Size(name string) (int64, error) {
	info, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// localDestination resolves where a downloaded file lands: a destination
// ending in a separator or naming an existing directory receives the remote
// base name.
func localDestination(local LocalFS, remoteSrc, dst string) string {
	if strings.HasSuffix(dst, "/") || strings.HasSuffix(dst, string(filepath.Separator)) || local.IsDir(dst) {
		return filepath.Join(dst, baseName(remoteSrc))
	}
	return dst
}

// saveLocal writes a local file from fill, creating parent directories.
func saveLocal(local LocalFS, localPath string, fill func(io.Writer) error) error {
	if dir := filepath.Dir(localPath); dir != "." {
		if err := local.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	out, err := local.OpenWrite(localPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if err := fill(out); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func baseName(remotePath string) string {
	trimmed := strings.TrimRight(remotePath, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func joinLocal(dir, name string) string {
	return filepath.Join(dir, name)
}
