package remotefs

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"
)

// mockFileInfo implements os.FileInfo for testing.
type mockFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (m *mockFileInfo) Name() string { return m.name }
func (m *mockFileInfo) Size() int64  { return m.size }
func (m *mockFileInfo) Mode() os.FileMode {
	if m.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}
func (m *mockFileInfo) ModTime() time.Time { return time.Time{} }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// fakeSFTP is an in-memory SFTPSession. Missing paths fail with a
// *fs.PathError wrapping fs.ErrNotExist, as pkg/sftp does.
type fakeSFTP struct {
	files  map[string][]byte
	dirs   map[string]bool
	closed bool

	// sizeSkew is added to every size Stat reports.
	sizeSkew int64
	// denied directories exist but cannot be stat'ed or created.
	denied map[string]bool
}

var _ SFTPSession = (*fakeSFTP)(nil)

func newFakeSFTP() *fakeSFTP {
	return &fakeSFTP{
		files:  make(map[string][]byte),
		dirs:   map[string]bool{"/": true},
		denied: make(map[string]bool),
	}
}

func (f *fakeSFTP) addFile(p, content string) {
	p = path.Clean(p)
	for d := path.Dir(p); d != "/"; d = path.Dir(d) {
		f.dirs[d] = true
	}
	f.files[p] = []byte(content)
}

func (f *fakeSFTP) addDir(p string) {
	for d := path.Clean(p); d != "/"; d = path.Dir(d) {
		f.dirs[d] = true
	}
}

func notExist(op, p string) error {
	return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
}

func (f *fakeSFTP) Stat(p string) (os.FileInfo, error) {
	p = path.Clean(p)
	if f.denied[p] {
		return nil, notExist("stat", p)
	}
	if content, ok := f.files[p]; ok {
		return &mockFileInfo{name: path.Base(p), size: int64(len(content)) + f.sizeSkew}, nil
	}
	if f.dirs[p] {
		return &mockFileInfo{name: path.Base(p), isDir: true}, nil
	}
	return nil, notExist("stat", p)
}

func (f *fakeSFTP) ReadDir(p string) ([]os.FileInfo, error) {
	p = path.Clean(p)
	if !f.dirs[p] {
		return nil, notExist("readdir", p)
	}
	var infos []os.FileInfo
	for name, content := range f.files {
		if path.Dir(name) == p {
			infos = append(infos, &mockFileInfo{name: path.Base(name), size: int64(len(content))})
		}
	}
	for name := range f.dirs {
		if name != "/" && path.Dir(name) == p {
			infos = append(infos, &mockFileInfo{name: path.Base(name), isDir: true})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (f *fakeSFTP) Mkdir(p string) error {
	p = path.Clean(p)
	if f.denied[p] {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrPermission}
	}
	if !f.dirs[path.Dir(p)] {
		return notExist("mkdir", p)
	}
	if _, ok := f.files[p]; ok || f.dirs[p] {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	f.dirs[p] = true
	return nil
}

func (f *fakeSFTP) RemoveDirectory(p string) error {
	p = path.Clean(p)
	if !f.dirs[p] {
		return notExist("rmdir", p)
	}
	for name := range f.files {
		if path.Dir(name) == p {
			return &fs.PathError{Op: "rmdir", Path: p, Err: fs.ErrPermission}
		}
	}
	for name := range f.dirs {
		if name != "/" && path.Dir(name) == p {
			return &fs.PathError{Op: "rmdir", Path: p, Err: fs.ErrPermission}
		}
	}
	delete(f.dirs, p)
	return nil
}

func (f *fakeSFTP) Remove(p string) error {
	p = path.Clean(p)
	if _, ok := f.files[p]; !ok {
		return notExist("remove", p)
	}
	delete(f.files, p)
	return nil
}

func (f *fakeSFTP) OpenFile(p string, flag int) (RemoteFile, error) {
	p = path.Clean(p)
	content, ok := f.files[p]
	if flag&os.O_CREATE == 0 {
		if !ok {
			return nil, notExist("open", p)
		}
	} else if !f.dirs[path.Dir(p)] {
		return nil, notExist("open", p)
	}

	file := &fakeSFTPFile{fs: f, path: p, writable: flag&(os.O_WRONLY|os.O_RDWR) != 0}
	switch {
	case flag&os.O_TRUNC != 0 || !ok:
		f.files[p] = []byte{}
	case flag&os.O_APPEND != 0:
		file.offset = int64(len(content))
	}
	return file, nil
}

func (f *fakeSFTP) Close() error {
	f.closed = true
	return nil
}

// fakeSFTPFile writes straight into the owning fake.
type fakeSFTPFile struct {
	fs       *fakeSFTP
	path     string
	offset   int64
	writable bool
}

func (h *fakeSFTPFile) Read(p []byte) (int, error) {
	content := h.fs.files[h.path]
	if h.offset >= int64(len(content)) {
		return 0, io.EOF
	}
	n := copy(p, content[h.offset:])
	h.offset += int64(n)
	return n, nil
}

func (h *fakeSFTPFile) Write(p []byte) (int, error) {
	if !h.writable {
		return 0, fs.ErrPermission
	}
	content := h.fs.files[h.path]
	if end := h.offset + int64(len(p)); end > int64(len(content)) {
		content = append(content, make([]byte, end-int64(len(content)))...)
	}
	copy(content[h.offset:], p)
	h.fs.files[h.path] = content
	h.offset += int64(len(p))
	return len(p), nil
}

func (h *fakeSFTPFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekCurrent:
		offset += h.offset
	case io.SeekEnd:
		offset += int64(len(h.fs.files[h.path]))
	}
	h.offset = offset
	return offset, nil
}

func (h *fakeSFTPFile) Close() error { return nil }

// tree lists every path below root, directories with a trailing slash.
func (f *fakeSFTP) tree(root string) []string {
	var out []string
	prefix := strings.TrimSuffix(path.Clean(root), "/") + "/"
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, strings.TrimPrefix(p, prefix))
		}
	}
	for p := range f.dirs {
		if p != "/" && strings.HasPrefix(p, prefix) {
			out = append(out, strings.TrimPrefix(p, prefix)+"/")
		}
	}
	sort.Strings(out)
	return out
}

func readAllString(r io.Reader) string {
	var b bytes.Buffer
	_, _ = b.ReadFrom(r)
	return b.String()
}
