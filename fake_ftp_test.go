package remotefs

import (
	"io"
	"net/textproto"
	"path"
	"sort"
	"strings"
)

// fakeFTP is an in-memory FTPSession that answers like vsftpd: NLST of a
// file echoes the path, NLST of a directory returns joined child paths.
type fakeFTP struct {
	files   map[string][]byte
	dirs    map[string]bool
	cwd     string
	busy    map[string]int
	appends int
	quit    bool

	// listErr, when set, is returned by every NameList call.
	listErr error
	// sizeSkew is added to every reported file size.
	sizeSkew int64
	// sizeErr, when set, is returned by every FileSize call.
	sizeErr error
	// cwdErr maps a path to the reply ChangeDir gives for it.
	cwdErr map[string]error
	// denied directories exist but cannot be listed or created.
	denied map[string]bool
}

var _ FTPSession = (*fakeFTP)(nil)

func newFakeFTP() *fakeFTP {
	return &fakeFTP{
		files:  make(map[string][]byte),
		dirs:   map[string]bool{"/": true},
		cwd:    "/",
		busy:   make(map[string]int),
		cwdErr: make(map[string]error),
		denied: make(map[string]bool),
	}
}

func (f *fakeFTP) abs(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(f.cwd, p)
	}
	return path.Clean(p)
}

// addFile creates a file and all of its parent directories.
func (f *fakeFTP) addFile(p string, content string) {
	p = path.Clean(p)
	for d := path.Dir(p); d != "/"; d = path.Dir(d) {
		f.dirs[d] = true
	}
	f.files[p] = []byte(content)
}

func (f *fakeFTP) addDir(p string) {
	for d := path.Clean(p); d != "/"; d = path.Dir(d) {
		f.dirs[d] = true
	}
}

func (f *fakeFTP) children(dir string) []string {
	var names []string
	for p := range f.files {
		if path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	for p := range f.dirs {
		if p != "/" && path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names
}

func replyMissing(p string) error {
	return &textproto.Error{Code: 450, Msg: p + ": No such file or directory"}
}

func replyRefused(msg string) error {
	return &textproto.Error{Code: 550, Msg: msg}
}

func (f *fakeFTP) NameList(p string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	a := f.abs(p)
	if f.denied[a] {
		return nil, replyMissing(p)
	}
	if _, ok := f.files[a]; ok {
		return []string{p}, nil
	}
	if !f.dirs[a] {
		return nil, replyMissing(p)
	}
	entries := []string{}
	for _, name := range f.children(a) {
		entries = append(entries, path.Join(p, name))
	}
	return entries, nil
}

func (f *fakeFTP) ChangeDir(p string) error {
	a := f.abs(p)
	if err := f.cwdErr[a]; err != nil {
		return err
	}
	if f.dirs[a] {
		f.cwd = a
		return nil
	}
	if _, ok := f.files[a]; ok {
		return replyRefused(p + ": Not a directory")
	}
	return replyRefused(p + ": No such file or directory")
}

func (f *fakeFTP) CurrentDir() (string, error) {
	return f.cwd, nil
}

func (f *fakeFTP) MakeDir(p string) error {
	a := f.abs(p)
	if f.denied[a] {
		return replyRefused(p + ": Permission denied")
	}
	if _, ok := f.files[a]; ok || f.dirs[a] {
		return replyRefused(p + ": File exists")
	}
	if !f.dirs[path.Dir(a)] {
		return replyRefused(p + ": Permission denied")
	}
	f.dirs[a] = true
	return nil
}

func (f *fakeFTP) RemoveDir(p string) error {
	a := f.abs(p)
	if !f.dirs[a] {
		return replyRefused(p + ": No such file or directory")
	}
	if f.busy[a] > 0 {
		f.busy[a]--
		return replyRefused(p + ": Directory not empty")
	}
	if len(f.children(a)) > 0 {
		return replyRefused(p + ": Directory not empty")
	}
	delete(f.dirs, a)
	return nil
}

func (f *fakeFTP) Delete(p string) error {
	a := f.abs(p)
	if _, ok := f.files[a]; !ok {
		return replyRefused(p + ": No such file or directory")
	}
	delete(f.files, a)
	return nil
}

func (f *fakeFTP) Retrieve(p string, w io.Writer) error {
	content, ok := f.files[f.abs(p)]
	if !ok {
		return replyRefused(p + ": No such file or directory")
	}
	_, err := w.Write(content)
	return err
}

func (f *fakeFTP) Store(p string, r io.Reader) error {
	a := f.abs(p)
	if !f.dirs[path.Dir(a)] {
		return &textproto.Error{Code: 553, Msg: p + ": Could not create file"}
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.files[a] = content
	return nil
}

func (f *fakeFTP) Append(p string, r io.Reader) error {
	a := f.abs(p)
	if !f.dirs[path.Dir(a)] {
		return &textproto.Error{Code: 553, Msg: p + ": Could not create file"}
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.appends++
	f.files[a] = append(f.files[a], content...)
	return nil
}

func (f *fakeFTP) FileSize(p string) (int64, error) {
	if f.sizeErr != nil {
		return 0, f.sizeErr
	}
	content, ok := f.files[f.abs(p)]
	if !ok {
		return 0, replyRefused(p + ": Could not get file size")
	}
	return int64(len(content)) + f.sizeSkew, nil
}

func (f *fakeFTP) Quit() error {
	f.quit = true
	return nil
}

// exists reports whether p is a file or directory in the fake.
func (f *fakeFTP) exists(p string) bool {
	a := f.abs(p)
	_, isFile := f.files[a]
	return isFile || f.dirs[a]
}

// tree lists every path below root, directories with a trailing slash.
func (f *fakeFTP) tree(root string) []string {
	var out []string
	prefix := strings.TrimSuffix(root, "/") + "/"
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, strings.TrimPrefix(p, prefix))
		}
	}
	for p := range f.dirs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, strings.TrimPrefix(p, prefix)+"/")
		}
	}
	sort.Strings(out)
	return out
}
