package remotefs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// FTPFile is a remote file opened over FTP. FTP only moves whole files, so a
// read-mode handle downloads the file into memory when opened and serves
// every read and seek from that buffer. A write-mode handle truncates the
// remote file when opened and sends each Write as its own APPE command.
type FTPFile struct {
	conn FTPSession
	path string
	mode OpenMode
	buf  *bytes.Reader
	data []byte
}

var _ RemoteFile = (*FTPFile)(nil)

// OpenFTPFile opens path on an FTP session.
func OpenFTPFile(conn FTPSession, path string, mode OpenMode) (*FTPFile, error) {
	mode, err := ParseOpenMode(string(mode))
	if err != nil {
		return nil, err
	}

	f := &FTPFile{conn: conn, path: path, mode: mode}
	switch mode {
	case ModeWrite:
		if err := conn.Store(path, bytes.NewReader(nil)); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
	case ModeRead:
		var b bytes.Buffer
		if err := conn.Retrieve(path, &b); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		f.data = b.Bytes()
	}
	f.buf = bytes.NewReader(f.data)
	return f, nil
}

// Name returns the remote path.
func (f *FTPFile) Name() string { return f.path }

// Mode returns the mode the file was opened with.
func (f *FTPFile) Mode() OpenMode { return f.mode }

func (f *FTPFile) Read(p []byte) (int, error) { return f.buf.Read(p) }

func (f *FTPFile) ReadAt(p []byte, off int64) (int, error) { return f.buf.ReadAt(p, off) }

func (f *FTPFile) Seek(offset int64, whence int) (int64, error) { return f.buf.Seek(offset, whence) }

// Len returns the number of unread bytes.
func (f *FTPFile) Len() int { return f.buf.Len() }

// ReadLine returns the next line including its trailing newline, or io.EOF
// when nothing is left.
func (f *FTPFile) ReadLine() ([]byte, error) {
	pos, _ := f.buf.Seek(0, io.SeekCurrent)
	if pos >= int64(len(f.data)) {
		return nil, io.EOF
	}
	rest := f.data[pos:]
	line := rest
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		line = rest[:i+1]
	}
	if _, err := f.buf.Seek(int64(len(line)), io.SeekCurrent); err != nil {
		return nil, err
	}
	return line, nil
}

// ReadLines returns the remaining lines without their newlines.
func (f *FTPFile) ReadLines() ([]string, error) {
	var lines []string
	s := bufio.NewScanner(f.buf)
	s.Buffer(make([]byte, 0, 64*1024), len(f.data)+1)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	return lines, s.Err()
}

// Truncate shrinks the in-memory copy to size bytes. The remote file is not changed.
func (f *FTPFile) Truncate(size int64) error {
	if size < 0 {
		return errors.New("negative truncate size")
	}
	if size < int64(len(f.data)) {
		pos, _ := f.buf.Seek(0, io.SeekCurrent)
		f.data = f.data[:size]
		f.buf = bytes.NewReader(f.data)
		if pos > size {
			pos = size
		}
		_, _ = f.buf.Seek(pos, io.SeekStart)
	}
	return nil
}

// Write appends p to the remote file in one round trip.
func (f *FTPFile) Write(p []byte) (int, error) {
	if f.mode != ModeWrite && f.mode != ModeAppend {
		return 0, fmt.Errorf("%w: file mode must be \"w\" or \"a\" to write data, not %q", ErrReadOnly, f.mode)
	}
	if err := f.conn.Append(f.path, bytes.NewReader(p)); err != nil {
		return 0, fmt.Errorf("failed to append to %s: %w", f.path, err)
	}
	return len(p), nil
}

func (f *FTPFile) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Close releases the buffer. Nothing is pending on the remote side.
func (f *FTPFile) Close() error {
	f.data = nil
	f.buf = bytes.NewReader(nil)
	return nil
}
