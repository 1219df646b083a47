package remotefs

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
)

// FTPSession is the subset of an FTP control connection the client uses.
type FTPSession interface {
	NameList(path string) ([]string, error)
	ChangeDir(path string) error
	CurrentDir() (string, error)
	MakeDir(path string) error
	RemoveDir(path string) error
	Delete(path string) error
	// Retrieve copies the whole remote file into w.
	Retrieve(path string, w io.Writer) error
	// Store replaces the remote file with the content of r.
	Store(path string, r io.Reader) error
	// Append adds the content of r to the end of the remote file.
	Append(path string, r io.Reader) error
	FileSize(path string) (int64, error)
	Quit() error
}

// ftpConn adapts *ftp.ServerConn to FTPSession.
type ftpConn struct {
	conn *ftp.ServerConn
}

var _ FTPSession = (*ftpConn)(nil)

func (c *ftpConn) NameList(p string) ([]string, error) { return c.conn.NameList(p) }
func (c *ftpConn) ChangeDir(p string) error            { return c.conn.ChangeDir(p) }
func (c *ftpConn) CurrentDir() (string, error)         { return c.conn.CurrentDir() }
func (c *ftpConn) MakeDir(p string) error              { return c.conn.MakeDir(p) }
func (c *ftpConn) RemoveDir(p string) error            { return c.conn.RemoveDir(p) }
func (c *ftpConn) Delete(p string) error               { return c.conn.Delete(p) }
func (c *ftpConn) Store(p string, r io.Reader) error   { return c.conn.Stor(p, r) }
func (c *ftpConn) Append(p string, r io.Reader) error  { return c.conn.Append(p, r) }
func (c *ftpConn) FileSize(p string) (int64, error)    { return c.conn.FileSize(p) }
func (c *ftpConn) Quit() error                         { return c.conn.Quit() }

func (c *ftpConn) Retrieve(p string, w io.Writer) error {
	r, err := c.conn.Retr(p)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return err
}

// FTPClientFactory creates FTP clients.
type FTPClientFactory struct{}

func (f *FTPClientFactory) Accept(p Protocol) bool { return p == ProtocolFTP }

func (f *FTPClientFactory) Create(cfg Config) (Client, error) { return NewFTPClient(cfg), nil }

func (f *FTPClientFactory) Name() string { return string(ProtocolFTP) }

// FTPClient implements Client over plaintext FTP. FTP has no stat or
// recursive mkdir, so directories are detected through name listings and
// working directory changes.
type FTPClient struct {
	cfg    Config
	creds  *credentials
	conn   FTPSession
	local  LocalFS
	retry  retryPolicy
	logger zerolog.Logger
}

var _ Client = (*FTPClient)(nil)

// NewFTPClient returns an unconnected FTP client.
func NewFTPClient(cfg Config) *FTPClient {
	cfg.Protocol = ProtocolFTP
	cfg = cfg.WithDefaults()
	creds := newCredentials(cfg.User, cfg.Password)
	cfg.Password = ""
	return &FTPClient{
		cfg:    cfg,
		creds:  creds,
		local:  OSFS{},
		retry:  newRetryPolicy(cfg),
		logger: clientLogger(ProtocolFTP, cfg.Host),
	}
}

// NewFTPClientWithSession returns a client already bound to session.
func NewFTPClientWithSession(cfg Config, session FTPSession) *FTPClient {
	c := NewFTPClient(cfg)
	c.conn = session
	return c
}

// SetLocalFS replaces the local filesystem used for transfers.
func (c *FTPClient) SetLocalFS(local LocalFS) {
	c.local = local
}

func (c *FTPClient) Connect() error {
	c.logger.Info().Msgf("Opening FTP connection to %s", c.cfg.Addr())
	conn, err := ftp.Dial(c.cfg.Addr(), ftp.DialWithTimeout(c.cfg.Timeout))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.Addr(), err)
	}

	user := c.creds.username
	if user == "" {
		user = "anonymous"
	}
	if err := conn.Login(user, c.creds.Password()); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("failed to login to %s: %w", c.cfg.Addr(), err)
	}

	c.conn = &ftpConn{conn: conn}
	return nil
}

// Disconnect quits the session and wipes the stored password; a new client
// is needed to connect again with password authentication.
func (c *FTPClient) Disconnect() error {
	c.mustConnected()
	err := c.conn.Quit()
	c.conn = nil
	c.creds.Clear()
	return err
}

func (c *FTPClient) mustConnected() {
	if c.conn == nil {
		panic(fmt.Errorf("ftp %s: %w", c.cfg.Addr(), ErrNotConnected))
	}
}

func (c *FTPClient) ListDir(p string) ([]string, error) {
	c.mustConnected()
	entries, err := c.conn.NameList(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, baseName(e))
	}
	return names, nil
}

func (c *FTPClient) FileGlob(pattern string) ([]string, error) {
	c.mustConnected()
	dir := path.Dir(pattern)
	entries, err := c.conn.NameList(dir)
	if err != nil {
		if isFTPNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}
	candidates := make([]string, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, path.Join(dir, baseName(e)))
	}
	return matchGlob(pattern, candidates)
}

func (c *FTPClient) Exists(p string) (bool, error) {
	c.mustConnected()
	if _, err := c.conn.NameList(p); err != nil {
		if isFTPNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsFile changes into p and reports a file when the server refuses with 550.
// Any other reply is returned as an error. The previous working directory is
// always restored.
func (c *FTPClient) IsFile(p string) (isFile bool, err error) {
	c.mustConnected()
	old, err := c.conn.CurrentDir()
	if err != nil {
		return false, err
	}
	defer func() {
		if rerr := c.conn.ChangeDir(old); rerr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to restore working directory %s: %w", old, rerr)).ErrorOrNil()
		}
	}()

	if err := c.conn.ChangeDir(p); err != nil {
		if ftpReplyCode(err) == ftpFileUnavailable {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (c *FTPClient) IsDir(p string) (bool, error) {
	isFile, err := c.IsFile(p)
	if err != nil {
		return false, err
	}
	return !isFile, nil
}

func (c *FTPClient) Mkdir(dir string) error {
	c.mustConnected()
	if _, err := c.conn.NameList(dir); err == nil || !isFTPNotFound(err) {
		return err
	}

	if parent := remoteParent(dir); !isRootLike(parent) {
		if err := c.Mkdir(parent); err != nil {
			if !isFTPPermanent(err) {
				return err
			}
			c.logger.Warn().Err(err).Msgf("failed to create parent directory %s", parent)
		}
	}

	if err := c.conn.MakeDir(trimTrailingSlash(dir)); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Delete removes p and everything below it. A directory the server refuses
// to remove is retried with growing delays, at most cfg.RemoveRetries times.
func (c *FTPClient) Delete(p string) error {
	c.mustConnected()
	err := c.retry.run(func() error {
		return c.deleteOnce(p)
	}, isDirBusy, func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Msgf("Failed to delete directory %s, retrying in %v...", p, wait)
	})
	var busy *dirBusyError
	if errors.As(err, &busy) {
		return fmt.Errorf("failed to delete directory %s after %d retries: %w: %w", p, c.retry.maxRetries, ErrRetriesExhausted, busy.err)
	}
	return err
}

// dirBusyError is a refused directory removal, usually a directory that is
// not empty yet.
type dirBusyError struct {
	path string
	err  error
}

func (e *dirBusyError) Error() string {
	return fmt.Sprintf("remove directory %s: %v", e.path, e.err)
}

func (e *dirBusyError) Unwrap() error { return e.err }

func isDirBusy(err error) bool {
	var busy *dirBusyError
	return errors.As(err, &busy)
}

func (c *FTPClient) deleteOnce(p string) error {
	c.logger.Debug().Msgf("deleting path: %s", p)
	entries, err := c.conn.NameList(p)
	if err != nil {
		return c.ignoreMissing(p, err)
	}

	for _, sub := range entries {
		if sub == p {
			c.logger.Debug().Msgf("deleting file: %s", p)
			return c.ignoreMissing(p, c.conn.Delete(sub))
		}
		child, ok := ftpChild(p, sub)
		if !ok {
			continue
		}
		if err := c.Delete(child); err != nil {
			return err
		}
	}

	if err := c.conn.RemoveDir(p); err != nil {
		if isFTPPermanent(err) && !isFTPNotFound(err) {
			return &dirBusyError{path: p, err: err}
		}
		return c.ignoreMissing(p, err)
	}
	return nil
}

func (c *FTPClient) ignoreMissing(p string, err error) error {
	if err != nil && isFTPNotFound(err) {
		c.logger.Info().Msgf("path does not exist: %s: %v", p, err)
		return nil
	}
	return err
}

func (c *FTPClient) CopyTree(src, dst string, d Direction) error {
	return copyTree(c, c.local, src, dst, d)
}

func (c *FTPClient) CopyFile(src, dst string, d Direction) error {
	return copyFile(c, c.local, src, dst, d)
}

// DownloadTree copies the remote tree at src to the local path dst. A
// listing holding only src itself marks src as a file.
func (c *FTPClient) DownloadTree(src, dst string) error {
	c.mustConnected()
	c.logger.Debug().Msgf("Listing: %s", src)
	entries, err := c.conn.NameList(src)
	if err != nil {
		return err
	}

	for _, sub := range entries {
		if sub == src {
			if err := c.DownloadFile(src, dst); err != nil {
				return err
			}
			continue
		}
		child, ok := ftpChild(src, sub)
		if !ok {
			continue
		}
		if err := c.local.MkdirAll(dst); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dst, err)
		}
		if err := c.DownloadTree(child, joinLocal(dst, baseName(child))); err != nil {
			return err
		}
	}
	return nil
}

func (c *FTPClient) UploadTree(src, dst string) error {
	return uploadTree(c, c.local, src, dst)
}

func (c *FTPClient) DownloadFile(src, dst string) error {
	c.mustConnected()
	localPath := localDestination(c.local, src, dst)
	var n int64
	err := saveLocal(c.local, localPath, func(w io.Writer) error {
		cw := &countingWriter{w: w}
		err := c.conn.Retrieve(src, cw)
		n = cw.n
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", src, err)
	}
	c.logger.Debug().Msgf("Downloaded %s to %s (%s)", src, localPath, humanize.Bytes(uint64(n)))

	if c.cfg.Verify.downloads() {
		return c.verify(src, localPath)
	}
	return nil
}

func (c *FTPClient) UploadFile(src, dst string) error {
	c.mustConnected()
	f, err := c.local.OpenRead(src)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer f.Close()

	if err := c.conn.Store(dst, f); err != nil {
		return fmt.Errorf("failed to upload %s: %w", src, err)
	}
	c.logger.Debug().Msgf("Uploaded %s to %s", src, dst)

	if c.cfg.Verify.uploads() {
		return c.verify(dst, src)
	}
	return nil
}

// verify compares sizes after a transfer. A server that refuses SIZE with a
// permanent reply cannot be checked, so verification is skipped.
func (c *FTPClient) verify(remotePath, localPath string) error {
	remoteSize, err := c.conn.FileSize(remotePath)
	if err != nil {
		if isFTPPermanent(err) {
			c.logger.Debug().Err(err).Msgf("SIZE not available for %s, skipping verification", remotePath)
			return nil
		}
		return fmt.Errorf("failed to verify %s: %w", remotePath, err)
	}
	localSize, err := c.local.Size(localPath)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", localPath, err)
	}
	return compareSizes(remotePath, remoteSize, localPath, localSize)
}

// FileSize returns 0 when the server reports no size.
func (c *FTPClient) FileSize(p string, m Magnitude) (float64, error) {
	c.mustConnected()
	size, err := c.conn.FileSize(p)
	if err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, nil
	}
	return m.scale(size), nil
}

func (c *FTPClient) Open(p string, mode OpenMode) (RemoteFile, error) {
	c.mustConnected()
	return OpenFTPFile(c.conn, p, mode)
}

// ftpChild turns a name list entry into a child path of parent. Servers
// return either full paths or bare names; "." and ".." are dropped.
func ftpChild(parent, entry string) (string, bool) {
	name := baseName(entry)
	if name == "" || name == "." || name == ".." {
		return "", false
	}
	if strings.Contains(entry, "/") {
		return entry, true
	}
	return path.Join(parent, entry), true
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
