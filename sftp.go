package remotefs

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SFTPSession is the subset of an SFTP session the client uses.
type SFTPSession interface {
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	Mkdir(path string) error
	RemoveDirectory(path string) error
	Remove(path string) error
	OpenFile(path string, flag int) (RemoteFile, error)
	Close() error
}

// sftpConn adapts *sftp.Client to SFTPSession.
type sftpConn struct {
	client *sftp.Client
}

var _ SFTPSession = (*sftpConn)(nil)

func (c *sftpConn) Stat(p string) (os.FileInfo, error)      { return c.client.Stat(p) }
func (c *sftpConn) ReadDir(p string) ([]os.FileInfo, error) { return c.client.ReadDir(p) }
func (c *sftpConn) Mkdir(p string) error                    { return c.client.Mkdir(p) }
func (c *sftpConn) RemoveDirectory(p string) error          { return c.client.RemoveDirectory(p) }
func (c *sftpConn) Remove(p string) error                   { return c.client.Remove(p) }
func (c *sftpConn) Close() error                            { return c.client.Close() }

func (c *sftpConn) OpenFile(p string, flag int) (RemoteFile, error) {
	f, err := c.client.OpenFile(p, flag)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SFTPClientFactory creates SFTP clients.
type SFTPClientFactory struct{}

func (f *SFTPClientFactory) Accept(p Protocol) bool { return p == ProtocolSFTP }

func (f *SFTPClientFactory) Create(cfg Config) (Client, error) { return NewSFTPClient(cfg), nil }

func (f *SFTPClientFactory) Name() string { return string(ProtocolSFTP) }

// SFTPClient implements Client over SFTP. Unlike FTP, SFTP has native stat,
// attribute listings, mkdir and rmdir.
type SFTPClient struct {
	cfg       Config
	creds     *credentials
	sshClient *ssh.Client
	sess      SFTPSession
	local     LocalFS
	logger    zerolog.Logger
}

var _ Client = (*SFTPClient)(nil)

// NewSFTPClient returns an unconnected SFTP client.
func NewSFTPClient(cfg Config) *SFTPClient {
	cfg.Protocol = ProtocolSFTP
	cfg = cfg.WithDefaults()
	creds := newCredentials(cfg.User, cfg.Password)
	cfg.Password = ""
	return &SFTPClient{
		cfg:    cfg,
		creds:  creds,
		local:  OSFS{},
		logger: clientLogger(ProtocolSFTP, cfg.Host),
	}
}

// NewSFTPClientWithSession returns a client already bound to session.
func NewSFTPClientWithSession(cfg Config, session SFTPSession) *SFTPClient {
	c := NewSFTPClient(cfg)
	c.sess = session
	return c
}

// NewSFTPSession wraps an established *sftp.Client.
func NewSFTPSession(client *sftp.Client) SFTPSession {
	return &sftpConn{client: client}
}

// SetLocalFS replaces the local filesystem used for transfers.
func (c *SFTPClient) SetLocalFS(local LocalFS) {
	c.local = local
}

func (c *SFTPClient) Connect() error {
	c.logger.Info().Msgf("Opening SFTP connection to %s", c.cfg.Addr())
	sshConfig, addr, err := sshClientConfig(c.cfg, c.creds, c.logger)
	if err != nil {
		return err
	}

	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	c.sshClient = sshClient
	c.sess = &sftpConn{client: client}
	return nil
}

// Disconnect closes the SFTP session and the SSH connection under it and
// wipes the stored password.
func (c *SFTPClient) Disconnect() error {
	c.mustConnected()
	var result *multierror.Error
	if err := c.sess.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close SFTP session: %w", err))
	}
	if c.sshClient != nil {
		if err := c.sshClient.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close SSH connection: %w", err))
		}
	}
	c.sess = nil
	c.sshClient = nil
	c.creds.Clear()
	return result.ErrorOrNil()
}

func (c *SFTPClient) mustConnected() {
	if c.sess == nil {
		panic(fmt.Errorf("sftp %s: %w", c.cfg.Addr(), ErrNotConnected))
	}
}

func (c *SFTPClient) ListDir(p string) ([]string, error) {
	c.mustConnected()
	entries, err := c.sess.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (c *SFTPClient) FileGlob(pattern string) ([]string, error) {
	c.mustConnected()
	dir := path.Dir(pattern)
	exists, err := c.Exists(dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []string{}, nil
	}
	entries, err := c.sess.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	candidates := make([]string, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, path.Join(dir, e.Name()))
	}
	return matchGlob(pattern, candidates)
}

func (c *SFTPClient) Exists(p string) (bool, error) {
	c.mustConnected()
	if _, err := c.sess.Stat(p); err != nil {
		if isSFTPNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsDir stats p. A missing path is an error; check Exists first.
func (c *SFTPClient) IsDir(p string) (bool, error) {
	c.mustConnected()
	info, err := c.sess.Stat(p)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// IsFile stats p. A missing path is an error; check Exists first.
func (c *SFTPClient) IsFile(p string) (bool, error) {
	c.mustConnected()
	info, err := c.sess.Stat(p)
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (c *SFTPClient) Mkdir(dir string) error {
	c.mustConnected()
	_, err := c.sess.Stat(dir)
	if err == nil || !isSFTPNotFound(err) {
		return err
	}

	if parent := remoteParent(dir); !isRootLike(parent) {
		if err := c.Mkdir(parent); err != nil {
			return err
		}
	}

	if err := c.sess.Mkdir(trimTrailingSlash(dir)); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func (c *SFTPClient) Delete(p string) error {
	c.mustConnected()
	info, err := c.sess.Stat(p)
	if err != nil {
		return ignoreSFTPMissing(err)
	}

	if !info.IsDir() {
		return ignoreSFTPMissing(c.sess.Remove(p))
	}

	entries, err := c.sess.ReadDir(p)
	if err != nil {
		return ignoreSFTPMissing(err)
	}
	for _, e := range entries {
		if err := c.Delete(path.Join(p, e.Name())); err != nil {
			return err
		}
	}
	return ignoreSFTPMissing(c.sess.RemoveDirectory(p))
}

func ignoreSFTPMissing(err error) error {
	if isSFTPNotFound(err) {
		return nil
	}
	return err
}

func (c *SFTPClient) CopyTree(src, dst string, d Direction) error {
	return copyTree(c, c.local, src, dst, d)
}

func (c *SFTPClient) CopyFile(src, dst string, d Direction) error {
	return copyFile(c, c.local, src, dst, d)
}

func (c *SFTPClient) UploadTree(src, dst string) error {
	return uploadTree(c, c.local, src, dst)
}

// DownloadTree creates dst and fills it from src, classifying children from
// the attributes returned by the listing.
func (c *SFTPClient) DownloadTree(src, dst string) error {
	c.mustConnected()
	if err := c.local.MkdirAll(dst); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dst, err)
	}

	entries, err := c.sess.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := path.Join(src, e.Name())
		dstPath := joinLocal(dst, e.Name())
		if e.IsDir() {
			err = c.DownloadTree(srcPath, dstPath)
		} else {
			err = c.DownloadFile(srcPath, dstPath)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DownloadFile replaces any existing local file and, unless verification is
// disabled, checks that the local size matches the remote size.
func (c *SFTPClient) DownloadFile(src, dst string) error {
	c.mustConnected()
	localPath := localDestination(c.local, src, dst)
	if err := c.local.RemoveIfExists(localPath); err != nil {
		return fmt.Errorf("failed to remove existing %s: %w", localPath, err)
	}

	remote, err := c.sess.OpenFile(src, os.O_RDONLY)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", src, err)
	}
	defer remote.Close()

	var n int64
	err = saveLocal(c.local, localPath, func(w io.Writer) error {
		var err error
		n, err = io.Copy(w, remote)
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

func (c *SFTPClient) UploadFile(src, dst string) error {
	c.mustConnected()
	local, err := c.local.OpenRead(src)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer local.Close()

	remote, err := c.sess.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", dst, err)
	}
	n, err := io.Copy(remote, local)
	if cerr := remote.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", src, err)
	}
	c.logger.Debug().Msgf("Uploaded %s to %s (%s)", src, dst, humanize.Bytes(uint64(n)))

	if c.cfg.Verify.uploads() {
		return c.verify(dst, src)
	}
	return nil
}

func (c *SFTPClient) verify(remotePath, localPath string) error {
	info, err := c.sess.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", remotePath, err)
	}
	localSize, err := c.local.Size(localPath)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", localPath, err)
	}
	return compareSizes(remotePath, info.Size(), localPath, localSize)
}

func (c *SFTPClient) FileSize(p string, m Magnitude) (float64, error) {
	c.mustConnected()
	info, err := c.sess.Stat(p)
	if err != nil {
		return 0, err
	}
	return m.scale(info.Size()), nil
}

func (c *SFTPClient) Open(p string, mode OpenMode) (RemoteFile, error) {
	c.mustConnected()
	mode, err := ParseOpenMode(string(mode))
	if err != nil {
		return nil, err
	}
	flag := os.O_RDONLY
	switch mode {
	case ModeWrite:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case ModeAppend:
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return c.sess.OpenFile(p, flag)
}
