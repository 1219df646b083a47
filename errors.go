package remotefs

import (
	"errors"
	"io/fs"
	"net/textproto"
	"strings"
)

var (
	// ErrUnknownProtocol is returned by the factory for a protocol tag it has no client for.
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrNotConnected is the panic value raised when a client is used before
	// Connect or after Disconnect.
	ErrNotConnected = errors.New("client is not connected")

	// ErrUnsupportedEntry is returned when an upload source is neither a regular
	// file nor a directory.
	ErrUnsupportedEntry = errors.New("only files and directories are supported on upload")

	// ErrSizeMismatch is returned when post-transfer verification finds the
	// source and destination sizes differ.
	ErrSizeMismatch = errors.New("source and destination size mismatch after copy")

	// ErrRetriesExhausted is returned when a remote directory could not be
	// removed within the configured number of retries.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrReadOnly is returned when writing to a file handle opened for reading.
	ErrReadOnly = errors.New("file handle is not open for writing")
)

// FTP reply classes, as in RFC 959 section 4.2.
const (
	ftpTransientMin = 400
	ftpPermanentMin = 500
	ftpPermanentMax = 600

	ftpFileUnavailable = 550
)

func ftpReplyCode(err error) int {
	var te *textproto.Error
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}

// isFTPTransient reports a 4xx reply.
func isFTPTransient(err error) bool {
	code := ftpReplyCode(err)
	return code >= ftpTransientMin && code < ftpPermanentMin
}

// isFTPPermanent reports a 5xx reply.
func isFTPPermanent(err error) bool {
	code := ftpReplyCode(err)
	return code >= ftpPermanentMin && code < ftpPermanentMax
}

var ftpMissingMessages = []string{
	"no such file",
	"not found",
	"does not exist",
	"cannot find",
}

// isFTPNotFound reports whether err means the path is absent. Servers signal
// this either with a transient reply or with a 550 naming the missing path.
func isFTPNotFound(err error) bool {
	if err == nil {
		return false
	}
	if isFTPTransient(err) {
		return true
	}
	if ftpReplyCode(err) != ftpFileUnavailable {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range ftpMissingMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func isSFTPNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
