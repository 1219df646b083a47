// Package remotefs provides one remote filesystem API over FTP and SFTP.
//
// This package provides:
//   - A Client interface for listing, globbing, creating, deleting and
//     transferring files and directory trees
//   - FTPClient, built on github.com/jlaffaye/ftp
//   - SFTPClient, built on github.com/pkg/sftp over golang.org/x/crypto/ssh
//   - Direction detection for copies and optional post-transfer size checks
//
// # Basic Usage
//
//	client, err := remotefs.Open(remotefs.Config{
//		Protocol: remotefs.ProtocolSFTP,
//		Host:     "example.com",
//		User:     "deploy",
//		KeyPath:  "~/.ssh/id_ed25519",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := client.Connect(); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	err = client.CopyTree("/local/dir", "/remote/dir", remotefs.DirectionUp)
//
// Or let With handle the connection:
//
//	err := remotefs.With(cfg, func(c remotefs.Client) error {
//		return c.DownloadTree("/remote/dir", "/local/dir")
//	})
//
// Clients are not safe for concurrent use. The FTP client changes the
// server-side working directory while classifying paths, so one session must
// only serve one caller at a time.
package remotefs
