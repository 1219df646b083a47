package remotefs

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexhunt7/ssher"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sshClientConfig assembles the ssh client config and dial address for cfg.
func sshClientConfig(cfg Config, creds *credentials, logger zerolog.Logger) (*ssh.ClientConfig, string, error) {
	hostKeyCallback, err := hostKeyCallback(cfg, logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to configure host key verification: %w", err)
	}

	if cfg.SSHConfigHost != "" {
		sshConfig, hostPort, err := ssher.ClientConfig(cfg.SSHConfigHost, "")
		if err != nil {
			return nil, "", fmt.Errorf("failed to read ssh config for %s: %w", cfg.SSHConfigHost, err)
		}
		if creds.username != "" {
			sshConfig.User = creds.username
		}
		if pw := creds.Password(); pw != "" {
			sshConfig.Auth = append(sshConfig.Auth, ssh.Password(pw))
		}
		sshConfig.HostKeyCallback = hostKeyCallback
		sshConfig.Timeout = cfg.Timeout
		return sshConfig, hostPort, nil
	}

	authMethods, err := sshAuthMethods(cfg, creds)
	if err != nil {
		return nil, "", err
	}
	if len(authMethods) == 0 {
		return nil, "", errors.New("no SSH authentication method configured")
	}

	return &ssh.ClientConfig{
		User:            creds.username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, cfg.Addr(), nil
}

// sshAuthMethods offers the private key first, then the password. An
// encrypted key is unlocked with the password.
func sshAuthMethods(cfg Config, creds *credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.KeyPath != "" {
		keyData, err := os.ReadFile(expandHome(cfg.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && creds.Password() != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(creds.Password()))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if pw := creds.Password(); pw != "" {
		methods = append(methods, ssh.Password(pw))
	}
	return methods, nil
}

// hostKeyCallback picks, in order: a pinned fingerprint, an explicit
// known_hosts file, insecure mode, ~/.ssh/known_hosts, and finally accepting
// any key with a warning.
func hostKeyCallback(cfg Config, logger zerolog.Logger) (ssh.HostKeyCallback, error) {
	if cfg.HostKeyFingerprint != "" {
		return fingerprintCallback(cfg.HostKeyFingerprint), nil
	}

	if cfg.KnownHostsFile != "" {
		path := expandHome(cfg.KnownHostsFile)
		callback, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts file %s: %w", path, err)
		}
		return callback, nil
	}

	if cfg.InsecureIgnoreHostKey {
		logger.Warn().Msgf("SSH host key verification disabled for %s", cfg.Addr())
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		defaultKnownHosts := filepath.Join(home, ".ssh", "known_hosts")
		if _, err := os.Stat(defaultKnownHosts); err == nil {
			callback, err := knownhosts.New(defaultKnownHosts)
			if err == nil {
				return callback, nil
			}
			logger.Warn().Err(err).Msgf("Could not parse known_hosts file %s", defaultKnownHosts)
		}
	}

	logger.Warn().Msgf("No known_hosts file found for %s, accepting any host key", cfg.Addr())
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		logger.Info().Msgf("%s key fingerprint for %s is %s", key.Type(), hostname, ssh.FingerprintSHA256(key))
		return nil
	}, nil
}

func fingerprintCallback(want string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fingerprint := ssh.FingerprintSHA256(key)
		if fingerprint != want {
			return fmt.Errorf("host key verification failed for %s: %s key fingerprint is %s, expected %s",
				hostname, key.Type(), fingerprint, want)
		}
		return nil
	}
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
