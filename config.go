package remotefs

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Protocol selects the wire protocol a Client speaks.
type Protocol string

const (
	// ProtocolFTP is plaintext FTP.
	ProtocolFTP Protocol = "ftp"
	// ProtocolSFTP is SFTP over an SSH connection.
	ProtocolSFTP Protocol = "sftp"
)

// VerifyPolicy controls post-transfer size verification.
type VerifyPolicy string

const (
	// VerifyNone disables verification.
	VerifyNone VerifyPolicy = "none"
	// VerifyDownload compares sizes after every file download. FTP servers
	// that refuse SIZE are not checked.
	VerifyDownload VerifyPolicy = "download"
	// VerifyAll compares sizes after every file download and upload.
	VerifyAll VerifyPolicy = "all"
)

// Config holds connection parameters for a remote host.
type Config struct {
	// Protocol is "ftp" or "sftp".
	Protocol Protocol `yaml:"protocol" default:"ftp"`

	// Host is the server hostname or IP address.
	Host string `yaml:"host"`

	// Port defaults to 21 for FTP and 22 for SFTP.
	Port int `yaml:"port"`

	// User is the login name. FTP falls back to "anonymous".
	User string `yaml:"user"`

	// Password is used for FTP login and SSH password authentication.
	Password string `yaml:"password"`

	// KeyPath is a private key file for SSH public key authentication.
	KeyPath string `yaml:"key_path" split_words:"true"`

	// SSHConfigHost, when set, resolves user, address and identity files
	// from the ssh_config entry with this alias.
	SSHConfigHost string `yaml:"ssh_config_host" split_words:"true"`

	// KnownHostsFile is a known_hosts file used for host key verification.
	// Defaults to ~/.ssh/known_hosts when it exists.
	KnownHostsFile string `yaml:"known_hosts_file" split_words:"true"`

	// HostKeyFingerprint pins the server key to a SHA256 fingerprint
	// ("SHA256:..."). Takes precedence over KnownHostsFile.
	HostKeyFingerprint string `yaml:"host_key_fingerprint" split_words:"true"`

	// InsecureIgnoreHostKey accepts any host key.
	InsecureIgnoreHostKey bool `yaml:"insecure_ignore_host_key" split_words:"true"`

	// Timeout bounds connection establishment (default 30s).
	Timeout time.Duration `yaml:"timeout"`

	// Verify is the post-transfer verification policy (default "download").
	Verify VerifyPolicy `yaml:"verify"`

	// RemoveRetries bounds how often a busy FTP directory removal is retried (default 5).
	RemoveRetries int `yaml:"remove_retries" split_words:"true"`

	// RetryDelay is the first delay between removal retries; it doubles on each retry (default 100ms).
	RetryDelay time.Duration `yaml:"retry_delay" split_words:"true"`
}

// WithDefaults returns a copy of the config with default values applied.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		switch c.Protocol {
		case ProtocolSFTP:
			c.Port = 22
		default:
			c.Port = 21
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Verify == "" {
		c.Verify = VerifyDownload
	}
	if c.RemoveRetries == 0 {
		c.RemoveRetries = 5
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	return c
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ConfigFromEnv reads a config from environment variables named
// <PREFIX>_HOST, <PREFIX>_PORT, <PREFIX>_KEY_PATH and so on.
func ConfigFromEnv(prefix string) (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to read config from environment: %w", err)
	}
	return cfg, nil
}
