// Package config loads the YAML configuration file and the ancillary
// secret files (SFTP host key, webhook URL list, bot token) the daemon
// and backup CLI need at startup.
package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"
)

// MongoDB holds the `MongoDB` section of the config file.
type MongoDB struct {
	Prefix string `yaml:"Prefix"`
	Host   string `yaml:"Host"`
	Port   string `yaml:"Port"`
}

// Auth describes one SFTP credential: a username paired with either a
// password or an authorized public key (or neither, for a no-credential
// "none" auth entry).
type Auth struct {
	Username string  `yaml:"Username"`
	Password *string `yaml:"Password"`
	PubKey   string  `yaml:"PubKey"`
}

// SFTP holds the `SFTP` section of the config file.
type SFTP struct {
	Host   string `yaml:"Host"`
	Port   string `yaml:"Port"`
	NoAuth bool   `yaml:"NoAuth"`
	Auths  []Auth `yaml:"Auths"`
}

type fileConfig struct {
	MongoDB MongoDB `yaml:"MongoDB"`
	SFTP    SFTP    `yaml:"SFTP"`
}

// Config is the fully assembled runtime configuration: the parsed YAML
// file plus whatever ancillary secret files the caller chose to load.
type Config struct {
	MongoURL string
	SFTP     SFTP
	HostKey    ssh.Signer
	Webhooks   []string
	BotToken   string
	Passphrase []byte
}

func defaultPassword(s string) *string { return &s }

// Load reads and parses the YAML config file at path, applying the same
// defaults as the source: Mongo at mongodb://127.0.0.1:27017, SFTP on
// 0.0.0.0:8022 with a single Anonymous/susman credential.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read config file")
	}

	fc := fileConfig{
		MongoDB: MongoDB{Prefix: "mongodb://", Host: "127.0.0.1", Port: "27017"},
		SFTP: SFTP{
			Host: "0.0.0.0",
			Port: "8022",
			Auths: []Auth{
				{Username: "Anonymous", Password: defaultPassword("susman")},
			},
		},
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, errors.Wrap(err, "config: parse config file")
	}

	return &Config{
		MongoURL: fc.MongoDB.Prefix + fc.MongoDB.Host + ":" + fc.MongoDB.Port,
		SFTP:     fc.SFTP,
	}, nil
}

// LoadHostKey parses the SSH host private key at path and attaches it to c.
func (c *Config) LoadHostKey(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "config: read host key")
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return errors.Wrap(err, "config: parse host key")
	}
	c.HostKey = signer
	return nil
}

// LoadWebhooks reads the newline-delimited webhook URL list at path,
// skipping blank lines.
func (c *Config) LoadWebhooks(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "config: read webhooks file")
	}
	var hooks []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line != "" {
			hooks = append(hooks, line)
		}
	}
	c.Webhooks = hooks
	return nil
}

// LoadBotToken reads and trims the bot token file at path.
func (c *Config) LoadBotToken(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "config: read bot token")
	}
	c.BotToken = strings.TrimSpace(string(raw))
	return nil
}

// LoadPassphrase reads the chunk-encryption passphrase file at path. The
// file's bytes, with leading and trailing whitespace trimmed, feed the
// Chunk Codec's key derivation directly, the same way the source's
// AESCipher hashes whatever passphrase bytes it is given.
func (c *Config) LoadPassphrase(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "config: read passphrase file")
	}
	c.Passphrase = bytes.TrimSpace(raw)
	return nil
}
