package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rrdtools/rrdsync/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultDataDir    = filepath.Join(home, ".rrdsync")
	DefaultConfigPath = filepath.Join(home, ".rrdsync", "config.json")
)

const (
	DefaultDebounceSeconds = 2.0
	DefaultMaxTransfers    = 4
	DefaultTransferTimeout = 120.0
	DefaultSSHPort         = 22
)

// Remote describes the receiving end of the mirror.
type Remote struct {
	User   string `json:"user" mapstructure:"user"`
	Host   string `json:"host" mapstructure:"host"`
	Path   string `json:"path" mapstructure:"path"`
	SSHKey string `json:"ssh_key" mapstructure:"ssh_key"`
	Port   int    `json:"port" mapstructure:"port"`
}

// Addr returns the user@host part of an scp-style destination.
func (r *Remote) Addr() string {
	if r.User == "" {
		return r.Host
	}
	return r.User + "@" + r.Host
}

// TransferOptions enumerates every recognized rsync pass-through flag.
// They are opaque to the engine; anything not listed here is rejected
// at startup rather than silently defaulting.
type TransferOptions struct {
	Archive     bool `json:"archive" mapstructure:"archive"`
	Compress    bool `json:"compress" mapstructure:"compress"`
	Verbose     bool `json:"verbose" mapstructure:"verbose"`
	UpdateOnly  bool `json:"update_only" mapstructure:"update_only"`
	Checksum    bool `json:"checksum" mapstructure:"checksum"`
	Partial     bool `json:"partial" mapstructure:"partial"`
	Itemize     bool `json:"itemize" mapstructure:"itemize"`
	Stats       bool `json:"stats" mapstructure:"stats"`
	BWLimitKBps int  `json:"bwlimit_kbps" mapstructure:"bwlimit_kbps"`
}

type Config struct {
	SourceDir              string          `json:"source_dir" mapstructure:"source_dir"`
	DataDir                string          `json:"data_dir" mapstructure:"data_dir"`
	Remote                 Remote          `json:"remote" mapstructure:"remote"`
	DebounceSeconds        float64         `json:"debounce_seconds" mapstructure:"debounce_seconds"`
	Extensions             []string        `json:"extensions" mapstructure:"extensions"`
	MaxTransfers           int             `json:"max_transfers" mapstructure:"max_transfers"`
	TransferTimeoutSeconds float64         `json:"transfer_timeout_seconds" mapstructure:"transfer_timeout_seconds"`
	ResweepIntervalSeconds float64         `json:"resweep_interval_seconds" mapstructure:"resweep_interval_seconds"`
	Transfer               TransferOptions `json:"transfer" mapstructure:"transfer"`

	DryRun bool   `json:"-" mapstructure:"-"`
	Path   string `json:"-" mapstructure:"-"`
}

func Default() *Config {
	return &Config{
		DataDir:                DefaultDataDir,
		DebounceSeconds:        DefaultDebounceSeconds,
		Extensions:             []string{".rrd"},
		MaxTransfers:           DefaultMaxTransfers,
		TransferTimeoutSeconds: DefaultTransferTimeout,
		Remote: Remote{
			Port: DefaultSSHPort,
		},
		Transfer: TransferOptions{
			Archive:    true,
			Compress:   true,
			UpdateOnly: true,
			Partial:    true,
		},
	}
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds * float64(time.Second))
}

func (c *Config) TransferTimeout() time.Duration {
	return time.Duration(c.TransferTimeoutSeconds * float64(time.Second))
}

func (c *Config) ResweepInterval() time.Duration {
	return time.Duration(c.ResweepIntervalSeconds * float64(time.Second))
}

// Validate normalizes paths, applies defaults for zero values and
// rejects anything the engine cannot run with. A failed validation is
// fatal at startup.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return errors.New("source_dir is required")
	}

	sourceDir, err := utils.ResolvePath(c.SourceDir)
	if err != nil {
		return fmt.Errorf("source_dir: %w", err)
	}
	if !utils.DirExists(sourceDir) {
		return fmt.Errorf("source_dir %q is not a directory", sourceDir)
	}
	c.SourceDir = sourceDir

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	c.DataDir = dataDir

	if c.Remote.Host == "" {
		return errors.New("remote.host is required")
	}
	if c.Remote.User == "" {
		return errors.New("remote.user is required")
	}
	if c.Remote.Path == "" {
		return errors.New("remote.path is required")
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = DefaultSSHPort
	}
	if c.Remote.Port < 1 || c.Remote.Port > 65535 {
		return fmt.Errorf("remote.port %d out of range", c.Remote.Port)
	}
	if c.Remote.SSHKey != "" {
		key, err := utils.ResolvePath(c.Remote.SSHKey)
		if err != nil {
			return fmt.Errorf("remote.ssh_key: %w", err)
		}
		c.Remote.SSHKey = key
	}

	if c.DebounceSeconds <= 0 {
		return fmt.Errorf("debounce_seconds must be positive, got %v", c.DebounceSeconds)
	}

	if len(c.Extensions) == 0 {
		return errors.New("extensions must not be empty")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must begin with a dot", ext)
		}
	}

	if c.MaxTransfers == 0 {
		c.MaxTransfers = DefaultMaxTransfers
	}
	if c.MaxTransfers < 1 {
		return fmt.Errorf("max_transfers must be at least 1, got %d", c.MaxTransfers)
	}

	if c.TransferTimeoutSeconds < 0 {
		return fmt.Errorf("transfer_timeout_seconds must not be negative, got %v", c.TransferTimeoutSeconds)
	}
	if c.ResweepIntervalSeconds < 0 {
		return fmt.Errorf("resweep_interval_seconds must not be negative, got %v", c.ResweepIntervalSeconds)
	}
	if c.Transfer.BWLimitKBps < 0 {
		return fmt.Errorf("transfer.bwlimit_kbps must not be negative, got %d", c.Transfer.BWLimitKBps)
	}

	return nil
}
