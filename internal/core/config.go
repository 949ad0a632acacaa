package core

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	BaseDirName = ".config/ssh-mcp"
	PidFileName = "daemon.pid"
	SocketName  = "daemon.sock"
)

// Config is the global configuration instance, populated by LoadConfig or
// GetDefaultConfig. Reload (see WatchConfig) only ever replaces this pointer
// wholesale. Nothing in internal/sshsession reads it, so a reload never
// changes a running session.
var Config *Configuration

// Configuration holds the ambient settings for the session manager daemon.
// The invariant caps from the session manager itself (MAX_OUTPUT_BUFFER,
// MAX_HISTORY, MAX_QUEUE_SIZE, MAX_COMMAND_AGE) are not here: those are
// spec-fixed constants in the sshsession package, not operator-tunable.
type Configuration struct {
	ConfigPath string // Directory containing the config file and runtime socket
	Verbose    int    // Verbosity level

	// ConnectTimeout and ExecTimeout hold the connect_timeout and
	// exec_timeout settings (defaults 10s and 15s). internal/sshsession does
	// not read them: it uses its own ConnectTimeout and DefaultExecTimeout
	// constants.
	ConnectTimeout time.Duration
	ExecTimeout    time.Duration

	// KeyRoots holds the key_roots setting. KeyMaterialLoader does not read
	// it: a relative key path is resolved against the working directory.
	KeyRoots []string

	AuditLogPath string // sqlite file for the append-only audit log
}

type hclConfig struct {
	Verbose        int      `hcl:"verbose,optional"`
	ConnectTimeout string   `hcl:"connect_timeout,optional"`
	ExecTimeout    string   `hcl:"exec_timeout,optional"`
	KeyRoots       []string `hcl:"key_roots,optional"`
	AuditLogPath   string   `hcl:"audit_log_path,optional"`
}

// GetSocketPath returns the path to the daemon's Unix domain socket.
func GetSocketPath() string {
	return filepath.Join(Config.ConfigPath, SocketName)
}

// GetPIDFilePath returns the path to the daemon's PID file.
func GetPIDFilePath() string {
	return filepath.Join(Config.ConfigPath, PidFileName)
}

// GetDefaultConfig returns a Configuration populated with built-in defaults.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Verbose:        0,
		ConnectTimeout: 10 * time.Second,
		ExecTimeout:    15 * time.Second,
		AuditLogPath:   "audit.db",
	}
}

// LoadConfig loads the HCL configuration file at path, falling back to
// built-in defaults for any field the file leaves unset. A missing file is
// not an error — callers get GetDefaultConfig() with ConfigPath filled in.
func LoadConfig(path string, configDir string) (*Configuration, error) {
	cfg := GetDefaultConfig()
	cfg.ConfigPath = configDir

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	var raw hclConfig
	if err := hclsimple.DecodeFile(path, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Verbose = raw.Verbose
	if raw.ConnectTimeout != "" {
		d, err := time.ParseDuration(raw.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid connect_timeout %q: %w", raw.ConnectTimeout, err)
		}
		cfg.ConnectTimeout = d
	}
	if raw.ExecTimeout != "" {
		d, err := time.ParseDuration(raw.ExecTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid exec_timeout %q: %w", raw.ExecTimeout, err)
		}
		cfg.ExecTimeout = d
	}
	if len(raw.KeyRoots) > 0 {
		cfg.KeyRoots = raw.KeyRoots
	}
	if raw.AuditLogPath != "" {
		cfg.AuditLogPath = raw.AuditLogPath
	}

	return cfg, nil
}

// ConfigExists reports whether a config file exists at path.
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WatchConfig reloads the config file at path on write/create/rename events
// and atomically swaps the Config pointer. Only later reads of Config see the
// new values; no ShellSession reads Config, so sessions are unaffected.
func WatchConfig(path string, configDir string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("failed to create config file watcher", "error", err)
		return
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		slog.Error("failed to watch config directory", "error", err, "path", dir)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		for event := range watcher.Events {
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := LoadConfig(path, configDir)
			if err != nil {
				slog.Warn("config reload failed, keeping previous settings", "error", err)
				continue
			}
			Config = cfg
			slog.Info("config reloaded", "path", path)
		}
	}()
}
