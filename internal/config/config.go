// Package config holds node configuration: data directory, chain
// parameters, listen address, and the PoW-skip flag tests rely on. Shaped
// after the teacher's node/config.go (flat struct, hand-validated, no
// config-file framework).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Config is the node's effective runtime configuration.
type Config struct {
	Network  string
	DataDir  string
	BindAddr string
	LogLevel string
	SkipPOW  bool
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir mirrors the teacher's DefaultDataDir: $HOME/.wimble, with a
// relative fallback when the home directory can't be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".wimble"
	}
	return filepath.Join(home, ".wimble")
}

// Default returns the node's out-of-the-box configuration.
func Default() Config {
	return Config{
		Network:  "devnet",
		DataDir:  DefaultDataDir(),
		BindAddr: "0.0.0.0:3416",
		LogLevel: "info",
		SkipPOW:  false,
	}
}

// StorePath is the bbolt database file under DataDir.
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, "chain.db")
}

// TxHashSetDir is the directory the three body MMRs and header MMR persist
// their per-accumulator files under (spec §6: "three MMR files per
// accumulator").
func (c Config) TxHashSetDir() string {
	return filepath.Join(c.DataDir, "txhashset")
}

// Validate checks the configuration is internally consistent, following the
// teacher's ValidateConfig shape.
func Validate(c Config) error {
	if strings.TrimSpace(c.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(c.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	logLevel := strings.ToLower(strings.TrimSpace(c.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
