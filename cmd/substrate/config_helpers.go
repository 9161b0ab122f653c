package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/substrate-dev/substrate/internal/config"
)

// warmupTimeout bounds how long `world enable`/`world deps` wait for a
// cold backend (a Lima VM or WSL distro booting) to answer ensure_session.
const warmupTimeout = 30 * time.Second

func loadOrDefaultGlobal(path string) (config.GlobalConfig, error) {
	return config.LoadGlobalConfig(path)
}

func writeGlobalConfig(path string, global config.GlobalConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(global)
}
