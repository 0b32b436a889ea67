// Package config resolves CLI-level defaults: which config file to load
// and where the status frame lives.
package config

import (
	"os"
	"path/filepath"
)

// EnvConfig overrides the default config path.
const EnvConfig = "LEPRECHAUN_CONFIG"

// DefaultFileName is the config file looked up in the home directory.
const DefaultFileName = "leprechaun.yml"

// Path returns the config file to use: the flag value, else
// $LEPRECHAUN_CONFIG, else ~/leprechaun.yml.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(home, DefaultFileName)
}
