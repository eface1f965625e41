// Package roundtable holds application-wide defaults shared by the roundtable packages.
package roundtable

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName       = "roundtable"
	DefaultLogDirName    = "conversations"
	DefaultPlayerName    = "Player"
	DefaultPlayerID      = "player"
	DefaultLogFilePrefix = "conversation_"
)

var (
	// DefaultConfigPath is where LoadConfig looks after the working directory.
	DefaultConfigPath = filepath.Join(userConfigDir(), DefaultAppName)
	// DefaultDataDir is the root for per-session conversation logs.
	DefaultDataDir = filepath.Join(userDataDir(), DefaultAppName)
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
