package utils

import (
	"os"
	"path/filepath"
)

// DataDirEnv overrides the data directory.
const DataDirEnv = "FCLI_DATA_DIR"

// DataDir is where the enclave and the queue are stored by default:
// $FCLI_DATA_DIR or ~/.findy/didcomm.
func DataDir() string {
	if d := os.Getenv(DataDirEnv); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".findy", "didcomm")
}

// DataPath returns a path under DataDir.
func DataPath(name string) string {
	return filepath.Join(DataDir(), name)
}
