// Package completionhelp has the shell completion helpers of the CLI flags.
package completionhelp

import (
	"os"
	"path/filepath"

	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/golang/glog"
)

// DataLocations returns the default data directory and the bolt files in
// it. They are the candidates of the enclave and queue file flags.
func DataLocations() []string {
	dir := utils.DataDir()
	locations := []string{dir}

	files, err := filepath.Glob(filepath.Join(dir, "*.bolt"))
	if err != nil {
		glog.V(3).Infoln("data locations:", err)
		return locations
	}
	for _, f := range files {
		if fi, err := os.Stat(f); err == nil && !fi.IsDir() {
			locations = append(locations, f)
		}
	}
	return locations
}
