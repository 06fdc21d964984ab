//go:build unix

package config

import (
	"fmt"
	"io/fs"
	"os"
)

// permissive reports the group/other bits set on mode.
func permissive(mode fs.FileMode) fs.FileMode {
	return mode.Perm() & 0o077
}

// checkFilePermissions returns a warning when a config file is not private
// to its owner, or "" when it is (or cannot be stat'ed).
func checkFilePermissions(path string) string {
	info, err := os.Stat(path)
	if err != nil || permissive(info.Mode()) == 0 {
		return ""
	}
	return fmt.Sprintf("WARNING: %s has mode %04o; credentials in it are visible to other users. Restrict it with: chmod 600 %s\n\n",
		path, info.Mode().Perm(), path)
}
