//go:build windows

package config

import (
	"fmt"
	"os/exec"
	"strings"
)

var broadPrincipals = []string{"everyone", "authenticated users", `builtin\users`}

// checkFilePermissions returns a warning when the file's ACL grants access
// to a broad principal. Errors from icacls are ignored.
func checkFilePermissions(path string) string {
	out, err := exec.Command("icacls", path).Output()
	if err != nil {
		return ""
	}
	acl := strings.ToLower(string(out))
	for _, p := range broadPrincipals {
		if !strings.Contains(acl, p) {
			continue
		}
		return fmt.Sprintf("WARNING: %s is readable by %q; credentials in it are exposed. Restrict it with: icacls %q /inheritance:r /grant:r \"%%USERNAME%%:F\"\n\n",
			path, p, path)
	}
	return ""
}
