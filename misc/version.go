// Package misc keeps build-time program identity.
package misc

import "path/filepath"

// Values below are overwritten by the linker at build time.
var (
	appName = "composer"
	version = "dev"
	gitHash = "unknown"
)

func GetAppName() string {
	return filepath.Base(appName)
}

func GetVersion() string {
	return version
}

func GetGitHash() string {
	return gitHash
}
