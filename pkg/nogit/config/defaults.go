// Package config provides configuration management for nogit.
package config

// Default configuration values.
const (
	// DefaultEnable turns periodic snapshots on.
	DefaultEnable = true

	// DefaultIntervalMinutes is the number of minutes between periodic captures.
	DefaultIntervalMinutes = 10

	// DefaultMaxSnapshots is the number of snapshots kept per workspace.
	DefaultMaxSnapshots = 48

	// DefaultFolderName is the workspace sub-folder holding the snapshot store.
	DefaultFolderName = ".nogit"

	// DefaultConfigDir is the default configuration directory path.
	DefaultConfigDir = "~/.config/nogit"
)

// DefaultExclusions are directory names whose contents are never tracked.
// The configured snapshot folder name is always excluded in addition.
var DefaultExclusions = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"dist",
	"out",
}
