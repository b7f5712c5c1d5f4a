// cmd/edgeprompt/main.go
package main

import (
	cmd "github.com/mwiater/edgeprompt/internal/commands"
)

// Set by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
)

// main hands the build metadata to the command tree and runs it.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
