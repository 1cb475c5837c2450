// Package main provides the nogit command line: manual snapshots, listing,
// retrieval and daemon control for a workspace.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
