package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/nogit/pkg/nogit/snapshot"
)

var pathCmd = &cobra.Command{
	Use:   "path <id> <file>",
	Short: "Print where a file is stored in a snapshot",
	Long: `Print the absolute path of a file's copy inside a snapshot.

The file may be given relative to the workspace root or as an absolute path
inside the workspace. Use the output to diff or restore:

  diff "$(nogit path 20240101-120000 notes.md)" notes.md`,
	Args: cobra.ExactArgs(2),
	RunE: runPath,
}

func init() {
	rootCmd.AddCommand(pathCmd)
}

func runPath(_ *cobra.Command, args []string) error {
	rel, err := workspaceRel(args[1])
	if err != nil {
		return err
	}

	store := snapshot.New(cfg.Workspace, cfg.FolderName)
	p, err := store.Resolve(args[0], rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err != nil {
		return fmt.Errorf("%s is not in snapshot %s", rel, args[0])
	}

	_, err = fmt.Fprintln(stdout, p)
	return err
}

// workspaceRel converts a file argument to a slash-separated path relative
// to the workspace root.
func workspaceRel(file string) (string, error) {
	if !filepath.IsAbs(file) {
		return filepath.ToSlash(filepath.Clean(file)), nil
	}
	rel, err := filepath.Rel(cfg.Workspace, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", snapshot.ErrInvalidPath, file, cfg.Workspace)
	}
	return filepath.ToSlash(rel), nil
}
