package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/halstead/scribe/internal/defaults"
)

// runInit initializes a Scribe working directory: the data directory
// for the journal and a starter config.yaml. Existing files are never
// overwritten, so re-running init on a configured installation is safe.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Scribe workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}
	fmt.Fprintf(w, "  created %s\n", dataDir)

	configPath := filepath.Join(dir, "config.yaml")
	wrote, err := writeIfMissing(configPath, defaults.ConfigYAML)
	if err != nil {
		return err
	}
	if wrote {
		fmt.Fprintf(w, "  wrote %s\n", configPath)
	} else {
		fmt.Fprintf(w, "  kept existing %s\n", configPath)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml, then run: scribe serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, reporting whether it wrote. The config may hold API
// keys, so it gets owner-only permissions.
func writeIfMissing(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
