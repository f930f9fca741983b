// Package filex has small filesystem helpers for staging attachment files on
// disk.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureSubDir creates dirName under the working directory if needed and
// returns its absolute path.
func EnsureSubDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// SaveFile writes data into dir under fileName and returns the full path.
// The file is readable only by the owning user; attachment exports carry
// patient data.
func SaveFile(dir, fileName string, data []byte) (string, error) {
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
