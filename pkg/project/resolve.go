package project

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// readFile reads name from fsys. When the exact name does not exist the
// directory is searched ignoring case, so projects written on
// case-insensitive file systems keep working.
func readFile(fsys fs.FS, name string) ([]byte, string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err == nil {
		return data, name, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", err
	}

	actual, findErr := findFile(fsys, path.Dir(name), path.Base(name))
	if findErr != nil {
		return nil, "", err
	}
	data, err = fs.ReadFile(fsys, actual)
	return data, actual, err
}

// findFile 大文字小文字を無視してファイルを検索し、実際のパスを返す
func findFile(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return path.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("file not found: %s (searched in %s)", filename, dir)
}
