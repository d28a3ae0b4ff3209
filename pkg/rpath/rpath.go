package rpath

import (
	"fmt"
	"os"
	"path/filepath"
)

func ExecutableDir() (string, error) {
	exe_path, err := os.Executable()
	if err != nil {
		return "",
			fmt.Errorf("Can't find executable's location. Error: %w", err)
	}
	return filepath.Dir(exe_path), nil
}

// Returns path if it's absolute or empty, joins it
// onto base_dir otherwise
func Convert(base_dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base_dir, path)
}
