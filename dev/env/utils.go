package devenv

import (
	"fmt"
	"kadai-backend/lib/configutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// StatePrefix marks a path as relative to the state directory.
const StatePrefix = "<dev_state>"

var modName = regexp.MustCompile(`(?m)^module *([\w\-_]+)$`)

func isWorkspaceRoot(dir string) bool {
	mod, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return false
	}
	matches := modName.FindSubmatch(mod)
	return len(matches) >= 2 && string(matches[1]) == "kadai-backend"
}

func findWorkspaceRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if isWorkspaceRoot(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func GetWorkspaceRoot() (string, error) {
	return findWorkspaceRoot(".")
}

// StateDir is dev/.state inside a checkout. Installed binaries run outside
// of one, so they fall back to the user config directory.
func StateDir() (string, error) {
	if dir := os.Getenv("KADAI_STATE_DIR"); dir != "" {
		return dir, nil
	}
	root, err := GetWorkspaceRoot()
	if err == nil {
		return filepath.Join(root, "dev", ".state"), nil
	}
	config, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no workspace root and no user config dir: %w", err)
	}
	return filepath.Join(config, "kadai"), nil
}

func GetStateFilePath(path string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, path), nil
}

func GetStateFile(path string) ([]byte, error) {
	configPath, err := GetStateFilePath(path)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no file at %s", configPath)
	}
	return contents, err
}

func GetStateConfig[T any](path string) (T, error) {
	configPath, err := GetStateFilePath(path)
	if err != nil {
		var out T
		return out, err
	}
	return configutil.ReadConfig[T](configPath)
}

// ResolvePath expands a leading <dev_state> and creates the state directory
// on the way. Any other path is returned as is.
func ResolvePath(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, StatePrefix)
	if !ok {
		return path, nil
	}
	if rest != "" && rest[0] != '/' && rest[0] != os.PathSeparator {
		return path, nil
	}

	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(strings.TrimLeft(rest, "/"))), nil
}
