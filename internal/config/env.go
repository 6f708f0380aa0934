package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/conneroisu/tspack/internal/errors"
)

// EnvDefines returns process.env replacements for every variable starting
// with prefix, read from the project's env file and the process environment.
// The process environment wins. A missing env file is not an error.
func EnvDefines(root, envFile, prefix string, environ []string) (map[string]string, error) {
	vars := map[string]string{}

	if envFile != "" {
		path := envFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		fileVars, err := godotenv.Read(path)
		switch {
		case err == nil:
			for k, v := range fileVars {
				vars[k] = v
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot parse env file", err).WithLocation(path, 0, 0)
		}
	}

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			if _, fromFile := vars[k]; fromFile || strings.HasPrefix(k, prefix) {
				vars[k] = v
			}
		}
	}

	defines := make(map[string]string)
	for k, v := range vars {
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		quoted, _ := json.Marshal(v)
		defines["process.env."+k] = string(quoted)
	}
	return defines, nil
}

// SortedKeys returns the keys of a define map in order, for display.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
