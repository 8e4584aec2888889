package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads a schema from path. .yaml and .yml files are YAML; .cue files
// and directories are CUE.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema not found: %v", err), File: path}
	}
	if info.IsDir() {
		return LoadCUE(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".cue":
		return LoadCUE(path)
	}
	return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "unsupported schema format (want .yaml, .yml or .cue)", File: path}
}
