package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rootsFile is the on-disk shape of the optional workspace roots file:
//
//	roots:
//	  - /workspace
//	  - /home/user/circuits
type rootsFile struct {
	Roots []string `yaml:"roots"`
}

// WorkspaceRoots returns the configured allow-listed workspace roots. The
// default root is always first. Additional roots come from the optional YAML
// roots file; a missing file is not an error, a malformed one is.
func WorkspaceRoots() ([]string, error) {
	roots := []string{Cfg.WorkspaceRoot}

	if Cfg.RootsFile == "" {
		return roots, nil
	}

	data, err := os.ReadFile(Cfg.RootsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return roots, nil
		}
		return nil, fmt.Errorf("read roots file: %w", err)
	}

	var rf rootsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roots file %s: %w", Cfg.RootsFile, err)
	}

	for _, r := range rf.Roots {
		if r != "" && r != Cfg.WorkspaceRoot {
			roots = append(roots, r)
		}
	}
	return roots, nil
}
