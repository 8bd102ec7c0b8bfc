package harness

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioSuffix marks scenario files. Plan documents share the .yaml
// extension, so discovery needs a name convention to tell them apart.
const ScenarioSuffix = ".scenario.yaml"

// FindScenarios returns the scenario files under root, sorted by path.
// root may also name a single scenario file.
func FindScenarios(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ScenarioSuffix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find scenarios in %s: %w", root, err)
	}
	slices.Sort(paths)
	return paths, nil
}
