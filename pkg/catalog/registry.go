package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// registryFile is the on-disk shape of a namespace registry
type registryFile struct {
	Namespaces []Namespace `yaml:"namespaces"`
}

// LoadRegistry reads a YAML namespace registry. Entries override the
// built-in namespaces by name; new names are appended.
//
//	namespaces:
//	  - name: manage
//	    spec_file: manage.json
//	    base_path: /api/v1/manage
//	    enabled: true
func LoadRegistry(path string) ([]Namespace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read namespace registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses registry YAML merged over DefaultNamespaces
func ParseRegistry(data []byte) ([]Namespace, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse namespace registry: %w", err)
	}

	merged := DefaultNamespaces()
	index := make(map[string]int, len(merged))
	for i, ns := range merged {
		index[ns.Name] = i
	}

	for _, ns := range file.Namespaces {
		if ns.Name == "" {
			return nil, fmt.Errorf("namespace registry entry missing name")
		}
		if ns.SpecFile == "" {
			return nil, fmt.Errorf("namespace %s: spec_file is required", ns.Name)
		}
		if i, ok := index[ns.Name]; ok {
			merged[i] = ns
			continue
		}
		index[ns.Name] = len(merged)
		merged = append(merged, ns)
	}

	return merged, nil
}
