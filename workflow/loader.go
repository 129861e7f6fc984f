package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// definitionFile is the YAML document shape for definition files: either a
// single definition at the top level or a list under "workflows".
type definitionFile struct {
	Definition `yaml:",inline"`
	Workflows  []*Definition `yaml:"workflows,omitempty"`
}

// ParseDefinitions decodes one YAML document into validated definitions.
func ParseDefinitions(data []byte) ([]*Definition, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse workflow definitions: %w", err)
	}

	var defs []*Definition
	if len(file.Workflows) > 0 {
		defs = file.Workflows
	} else {
		defs = []*Definition{{Type: file.Type, Description: file.Description, Steps: file.Steps}}
	}

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// LoadFile reads and parses one definition file.
func LoadFile(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file %s: %w", path, err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("workflow file %s: %w", path, err)
	}
	return defs, nil
}

// LoadDir loads every .yaml/.yml file in dir into the registry, in file-name
// order so later files deterministically override earlier ones.
func LoadDir(dir string, reg *Registry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read workflow dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		defs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		for _, def := range defs {
			if err := reg.Register(def); err != nil {
				return err
			}
		}
	}
	return nil
}
