// File: internal/site/loader.go
package site

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

type profileFile struct {
	Sites []*Definition `yaml:"sites"`
}

// ParseDefinitions decodes a YAML document of the form
//
//	sites:
//	  - id: hackernews
//	    hosts: ["news.ycombinator.com"]
//	    ...
func ParseDefinitions(data []byte) ([]*Definition, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse site profiles: %w", err)
	}
	for _, d := range f.Sites {
		if err := d.compile(); err != nil {
			return nil, err
		}
	}
	return f.Sites, nil
}

// LoadFile registers every profile defined in the YAML file at path. Profiles
// reusing a built-in id override it.
func (r *Registry) LoadFile(path string) (int, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return 0, fmt.Errorf("failed to expand profiles path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return 0, fmt.Errorf("failed to read site profiles: %w", err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return 0, err
	}
	for _, d := range defs {
		r.Register(d)
	}
	return len(defs), nil
}
