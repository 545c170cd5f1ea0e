package templates

import (
	"fmt"
	"os"

	"github.com/marcelrenan-web/Fisiotech-app/internal/dictation"
	"gopkg.in/yaml.v3"
)

// Manifest describes one clinical form template: its identity, the guide
// document shown as read-only reference material, and the ordered field
// catalog of the structured form. Templates without fields are free-form.
type Manifest struct {
	Metadata Metadata         `yaml:"metadata"`
	Guide    Guide            `yaml:"guide,omitempty"`
	Fields   []dictation.Field `yaml:"fields,omitempty"`
}

type Metadata struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Author      string   `yaml:"author,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

type Guide struct {
	// Path of the guide document, relative to the manifest directory.
	Path string `yaml:"path"`
}

// Load reads a manifest from disk.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate ensures a manifest contains the required fields and that the
// field catalog is well formed.
func Validate(m Manifest) error {
	if m.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if m.Metadata.Version == "" {
		return fmt.Errorf("metadata.version is required")
	}
	seen := make(map[string]struct{}, len(m.Fields))
	for i, f := range m.Fields {
		if f.ID == "" {
			return fmt.Errorf("fields[%d].id is required", i)
		}
		if f.Label == "" {
			return fmt.Errorf("fields[%d].label is required", i)
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("fields[%d].id %q is duplicated", i, f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}
