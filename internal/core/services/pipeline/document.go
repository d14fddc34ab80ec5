package pipeline

import (
	"fmt"
	"os"
	"strings"

	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Section is the configuration of one process, as declared under pipeline
type Section struct {
	Alias  string
	Active bool
	node   *yaml.Node
}

// Decode fills v with the section body
func (s Section) Decode(v any) error {
	if s.node == nil {
		return nil
	}
	if err := s.node.Decode(v); err != nil {
		return apperrors.ConfigError(err, fmt.Sprintf("invalid %s section", s.Alias))
	}
	return nil
}

// Document is a parsed pipeline configuration. Sections keep the order in
// which they were declared.
type Document struct {
	Source   string
	Sections []Section
}

// ParseDocument reads a pipeline document. JSON documents are accepted too.
func ParseDocument(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, apperrors.ConfigError(err, "pipeline document is not valid YAML or JSON")
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, apperrors.ConfigError(nil, "pipeline document is empty")
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, apperrors.ConfigError(nil, "pipeline document must be a mapping")
	}

	var pipeline *yaml.Node
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value == "pipeline" {
			pipeline = top.Content[i+1]
			break
		}
	}
	if pipeline == nil {
		return nil, apperrors.ConfigError(nil, "pipeline document has no pipeline section")
	}
	if pipeline.Kind != yaml.MappingNode {
		return nil, apperrors.ConfigError(nil,
			fmt.Sprintf("line %d: pipeline must be a mapping of process alias to settings", pipeline.Line))
	}

	doc := &Document{Sections: make([]Section, 0, len(pipeline.Content)/2)}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(pipeline.Content); i += 2 {
		key, body := pipeline.Content[i], pipeline.Content[i+1]
		if seen[key.Value] {
			return nil, apperrors.ConfigError(nil, fmt.Sprintf("process %q is declared twice", key.Value))
		}
		seen[key.Value] = true

		var flags struct {
			Active bool `yaml:"active"`
		}
		if err := body.Decode(&flags); err != nil {
			return nil, apperrors.ConfigError(err, fmt.Sprintf("invalid %s section", key.Value))
		}
		doc.Sections = append(doc.Sections, Section{
			Alias:  key.Value,
			Active: flags.Active,
			node:   body,
		})
	}
	return doc, nil
}

// LoadDocument reads and parses the document at path
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ConfigError(err, fmt.Sprintf("%s is neither a configuration alias nor a readable file", path))
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	doc.Source = path
	return doc, nil
}

// Section returns the section declared for alias
func (d *Document) Section(alias string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Alias == alias {
			return s, true
		}
	}
	return Section{}, false
}

// Aliases returns every declared alias in document order
func (d *Document) Aliases() []string {
	out := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		out[i] = s.Alias
	}
	return out
}

// Active returns the aliases of active sections in document order
func (d *Document) Active() []string {
	var out []string
	for _, s := range d.Sections {
		if s.Active {
			out = append(out, s.Alias)
		}
	}
	return out
}

// pathKeyPrefix marks the settings that name files a process reads or writes
const pathKeyPrefix = "path_to_"

// Paths returns the non-empty path_to_* settings of every section, in
// document order
func (d *Document) Paths() []string {
	var out []string
	for _, s := range d.Sections {
		if s.node == nil || s.node.Kind != yaml.MappingNode {
			continue
		}
		for i := 0; i+1 < len(s.node.Content); i += 2 {
			key, value := s.node.Content[i], s.node.Content[i+1]
			if !strings.HasPrefix(key.Value, pathKeyPrefix) {
				continue
			}
			if value.Kind != yaml.ScalarNode || value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
				continue
			}
			out = append(out, value.Value)
		}
	}
	return out
}
