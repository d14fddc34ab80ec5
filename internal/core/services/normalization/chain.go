package normalization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Step is one handler entry of a normalizer configuration
type Step struct {
	Name        string  `yaml:"-" json:"name"`
	Active      bool    `yaml:"active" json:"active"`
	Replacement *string `yaml:"replacement" json:"replacement,omitempty"`
}

// Steps keeps handler entries in the order they were declared. Key order in
// the configuration mapping is the application order of the rules.
type Steps []Step

// UnmarshalYAML walks the mapping node pair by pair so declared order survives
func (s *Steps) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*s = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: handlers must be a mapping of rule name to settings", value.Line)
	}

	steps := make(Steps, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, body := value.Content[i], value.Content[i+1]

		var step Step
		if err := body.Decode(&step); err != nil {
			return fmt.Errorf("handler %q: %w", key.Value, err)
		}
		step.Name = key.Value
		steps = append(steps, step)
	}

	*s = steps
	return nil
}

// MarshalYAML writes the steps back as an ordered mapping
func (s Steps) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, step := range s {
		body := &yaml.Node{}
		if err := body.Encode(struct {
			Active      bool    `yaml:"active"`
			Replacement *string `yaml:"replacement"`
		}{step.Active, step.Replacement}); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: step.Name},
			body,
		)
	}
	return node, nil
}

// ChainEntry binds a rule to the replacement it runs with
type ChainEntry struct {
	Name        string
	Fn          RuleFunc
	Replacement string
}

// RuleError reports which rule failed
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Chain is an ordered list of rules applied as a left fold
type Chain struct {
	entries []ChainEntry
}

// Compile builds a chain from configuration steps. Inactive steps are
// left out. Names missing from the catalog are skipped, not rejected, so a
// document written for a richer rule set still loads.
func Compile(steps Steps) *Chain {
	return CompileWithLogger(steps, slog.Default())
}

// CompileWithLogger is Compile reporting skipped names to logger
func CompileWithLogger(steps Steps, logger *slog.Logger) *Chain {
	chain := &Chain{entries: make([]ChainEntry, 0, len(steps))}

	for _, step := range steps {
		if !step.Active {
			continue
		}
		rule, ok := LookupRule(step.Name)
		if !ok {
			logger.Debug("skipping unknown normalization rule", slog.String("rule", step.Name))
			continue
		}

		replacement := rule.DefaultReplacement
		if step.Replacement != nil {
			replacement = *step.Replacement
		}
		chain.entries = append(chain.entries, ChainEntry{
			Name:        rule.Name,
			Fn:          rule.Apply,
			Replacement: replacement,
		})
	}

	return chain
}

// Append adds a custom rule after the compiled ones
func (c *Chain) Append(name string, fn RuleFunc, replacement string) {
	c.entries = append(c.entries, ChainEntry{Name: name, Fn: fn, Replacement: replacement})
}

// Apply runs every rule over text, in order
func (c *Chain) Apply(text string) (string, error) {
	var err error
	for _, entry := range c.entries {
		text, err = entry.Fn(text, entry.Replacement)
		if err != nil {
			return "", &RuleError{Rule: entry.Name, Err: err}
		}
	}
	return text, nil
}

// Names returns the rule names in application order
func (c *Chain) Names() []string {
	names := make([]string, len(c.entries))
	for i, entry := range c.entries {
		names[i] = entry.Name
	}
	return names
}

// Entries returns a copy of the chain entries
func (c *Chain) Entries() []ChainEntry {
	out := make([]ChainEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of rules
func (c *Chain) Len() int {
	return len(c.entries)
}

// Fingerprint identifies the chain by rule names and replacements. Two
// chains with the same fingerprint produce the same output, provided custom
// rules are not registered twice under one name with different behaviour.
func (c *Chain) Fingerprint() string {
	h := sha256.New()
	for _, entry := range c.entries {
		h.Write([]byte(entry.Name))
		h.Write([]byte{0})
		h.Write([]byte(entry.Replacement))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
