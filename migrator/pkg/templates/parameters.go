package templates

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ParameterSpec lists the parameters a template declares and whether each has
// a default.
type ParameterSpec struct {
	hasDefault map[string]bool
}

// ParseParameters reads the Parameters section of body. JSON templates parse
// as YAML too.
func ParseParameters(body string) (*ParameterSpec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("could not parse template: %w", err)
	}
	spec := &ParameterSpec{hasDefault: map[string]bool{}}
	if len(doc.Content) == 0 {
		return spec, nil
	}
	params := mappingValue(doc.Content[0], "Parameters")
	if params == nil || params.Kind != yaml.MappingNode {
		return spec, nil
	}
	for i := 0; i+1 < len(params.Content); i += 2 {
		spec.hasDefault[params.Content[i].Value] = mappingValue(params.Content[i+1], "Default") != nil
	}
	return spec, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func (s *ParameterSpec) Declares(name string) bool {
	_, ok := s.hasDefault[name]
	return ok
}

// SetIfDeclared stores value under name when the template declares name, the
// value is not empty and values does not already hold one.
func (s *ParameterSpec) SetIfDeclared(values map[string]string, name string, value string) {
	if value == "" || !s.Declares(name) || values[name] != "" {
		return
	}
	values[name] = value
}

// Missing returns the sorted names of the parameters without a default that
// values leaves empty.
func (s *ParameterSpec) Missing(values map[string]string) []string {
	var missing []string
	for name, hasDefault := range s.hasDefault {
		if !hasDefault && values[name] == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
