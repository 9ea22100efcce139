package registry

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

type implementationEntry struct {
	Image string `yaml:"image"`
	URL   string `yaml:"url"`
	Role  string `yaml:"role"`
}

// Load reads a registry file. The file maps implementation names to their image, source URL and
// role, in either JSON or YAML; entry order is preserved.
//
//	{"quic-go": {"image": "martenseemann/quic-go-interop:latest", "url": "...", "role": "both"}}
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read implementations file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid implementations file %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes registry data. JSON is accepted because it is a subset of YAML; decoding
// through a yaml.Node keeps the declaration order and lets us reject duplicate names, both of
// which would be lost by unmarshaling into a map.
func Parse(data []byte) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return New()
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of implementation names", root.Line)
	}
	seen := make(map[string]int)
	impls := make([]Implementation, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]
		name := keyNode.Value
		if line, dup := seen[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate implementation name %q (first defined on line %d)",
				keyNode.Line, name, line)
		}
		seen[name] = keyNode.Line
		var entry implementationEntry
		if err := valueNode.Decode(&entry); err != nil {
			return nil, fmt.Errorf("implementation %q: %w", name, err)
		}
		impls = append(impls, Implementation{
			Name:  name,
			Image: entry.Image,
			URL:   entry.URL,
			Role:  Role(strings.ToLower(strings.TrimSpace(entry.Role))),
		})
	}
	return New(impls...)
}
