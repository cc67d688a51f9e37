// Package manifest holds the desired-state documents of the organization:
// repository files of record, the defaults layer, and team files. It provides
// the layered merge, the validation rules and the on-disk store.
package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is an untyped desired-state tree as decoded from YAML. Merging and
// validation work on Documents so that absent keys stay absent; Decode turns a
// merged Document into a DesiredConfig.
type Document map[string]any

// Top-level sections of a repository document.
const (
	SectionRepository       = "repository"
	SectionSecurity         = "security"
	SectionRulesets         = "rulesets"
	SectionStatusChecks     = "status_checks"
	SectionCustomProperties = "custom_properties"
	SectionTopics           = "topics"
)

// ParseDocument decodes YAML into a Document. Empty input yields an empty Document.
func ParseDocument(data []byte) (Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw == nil {
		return Document{}, nil
	}
	return Document(raw), nil
}

// Marshal encodes the document as YAML.
func (d Document) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// Section returns the mapping stored under key, if there is one.
func (d Document) Section(key string) (map[string]any, bool) {
	return asMap(d[key])
}

// Get walks a dotted path of mapping keys.
func (d Document) Get(path ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or "" when missing or not a string.
func (d Document) String(path ...string) string {
	v, ok := d.Get(path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// With returns a copy of the document with value stored at path, creating
// intermediate mappings as needed.
func (d Document) With(value any, path ...string) Document {
	out := d.Clone()
	if len(path) == 0 {
		return out
	}
	cur := map[string]any(out)
	for _, key := range path[:len(path)-1] {
		next, ok := asMap(cur[key])
		if !ok {
			next = map[string]any{}
		}
		cur[key] = next
		cur = next
	}
	cur[path[len(path)-1]] = value
	return out
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	return Document(cloneMap(d))
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if m, ok := asMap(v); ok {
		return cloneMap(m)
	}
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = cloneValue(item)
		}
		return out
	}
	if list, ok := v.([]string); ok {
		return append([]string(nil), list...)
	}
	return v
}
