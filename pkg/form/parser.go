// Package form extracts desired state from issue bodies.
//
// Parsing is best-effort and lossy: GitHub renders issue forms in a few
// slightly different shapes, so every field is tried against an ordered list
// of matchers and the first hit wins. A field or section that is not found is
// simply absent; deciding whether that is acceptable is left to validation.
// The one hard failure is malformed YAML inside a section, reported as a
// *ParseError naming the section.
package form

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"orgsync/pkg/manifest"
)

// ParseError reports malformed YAML in one named section of a form.
type ParseError struct {
	Section string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("section %q contains invalid YAML: %v", e.Section, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// scalarField maps a form field to a path in the repository document.
type scalarField struct {
	labels    []string
	path      []string
	transform func(string) string
}

// yamlSection maps a form section to a top-level key of the document.
type yamlSection struct {
	id     string
	labels []string
	key    string
}

var repositoryFields = []scalarField{
	{labels: []string{"repo-name", "Repository Name", "Repository name"}, path: []string{manifest.SectionRepository, "name"}},
	{labels: []string{"visibility", "Visibility"}, path: []string{manifest.SectionRepository, "visibility"}, transform: strings.ToLower},
	{labels: []string{"description", "Description"}, path: []string{manifest.SectionRepository, "description"}},
}

var templateLabels = []string{"template", "template-repo", "Template Repository"}

var repositorySections = []yamlSection{
	{id: "repo-config", labels: []string{"repo-config", "Repository Configuration"}, key: manifest.SectionRepository},
	{id: "security-settings", labels: []string{"security-settings", "Security Settings"}, key: manifest.SectionSecurity},
	{id: "branch-protection", labels: []string{"branch-protection", "Branch Protection"}, key: manifest.SectionRulesets},
	{id: "status-checks", labels: []string{"status-checks", "Status Checks"}, key: manifest.SectionStatusChecks},
	{id: "custom-properties", labels: []string{"custom-properties", "Custom Properties"}, key: manifest.SectionCustomProperties},
	{id: "topics", labels: []string{"topics", "Topics"}, key: manifest.SectionTopics},
}

// RepositoryRequest is what a repository issue form asks for.
type RepositoryRequest struct {
	Document manifest.Document
	Template string
}

// Name returns the requested repository name, if any.
func (r *RepositoryRequest) Name() string {
	return r.Document.String(manifest.SectionRepository, "name")
}

// Parser holds the ordered matcher lists.
type Parser struct {
	fields   []FieldMatcher
	sections []SectionMatcher
}

// NewParser returns a parser with the default matchers.
func NewParser() *Parser {
	return &Parser{fields: DefaultFieldMatchers, sections: DefaultSectionMatchers}
}

// NewParserWithMatchers returns a parser with custom matchers.
func NewParserWithMatchers(fields []FieldMatcher, sections []SectionMatcher) *Parser {
	return &Parser{fields: fields, sections: sections}
}

// Field returns the value of the first matcher that recognises any of labels.
func (p *Parser) Field(body string, labels ...string) (string, bool) {
	for _, label := range labels {
		for _, match := range p.fields {
			if v, ok := match(body, label); ok {
				return v, true
			}
		}
	}
	return "", false
}

// Section returns the raw YAML text of the first section matched.
func (p *Parser) Section(body string, labels ...string) (string, bool) {
	for _, label := range labels {
		for _, match := range p.sections {
			if v, ok := match(body, label); ok {
				return v, true
			}
		}
	}
	return "", false
}

// ParseRepositoryRequest builds a partial repository document from an issue body.
func (p *Parser) ParseRepositoryRequest(body string) (*RepositoryRequest, error) {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	doc := manifest.Document{}

	for _, section := range repositorySections {
		raw, ok := p.Section(body, section.labels...)
		if !ok {
			continue
		}
		value, err := decodeSection(raw, section.key)
		if err != nil {
			return nil, &ParseError{Section: section.id, Err: err}
		}
		if value == nil {
			continue
		}
		doc = manifest.Merge(doc, manifest.Document{section.key: value})
	}

	// Scalar fields win over anything set in the repo-config block.
	for _, field := range repositoryFields {
		v, ok := p.Field(body, field.labels...)
		if !ok {
			continue
		}
		if field.transform != nil {
			v = field.transform(v)
		}
		doc = doc.With(v, field.path...)
	}

	req := &RepositoryRequest{Document: doc}
	if tmpl, ok := p.Field(body, templateLabels...); ok {
		req.Template = tmpl
	}
	return req, nil
}

// decodeSection parses a section's YAML. A mapping that wraps its own key
// (e.g. "rulesets: [...]" under the branch-protection heading) is unwrapped.
func decodeSection(raw, key string) (any, error) {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	if m, ok := value.(map[string]any); ok {
		if inner, wrapped := m[key]; wrapped && len(m) == 1 {
			return inner, nil
		}
	}
	return value, nil
}
