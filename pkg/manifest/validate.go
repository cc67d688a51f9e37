package manifest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	repositoryNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	branchNamePattern     = regexp.MustCompile(`^[a-zA-Z0-9_./-]+$`)
)

// DefaultVisibilities are the visibilities accepted unless configured otherwise.
var DefaultVisibilities = []string{"internal", "private"}

// ValidationError describes one failed rule.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation error for field '%s' (value: %s): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every failed rule of one validation pass.
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e), strings.Join(messages, "; "))
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, value, message string) {
	*e = append(*e, ValidationError{Field: field, Value: value, Message: message})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Messages renders one human-readable line per error.
func (e ValidationErrors) Messages() []string {
	lines := make([]string, 0, len(e))
	for _, err := range e {
		if err.Value != "" {
			lines = append(lines, fmt.Sprintf("%s: %s (got %q)", err.Field, err.Message, err.Value))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", err.Field, err.Message))
		}
	}
	return lines
}

// Bulleted renders the errors as a markdown bullet list.
func (e ValidationErrors) Bulleted() string {
	var b strings.Builder
	for _, line := range e.Messages() {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

type validateOptions struct {
	visibilities []string
}

// ValidateOption customizes Validate.
type ValidateOption func(*validateOptions)

// WithVisibilities replaces the accepted visibility values.
func WithVisibilities(values ...string) ValidateOption {
	return func(o *validateOptions) {
		if len(values) > 0 {
			o.visibilities = values
		}
	}
}

// Valid is Validate reduced to a verdict and message lines.
func Valid(doc Document, opts ...ValidateOption) (bool, []string) {
	errs := Validate(doc, opts...)
	return !errs.HasErrors(), errs.Messages()
}

// Validate checks a merged repository document. Every rule runs; the result
// holds all failures. It accepts any input, including nil.
func Validate(doc Document, opts ...ValidateOption) ValidationErrors {
	o := validateOptions{visibilities: DefaultVisibilities}
	for _, opt := range opts {
		opt(&o)
	}

	var errs ValidationErrors

	validateRepositorySection(doc, o, &errs)
	validateNamedList(doc, SectionRulesets, &errs, validateRuleset)
	validateNamedList(doc, SectionCustomProperties, &errs, nil)
	validateRulesetNamesUnique(doc, &errs)
	validateTopics(doc, &errs)
	validateStatusChecks(doc, &errs)

	validateSecurity(doc, &errs)

	return errs
}

// Scalar repository settings and the type each must hold.
var (
	booleanSettings = []string{
		"has_issues", "has_wiki", "has_projects",
		"allow_squash_merge", "allow_merge_commit", "allow_rebase_merge", "allow_auto_merge",
		"delete_branch_on_merge", "allow_update_branch", "archived",
	}
	stringSettings = []string{"name", "description", "visibility", "default_branch"}
)

func validateSettingTypes(repo map[string]any, errs *ValidationErrors) {
	for _, key := range booleanSettings {
		if v, ok := repo[key]; ok && v != nil {
			if _, isBool := v.(bool); !isBool {
				errs.Add("repository."+key, fmt.Sprint(v), "must be true or false")
			}
		}
	}
	for _, key := range stringSettings {
		if v, ok := repo[key]; ok && v != nil {
			if _, isString := v.(string); !isString {
				errs.Add("repository."+key, fmt.Sprint(v), "must be a string")
			}
		}
	}
}

func validateSecurity(doc Document, errs *ValidationErrors) {
	v, ok := doc[SectionSecurity]
	if !ok || v == nil {
		return
	}
	security, isMap := asMap(v)
	if !isMap {
		errs.Add(SectionSecurity, "", "must be a mapping")
		return
	}
	keys := make([]string, 0, len(security))
	for key := range security {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		flag := security[key]
		if flag == nil {
			continue
		}
		if _, isBool := flag.(bool); !isBool {
			errs.Add(SectionSecurity+"."+key, fmt.Sprint(flag), "must be true or false")
		}
	}
}

func validateRepositorySection(doc Document, o validateOptions, errs *ValidationErrors) {
	raw, present := doc[SectionRepository]
	if !present || raw == nil {
		errs.Add(SectionRepository, "", "section is required")
		return
	}
	repo, ok := asMap(raw)
	if !ok {
		errs.Add(SectionRepository, "", "must be a mapping")
		return
	}

	validateSettingTypes(repo, errs)

	name, isString := repo["name"].(string)
	switch {
	case !isString && repo["name"] != nil:
	case name == "":
		errs.Add("repository.name", "", "is required")
	case !repositoryNamePattern.MatchString(name):
		errs.Add("repository.name", name, "may only contain letters, digits, '.', '_' and '-'")
	}

	visibility, isString := repo["visibility"].(string)
	switch {
	case !isString && repo["visibility"] != nil:
	case visibility == "":
		errs.Add("repository.visibility", "", "is required")
	case !contains(o.visibilities, visibility):
		errs.Add("repository.visibility", visibility, "must be one of: "+strings.Join(o.visibilities, ", "))
	}

	if branch, isString := repo["default_branch"].(string); isString {
		if !branchNamePattern.MatchString(branch) {
			errs.Add("repository.default_branch", branch, "is not a valid branch name")
		}
	}
}

// validateNamedList checks that section, when present, is a list of mappings
// that each carry a non-empty name.
func validateNamedList(doc Document, section string, errs *ValidationErrors, item func(field string, m map[string]any, errs *ValidationErrors)) {
	raw, present := doc[section]
	if !present || raw == nil {
		return
	}
	list, ok := raw.([]any)
	if !ok {
		errs.Add(section, "", "must be a list")
		return
	}

	for i, entry := range list {
		field := fmt.Sprintf("%s[%d]", section, i)
		m, ok := asMap(entry)
		if !ok {
			errs.Add(field, "", "must be a mapping")
			continue
		}
		if name, _ := m["name"].(string); name == "" {
			errs.Add(field+".name", "", "is required")
		}
		if item != nil {
			item(field, m, errs)
		}
	}
}

func validateRuleset(field string, m map[string]any, errs *ValidationErrors) {
	if v, ok := m["target"]; ok && v != nil {
		if s, _ := v.(string); s != TargetBranch && s != TargetTag {
			errs.Add(field+".target", fmt.Sprint(v), "must be one of: branch, tag")
		}
	}
	if v, ok := m["enforcement"]; ok && v != nil {
		s, _ := v.(string)
		if s != EnforcementActive && s != EnforcementDisabled && s != EnforcementEvaluate {
			errs.Add(field+".enforcement", fmt.Sprint(v), "must be one of: active, disabled, evaluate")
		}
	}
	if v, ok := m["rules"]; ok && v != nil {
		rules, isList := v.([]any)
		if !isList {
			errs.Add(field+".rules", "", "must be a list")
			return
		}
		for j, r := range rules {
			rm, isMap := asMap(r)
			if !isMap {
				errs.Add(fmt.Sprintf("%s.rules[%d]", field, j), "", "must be a mapping")
				continue
			}
			if t, _ := rm["type"].(string); t == "" {
				errs.Add(fmt.Sprintf("%s.rules[%d].type", field, j), "", "is required")
			}
		}
	}
}

// validateRulesetNamesUnique rejects two rulesets with the same name, since
// the name is the key used to match live rulesets.
func validateRulesetNamesUnique(doc Document, errs *ValidationErrors) {
	list, ok := doc[SectionRulesets].([]any)
	if !ok {
		return
	}
	seen := make(map[string]bool, len(list))
	for _, entry := range list {
		m, ok := asMap(entry)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		if seen[name] {
			errs.Add(SectionRulesets, name, "duplicate ruleset name")
		}
		seen[name] = true
	}
}

func validateTopics(doc Document, errs *ValidationErrors) {
	check := func(field string, raw any) {
		if raw == nil {
			return
		}
		if strs, ok := raw.([]string); ok {
			raw = toAnySlice(strs)
		}
		list, ok := raw.([]any)
		if !ok {
			errs.Add(field, "", "must be a list of strings")
			return
		}
		for i, t := range list {
			if s, isString := t.(string); !isString || s == "" {
				errs.Add(fmt.Sprintf("%s[%d]", field, i), fmt.Sprint(t), "must be a non-empty string")
			}
		}
	}

	check(SectionTopics, doc[SectionTopics])
	if repo, ok := doc.Section(SectionRepository); ok {
		check("repository.topics", repo["topics"])
	}
}

func validateStatusChecks(doc Document, errs *ValidationErrors) {
	raw, present := doc[SectionStatusChecks]
	if !present || raw == nil {
		return
	}
	list, ok := raw.([]any)
	if !ok {
		errs.Add(SectionStatusChecks, "", "must be a list")
		return
	}
	for i, entry := range list {
		field := fmt.Sprintf("%s[%d]", SectionStatusChecks, i)
		m, ok := asMap(entry)
		if !ok {
			errs.Add(field, "", "must be a mapping")
			continue
		}
		if branch, _ := m["branch"].(string); branch == "" {
			errs.Add(field+".branch", "", "is required")
		}
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
