package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DesiredConfig is the typed view of a merged repository Document.
// Pointer fields distinguish "not configured" from a zero value; the
// reconciler leaves unconfigured settings alone.
type DesiredConfig struct {
	Repository       RepositorySettings   `yaml:"repository"`
	Security         *SecuritySettings    `yaml:"security,omitempty"`
	Rulesets         []Ruleset            `yaml:"rulesets,omitempty"`
	StatusChecks     []BranchStatusChecks `yaml:"status_checks,omitempty"`
	CustomProperties []CustomProperty     `yaml:"custom_properties,omitempty"`
	Topics           []string             `yaml:"topics,omitempty"`
}

// RepositorySettings holds the scalar repository settings.
type RepositorySettings struct {
	Name                string   `yaml:"name"`
	Description         *string  `yaml:"description,omitempty"`
	Visibility          string   `yaml:"visibility,omitempty"`
	HasIssues           *bool    `yaml:"has_issues,omitempty"`
	HasWiki             *bool    `yaml:"has_wiki,omitempty"`
	HasProjects         *bool    `yaml:"has_projects,omitempty"`
	DefaultBranch       *string  `yaml:"default_branch,omitempty"`
	AllowSquashMerge    *bool    `yaml:"allow_squash_merge,omitempty"`
	AllowMergeCommit    *bool    `yaml:"allow_merge_commit,omitempty"`
	AllowRebaseMerge    *bool    `yaml:"allow_rebase_merge,omitempty"`
	AllowAutoMerge      *bool    `yaml:"allow_auto_merge,omitempty"`
	DeleteBranchOnMerge *bool    `yaml:"delete_branch_on_merge,omitempty"`
	AllowUpdateBranch   *bool    `yaml:"allow_update_branch,omitempty"`
	Archived            *bool    `yaml:"archived,omitempty"`
	Topics              []string `yaml:"topics,omitempty"`
}

// SecuritySettings are enable-only feature flags.
type SecuritySettings struct {
	VulnerabilityAlerts    *bool `yaml:"enable_vulnerability_alerts,omitempty"`
	AutomatedSecurityFixes *bool `yaml:"enable_automated_security_fixes,omitempty"`
}

// Ruleset is a named set of branch or tag rules. Name is the identity key
// within one repository.
type Ruleset struct {
	Name         string            `yaml:"name"`
	Target       string            `yaml:"target,omitempty"`
	Enforcement  string            `yaml:"enforcement,omitempty"`
	BypassActors []BypassActor     `yaml:"bypass_actors,omitempty"`
	Conditions   RulesetConditions `yaml:"conditions,omitempty"`
	Rules        []Rule            `yaml:"rules,omitempty"`
}

// BypassActor may bypass a ruleset.
type BypassActor struct {
	ActorID    int64  `yaml:"actor_id"`
	ActorType  string `yaml:"actor_type"`
	BypassMode string `yaml:"bypass_mode,omitempty"`
}

// RulesetConditions selects the refs a ruleset applies to.
type RulesetConditions struct {
	RefName RefNameCondition `yaml:"ref_name,omitempty"`
}

// RefNameCondition holds ref-name include/exclude patterns.
type RefNameCondition struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Rule is one typed rule; Parameters are passed to GitHub as-is after defaults.
type Rule struct {
	Type       string         `yaml:"type"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
}

// BranchStatusChecks lists required status checks for one branch.
type BranchStatusChecks struct {
	Branch string        `yaml:"branch"`
	Checks []StatusCheck `yaml:"checks"`
}

// StatusCheck is one required check context.
type StatusCheck struct {
	Context string `yaml:"context"`
	Strict  bool   `yaml:"strict,omitempty"`
}

// CustomProperty is a repository custom property assignment.
type CustomProperty struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// Ruleset targets and enforcement levels.
const (
	TargetBranch = "branch"
	TargetTag    = "tag"

	EnforcementActive   = "active"
	EnforcementDisabled = "disabled"
	EnforcementEvaluate = "evaluate"
)

// Rule types with parameter defaults.
const (
	RuleTypePullRequest          = "pull_request"
	RuleTypeRequiredStatusChecks = "required_status_checks"
)

// securityAliases maps legacy camelCase security keys to their canonical names.
var securityAliases = map[string]string{
	"enableVulnerabilityAlerts":    "enable_vulnerability_alerts",
	"enableAutomatedSecurityFixes": "enable_automated_security_fixes",
}

// Decode converts a merged Document into a DesiredConfig. Topics may be given
// at the top level or under repository; the top level wins.
func Decode(doc Document) (*DesiredConfig, error) {
	normalized := normalizeSecurity(doc)

	data, err := yaml.Marshal(map[string]any(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	var cfg DesiredConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode desired configuration: %w", err)
	}

	if cfg.Topics == nil && cfg.Repository.Topics != nil {
		cfg.Topics = cfg.Repository.Topics
	}

	for i := range cfg.Rulesets {
		cfg.Rulesets[i] = cfg.Rulesets[i].WithDefaults()
	}

	return &cfg, nil
}

func normalizeSecurity(doc Document) Document {
	security, ok := doc.Section(SectionSecurity)
	if !ok {
		return doc
	}

	fixed := cloneMap(security)
	for alias, canonical := range securityAliases {
		v, ok := fixed[alias]
		if !ok {
			continue
		}
		if _, exists := fixed[canonical]; !exists {
			fixed[canonical] = v
		}
		delete(fixed, alias)
	}
	return doc.With(fixed, SectionSecurity)
}

// WithDefaults fills in the target, enforcement and rule parameter defaults.
func (r Ruleset) WithDefaults() Ruleset {
	if r.Target == "" {
		r.Target = TargetBranch
	}
	if r.Enforcement == "" {
		r.Enforcement = EnforcementActive
	}

	rules := make([]Rule, len(r.Rules))
	for i, rule := range r.Rules {
		rules[i] = rule.withDefaults()
	}
	r.Rules = rules
	return r
}

var ruleParameterDefaults = map[string]map[string]any{
	RuleTypePullRequest: {
		"dismiss_stale_reviews_on_push":     true,
		"require_code_owner_review":         true,
		"require_last_push_approval":        true,
		"required_approving_review_count":   1,
		"required_review_thread_resolution": true,
	},
	RuleTypeRequiredStatusChecks: {
		"strict_required_status_checks_policy": true,
		"required_status_checks":               []any{},
	},
}

func (r Rule) withDefaults() Rule {
	defaults, ok := ruleParameterDefaults[r.Type]
	if !ok {
		return r
	}

	params := make(map[string]any, len(defaults)+len(r.Parameters))
	for k, v := range defaults {
		params[k] = cloneValue(v)
	}
	for k, v := range r.Parameters {
		if v != nil {
			params[k] = v
		}
	}
	r.Parameters = params
	return r
}
