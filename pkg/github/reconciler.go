package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"orgsync/internal/logging"
	"orgsync/pkg/manifest"
)

// ReconcileError collects the sub-steps of one repository that failed. The
// change set returned alongside it is still valid.
type ReconcileError struct {
	Repository string
	Errs       []error
}

func (e *ReconcileError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("repository %s reconciled with %d error(s): %s", e.Repository, len(e.Errs), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *ReconcileError) Unwrap() []error {
	return e.Errs
}

// Reconciler brings one repository at a time in line with its desired
// configuration.
type Reconciler struct {
	client APIClient
	owner  string
	log    *logging.Logger
}

// NewReconciler creates a new reconciler instance
func NewReconciler(client APIClient, owner string, log *logging.Logger) *Reconciler {
	return &Reconciler{
		client: client,
		owner:  owner,
		log:    log,
	}
}

// Reconcile compares desired against the live repository and applies the
// difference. The sub-steps run in a fixed order: scalar settings, security,
// rulesets, status checks, topics, custom properties. A failing sub-step is
// recorded as an "error: ..." entry (or a warning, for security) and never
// stops the others. The returned error is nil, a *ReconcileError for
// sub-step failures, or the failure to read the live repository.
func (r *Reconciler) Reconcile(ctx context.Context, repo string, desired *manifest.DesiredConfig, opts ReconcileOptions) (ChangeSet, error) {
	live, err := r.client.GetRepository(ctx, r.owner, repo)
	if err != nil {
		return nil, err
	}

	changes := ChangeSet{}
	var errs []error
	record := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	record(r.reconcileSettings(ctx, repo, desired, live, changes, opts))
	r.reconcileSecurity(ctx, repo, desired.Security, changes, opts)
	record(r.reconcileRulesets(ctx, repo, desired.Rulesets, changes, opts))
	record(r.reconcileStatusChecks(ctx, repo, desired.StatusChecks, changes, opts))
	record(r.reconcileTopics(ctx, repo, desired.Topics, live, changes, opts))
	record(r.reconcileCustomProperties(repo, desired.CustomProperties, changes))

	if len(errs) > 0 {
		return changes, &ReconcileError{Repository: repo, Errs: errs}
	}
	return changes, nil
}

// reconcileSettings stages every differing scalar setting into one edit. If
// the batch is rejected, the settings are retried one at a time so that a
// single bad value does not block the rest.
func (r *Reconciler) reconcileSettings(ctx context.Context, repo string, desired *manifest.DesiredConfig, live *Repository, changes ChangeSet, opts ReconcileOptions) error {
	staged := diffSettings(&desired.Repository, live)
	if len(staged) == 0 {
		return nil
	}

	if opts.DryRun {
		for _, s := range staged {
			changes[s.name] = transition(s.from, s.to)
		}
		return nil
	}

	err := r.client.EditRepository(ctx, r.owner, repo, buildEdit(&desired.Repository, staged))
	if err == nil {
		for _, s := range staged {
			changes[s.name] = transition(s.from, s.to)
		}
		return nil
	}
	if len(staged) == 1 {
		changes[staged[0].name] = ErrorPrefix + err.Error()
		r.log.Warn("Failed to update %s on %s: %v", staged[0].name, repo, err)
		return fmt.Errorf("setting %s: %w", staged[0].name, err)
	}

	r.log.Warn("Batched settings update for %s failed, retrying individually: %v", repo, err)

	var failed []error
	for _, s := range staged {
		if err := r.client.EditRepository(ctx, r.owner, repo, buildEdit(&desired.Repository, []stagedSetting{s})); err != nil {
			changes[s.name] = ErrorPrefix + err.Error()
			r.log.Warn("Failed to update %s on %s: %v", s.name, repo, err)
			failed = append(failed, fmt.Errorf("setting %s: %w", s.name, err))
			continue
		}
		changes[s.name] = transition(s.from, s.to)
	}
	return errors.Join(failed...)
}

// securityFeature is one enable-only security toggle.
type securityFeature struct {
	name    string
	desired func(*manifest.SecuritySettings) *bool
	enabled func(ctx context.Context, c APIClient, owner, repo string) (bool, error)
	enable  func(ctx context.Context, c APIClient, owner, repo string) error
}

var securityFeatures = []securityFeature{
	{
		name:    "enable_vulnerability_alerts",
		desired: func(s *manifest.SecuritySettings) *bool { return s.VulnerabilityAlerts },
		enabled: func(ctx context.Context, c APIClient, owner, repo string) (bool, error) {
			return c.VulnerabilityAlertsEnabled(ctx, owner, repo)
		},
		enable: func(ctx context.Context, c APIClient, owner, repo string) error {
			return c.EnableVulnerabilityAlerts(ctx, owner, repo)
		},
	},
	{
		name:    "enable_automated_security_fixes",
		desired: func(s *manifest.SecuritySettings) *bool { return s.AutomatedSecurityFixes },
		enabled: func(ctx context.Context, c APIClient, owner, repo string) (bool, error) {
			return c.AutomatedSecurityFixesEnabled(ctx, owner, repo)
		},
		enable: func(ctx context.Context, c APIClient, owner, repo string) error {
			return c.EnableAutomatedSecurityFixes(ctx, owner, repo)
		},
	},
}

// reconcileSecurity enables requested features. Features are never disabled,
// and every failure is a warning only.
func (r *Reconciler) reconcileSecurity(ctx context.Context, repo string, desired *manifest.SecuritySettings, changes ChangeSet, opts ReconcileOptions) {
	if desired == nil {
		return
	}

	for _, f := range securityFeatures {
		want := f.desired(desired)
		if want == nil {
			continue
		}
		if !*want {
			r.log.Debug("%s is false for %s; disabling security features is not supported", f.name, repo)
			continue
		}

		on, err := f.enabled(ctx, r.client, r.owner, repo)
		if err != nil {
			r.log.Warn("Could not read %s for %s: %v", f.name, repo, err)
			continue
		}
		if on {
			continue
		}

		if !opts.DryRun {
			if err := f.enable(ctx, r.client, r.owner, repo); err != nil {
				r.log.Warn("Could not enable %s for %s: %v", f.name, repo, err)
				continue
			}
		}
		changes[f.name] = transition("false", "true")
	}
}

func rulesetKey(name string) string {
	return "ruleset_" + name
}

// reconcileRulesets creates or replaces each desired ruleset, matched by
// name. Live rulesets that are not desired are left alone.
func (r *Reconciler) reconcileRulesets(ctx context.Context, repo string, desired []manifest.Ruleset, changes ChangeSet, opts ReconcileOptions) error {
	if len(desired) == 0 {
		return nil
	}

	live, err := r.client.ListRulesets(ctx, r.owner, repo)
	if err != nil {
		for _, rs := range desired {
			changes[rulesetKey(rs.Name)] = ErrorPrefix + err.Error()
		}
		r.log.Warn("Could not list rulesets for %s: %v", repo, err)
		return fmt.Errorf("rulesets: %w", err)
	}

	var failed []error
	for _, rs := range desired {
		key := rulesetKey(rs.Name)
		existing := findRuleset(live, rs.Name)

		if existing == nil {
			if !opts.DryRun {
				if err := r.client.CreateRuleset(ctx, r.owner, repo, rs); err != nil {
					changes[key] = ErrorPrefix + err.Error()
					failed = append(failed, fmt.Errorf("ruleset %s: %w", rs.Name, err))
					continue
				}
			}
			changes[key] = "created"
			continue
		}

		current, err := r.client.GetRuleset(ctx, r.owner, repo, existing.ID)
		if err != nil {
			r.log.Debug("Could not read ruleset %s on %s, replacing it: %v", rs.Name, repo, err)
		} else if rulesetMatches(rs, *current) {
			continue
		}

		if !opts.DryRun {
			if err := r.client.UpdateRuleset(ctx, r.owner, repo, existing.ID, rs); err != nil {
				changes[key] = ErrorPrefix + err.Error()
				failed = append(failed, fmt.Errorf("ruleset %s: %w", rs.Name, err))
				continue
			}
		}
		changes[key] = "updated"
	}
	return errors.Join(failed...)
}

func findRuleset(live []RulesetSummary, name string) *RulesetSummary {
	for i := range live {
		if live[i].Name == name {
			return &live[i]
		}
	}
	return nil
}

// rulesetMatches reports whether live already satisfies desired. Rule
// parameters only need to agree on the keys desired sets, since GitHub
// returns extra defaults.
func rulesetMatches(desired, live manifest.Ruleset) bool {
	if desired.Target != live.Target || desired.Enforcement != live.Enforcement {
		return false
	}
	if !sameStrings(desired.Conditions.RefName.Include, live.Conditions.RefName.Include) ||
		!sameStrings(desired.Conditions.RefName.Exclude, live.Conditions.RefName.Exclude) {
		return false
	}
	if len(desired.BypassActors) != len(live.BypassActors) {
		return false
	}
	for i := range desired.BypassActors {
		d, l := desired.BypassActors[i], live.BypassActors[i]
		if d.ActorID != l.ActorID || d.ActorType != l.ActorType || (d.BypassMode != "" && d.BypassMode != l.BypassMode) {
			return false
		}
	}
	if len(desired.Rules) != len(live.Rules) {
		return false
	}
	for i := range desired.Rules {
		if desired.Rules[i].Type != live.Rules[i].Type {
			return false
		}
		if !parametersSubset(desired.Rules[i].Parameters, live.Rules[i].Parameters) {
			return false
		}
	}
	return true
}

// parametersSubset compares through JSON so that YAML ints and JSON floats
// are equal.
func parametersSubset(desired, live map[string]any) bool {
	if len(desired) == 0 {
		return true
	}
	want, err := jsonNormalize(desired)
	if err != nil {
		return false
	}
	have, err := jsonNormalize(live)
	if err != nil {
		return false
	}
	for k, v := range want {
		if !reflect.DeepEqual(v, have[k]) {
			return false
		}
	}
	return true
}

func jsonNormalize(m map[string]any) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// reconcileStatusChecks sets the required status checks of each listed
// branch. A branch is strict when any of its checks is strict.
func (r *Reconciler) reconcileStatusChecks(ctx context.Context, repo string, desired []manifest.BranchStatusChecks, changes ChangeSet, opts ReconcileOptions) error {
	var failed []error
	for _, bc := range desired {
		key := "status_checks_" + bc.Branch

		want := StatusChecks{Contexts: []string{}}
		for _, c := range bc.Checks {
			want.Contexts = append(want.Contexts, c.Context)
			want.Strict = want.Strict || c.Strict
		}

		live, err := r.client.GetRequiredStatusChecks(ctx, r.owner, repo, bc.Branch)
		if err != nil {
			changes[key] = ErrorPrefix + err.Error()
			failed = append(failed, fmt.Errorf("status checks for %s: %w", bc.Branch, err))
			continue
		}
		if live.Strict == want.Strict && sameStrings(live.Contexts, want.Contexts) {
			continue
		}

		if !opts.DryRun {
			if err := r.client.UpdateRequiredStatusChecks(ctx, r.owner, repo, bc.Branch, want); err != nil {
				changes[key] = ErrorPrefix + err.Error()
				failed = append(failed, fmt.Errorf("status checks for %s: %w", bc.Branch, err))
				continue
			}
		}
		changes[key] = "updated: " + strings.Join(want.Contexts, ", ")
	}
	return errors.Join(failed...)
}

// reconcileTopics replaces the whole topic list when it differs from live.
func (r *Reconciler) reconcileTopics(ctx context.Context, repo string, desired []string, live *Repository, changes ChangeSet, opts ReconcileOptions) error {
	if desired == nil || sameStrings(desired, live.Topics) {
		return nil
	}

	if !opts.DryRun {
		if err := r.client.ReplaceTopics(ctx, r.owner, repo, desired); err != nil {
			changes["topics"] = ErrorPrefix + err.Error()
			return fmt.Errorf("topics: %w", err)
		}
	}
	changes["topics"] = strings.Join(desired, ", ")
	return nil
}

// reconcileCustomProperties reports configured custom properties as an
// unsupported operation instead of pretending to apply them.
func (r *Reconciler) reconcileCustomProperties(repo string, desired []manifest.CustomProperty, changes ChangeSet) error {
	if len(desired) == 0 {
		return nil
	}

	names := make([]string, len(desired))
	for i, p := range desired {
		names[i] = p.Name
	}
	err := fmt.Errorf("%w: custom properties cannot be applied to %s (%s)",
		ErrUnsupportedOperation, repo, strings.Join(names, ", "))

	changes["custom_properties"] = ErrorPrefix + err.Error()
	r.log.Warn("%v", err)
	return err
}
