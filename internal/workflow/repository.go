package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"orgsync/internal/logging"
	"orgsync/pkg/github"
	"orgsync/pkg/manifest"
)

// Result is the outcome of one repository flow.
type Result struct {
	Repository string
	// Path is the file of record written, empty when nothing was persisted
	Path    string
	Created bool
	Changes github.ChangeSet
}

// BatchResult is the outcome of reconciling several repositories.
type BatchResult struct {
	Results []*Result
	Failed  map[string]error
	// Untracked are organization repositories without a file of record
	Untracked []string
}

// Err returns a *github.PartialFailureError when any repository failed.
func (b *BatchResult) Err() error {
	if len(b.Failed) == 0 {
		return nil
	}
	succeeded := make([]string, 0, len(b.Results))
	for _, r := range b.Results {
		if _, failed := b.Failed[r.Repository]; !failed {
			succeeded = append(succeeded, r.Repository)
		}
	}
	return github.NewPartialFailureError(succeeded, b.Failed)
}

// RepositoryWorkflow runs the repository flows against one organization.
type RepositoryWorkflow struct {
	client     github.APIClient
	store      *manifest.Store
	reconciler *github.Reconciler
	opts       Options
	log        *logging.Logger
}

// NewRepositoryWorkflow creates the repository flows.
func NewRepositoryWorkflow(client github.APIClient, store *manifest.Store, opts Options) *RepositoryWorkflow {
	return &RepositoryWorkflow{
		client:     client,
		store:      store,
		reconciler: github.NewReconciler(client, opts.Org, opts.Log),
		opts:       opts,
		log:        opts.Log,
	}
}

// Exists reports whether the repository exists in the organization.
func (w *RepositoryWorkflow) Exists(ctx context.Context, name string) (bool, error) {
	_, err := w.client.GetRepository(ctx, w.opts.Org, name)
	if err == nil {
		return true, nil
	}
	if github.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Create creates a repository from defaults, overrides and the name, then
// reconciles it and writes its file of record. template, when set, names a
// template repository to generate from.
//
// A *github.ReconcileError is returned together with a valid Result when some
// settings could not be applied.
func (w *RepositoryWorkflow) Create(ctx context.Context, name string, overrides manifest.Document, template string, opts github.ReconcileOptions) (*Result, error) {
	exists, err := w.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrRepositoryExists, w.opts.Org, name)
	}

	defaults, err := w.store.LoadDefaults(w.opts.DefaultsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	doc := manifest.MergeAll(defaults, overrides, nameLayer(name))
	desired, err := w.validate(doc)
	if err != nil {
		return nil, err
	}

	result := &Result{Repository: name, Created: true, Changes: github.ChangeSet{"repository": "created"}}
	if opts.DryRun {
		w.log.Info("Would create %s/%s", w.opts.Org, name)
		return result, nil
	}

	description := ""
	if desired.Repository.Description != nil {
		description = *desired.Repository.Description
	}
	if _, err := w.client.CreateRepository(ctx, w.opts.Org, github.NewRepository{
		Name:        name,
		Description: description,
		Visibility:  desired.Repository.Visibility,
		Template:    template,
	}); err != nil {
		return nil, fmt.Errorf("failed to create repository %s: %w", name, err)
	}
	w.log.Success("Created repository %s/%s", w.opts.Org, name)

	changes, reconcileErr := w.reconciler.Reconcile(ctx, name, desired, opts)
	if reconcileErr != nil && !isPartial(reconcileErr) {
		return result, reconcileErr
	}
	result.Changes.Merge(changes)

	if err := w.persist(ctx, name, doc, result); err != nil {
		return result, err
	}
	return result, reconcileErr
}

// Update layers overrides over the stored file of record (itself over the
// defaults), reconciles and rewrites the file of record.
func (w *RepositoryWorkflow) Update(ctx context.Context, name string, overrides manifest.Document, opts github.ReconcileOptions) (*Result, error) {
	defaults, err := w.store.LoadDefaults(w.opts.DefaultsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	stored, err := w.store.LoadRepository(name)
	if errors.Is(err, manifest.ErrNotFound) {
		w.log.Warn("No file of record for %s yet, one will be written", name)
		stored = manifest.Document{}
	} else if err != nil {
		return nil, err
	}

	doc := manifest.MergeAll(defaults, stored, overrides, nameLayer(name))
	desired, err := w.validate(doc)
	if err != nil {
		return nil, err
	}

	changes, reconcileErr := w.reconciler.Reconcile(ctx, name, desired, opts)
	if reconcileErr != nil && !isPartial(reconcileErr) {
		return nil, reconcileErr
	}

	result := &Result{Repository: name, Changes: changes}
	if opts.DryRun {
		return result, reconcileErr
	}
	if err := w.persist(ctx, name, doc, result); err != nil {
		return result, err
	}
	return result, reconcileErr
}

// Apply reconciles the named repositories from their files of record, one at
// a time. A failure is recorded against its repository and the rest continue.
// An unreadable defaults file fails the whole batch before anything is applied.
func (w *RepositoryWorkflow) Apply(ctx context.Context, names []string, opts github.ReconcileOptions) (*BatchResult, error) {
	defaults, err := w.store.LoadDefaults(w.opts.DefaultsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	batch := &BatchResult{Failed: map[string]error{}}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			batch.Failed[name] = err
			continue
		}

		w.log.Phase("Reconciling %s/%s", w.opts.Org, name)
		result, err := w.applyOne(ctx, name, defaults, opts)
		if result != nil {
			batch.Results = append(batch.Results, result)
		}
		if err != nil {
			w.log.Error("%s: %v", name, err)
			batch.Failed[name] = err
		}
	}
	return batch, nil
}

func (w *RepositoryWorkflow) applyOne(ctx context.Context, name string, defaults manifest.Document, opts github.ReconcileOptions) (*Result, error) {
	stored, err := w.store.LoadRepository(name)
	if err != nil {
		return nil, err
	}

	if declared := stored.String(manifest.SectionRepository, "name"); declared != name {
		return nil, fmt.Errorf("repository.name %q does not match directory %q; renaming is not supported", declared, name)
	}

	desired, err := w.validate(manifest.Merge(defaults, stored))
	if err != nil {
		return nil, err
	}

	changes, err := w.reconciler.Reconcile(ctx, name, desired, opts)
	if err != nil && !isPartial(err) {
		return nil, err
	}
	return &Result{Repository: name, Changes: changes}, err
}

// SyncAll reconciles every repository with a file of record and reports
// organization repositories that have none.
func (w *RepositoryWorkflow) SyncAll(ctx context.Context, opts github.ReconcileOptions) (*BatchResult, error) {
	names, err := w.store.ListRepositories()
	if err != nil {
		return nil, err
	}
	w.log.Info("Reconciling %d repositories in %s", len(names), w.opts.Org)

	batch, err := w.Apply(ctx, names, opts)
	if err != nil {
		return nil, err
	}

	live, err := w.client.ListOrganizationRepositories(ctx, w.opts.Org)
	if err != nil {
		w.log.Warn("Could not list organization repositories: %v", err)
		return batch, nil
	}
	tracked := make(map[string]bool, len(names))
	for _, n := range names {
		tracked[n] = true
	}
	for _, repo := range live {
		if !repo.Archived && !tracked[repo.Name] {
			batch.Untracked = append(batch.Untracked, repo.Name)
		}
	}
	sort.Strings(batch.Untracked)
	return batch, nil
}

// Validate merges doc over the defaults and validates the result without
// touching GitHub.
func (w *RepositoryWorkflow) Validate(doc manifest.Document) (manifest.ValidationErrors, error) {
	defaults, err := w.store.LoadDefaults(w.opts.DefaultsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	return manifest.Validate(manifest.Merge(defaults, doc), manifest.WithVisibilities(w.opts.Visibilities...)), nil
}

// validate returns manifest.ValidationErrors for any input problem, including
// values Validate accepts but that do not decode.
func (w *RepositoryWorkflow) validate(doc manifest.Document) (*manifest.DesiredConfig, error) {
	if errs := manifest.Validate(doc, manifest.WithVisibilities(w.opts.Visibilities...)); errs.HasErrors() {
		return nil, errs
	}
	desired, err := manifest.Decode(doc)
	if err != nil {
		var errs manifest.ValidationErrors
		errs.Add("configuration", "", err.Error())
		return nil, errs
	}
	return desired, nil
}

func (w *RepositoryWorkflow) persist(ctx context.Context, name string, doc manifest.Document, result *Result) error {
	path, err := w.store.SaveRepository(name, doc)
	if err != nil {
		return fmt.Errorf("failed to write file of record: %w", err)
	}
	result.Path = path
	if err := w.opts.recorder().Record(ctx, path); err != nil {
		return fmt.Errorf("failed to record %s: %w", path, err)
	}
	return nil
}

func nameLayer(name string) manifest.Document {
	return manifest.Document{manifest.SectionRepository: map[string]any{"name": name}}
}

// isPartial reports whether err only describes sub-steps that failed while
// the rest of the repository was reconciled.
func isPartial(err error) bool {
	var re *github.ReconcileError
	return errors.As(err, &re)
}
