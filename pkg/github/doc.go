// Package github brings live GitHub state in line with the organization's
// files of record.
//
// The package includes:
// - APIClient, the narrow interface over the REST and GraphQL APIs
// - Reconciler, which applies a repository's desired configuration
// - TeamSyncer, which manages team membership, sub-teams and repository access
// - ChangeSet, the per-setting record of what a pass did
// - Error classification, retry and rate limiting shared by every call
package github
