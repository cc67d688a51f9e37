package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgsync/pkg/manifest"
)

// setupTestClient creates a client that talks to a test server and makes
// exactly one attempt per call.
func setupTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient("test-token")
	serverURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.client.BaseURL = serverURL
	client.graphql = githubv4.NewEnterpriseClient(server.URL+"/graphql", server.Client())
	client.limiter = nil
	client.SetRetryConfig(NoRetryConfig())
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-token")

	assert.NotNil(t, client.client)
	assert.NotNil(t, client.graphql)
	assert.NotNil(t, client.limiter)
	assert.Equal(t, DefaultRetryConfig(), client.retry)
}

func TestNewClientFromApp_MissingKey(t *testing.T) {
	_, err := NewClientFromApp(1, 2, "/nonexistent/key.pem")
	assert.ErrorContains(t, err, "failed to create GitHub App transport")
}

func TestClient_SetBaseURL(t *testing.T) {
	client := NewClient("test-token")
	require.NoError(t, client.SetBaseURL("https://github.example.com/api/v3/"))
	assert.Equal(t, "https://github.example.com/api/v3/", client.client.BaseURL.String())

	assert.Equal(t, "https://github.example.com/api/graphql", graphQLURL("https://github.example.com/api/v3/"))
	assert.Equal(t, "https://ghe.local/graphql", graphQLURL("https://ghe.local/"))
}

func TestClient_GetRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/svc-a", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":             1,
			"name":           "svc-a",
			"full_name":      "acme/svc-a",
			"private":        true,
			"has_wiki":       true,
			"default_branch": "main",
			"topics":         []string{"go"},
		})
	})
	mux.HandleFunc("GET /repos/acme/ghost", notFound)

	client := setupTestClient(t, mux)

	repo, err := client.GetRepository(context.Background(), "acme", "svc-a")
	require.NoError(t, err)
	assert.Equal(t, "svc-a", repo.Name)
	assert.Equal(t, "private", repo.Visibility)
	assert.True(t, repo.HasWiki)
	assert.Equal(t, []string{"go"}, repo.Topics)

	_, err = client.GetRepository(context.Background(), "acme", "ghost")
	assert.True(t, IsNotFound(err))
	assert.ErrorContains(t, err, "repository acme/ghost")
}

func TestClient_CreateRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "svc-new", body["name"])
		assert.Equal(t, "internal", body["visibility"])
		writeJSON(w, http.StatusCreated, map[string]any{"name": "svc-new", "visibility": "internal"})
	})
	mux.HandleFunc("POST /repos/acme/template-go/generate", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "svc-tpl", body["name"])
		assert.Equal(t, "acme", body["owner"])
		assert.Equal(t, true, body["private"])
		writeJSON(w, http.StatusCreated, map[string]any{"name": "svc-tpl", "private": true})
	})

	client := setupTestClient(t, mux)

	repo, err := client.CreateRepository(context.Background(), "acme", NewRepository{Name: "svc-new", Visibility: "internal"})
	require.NoError(t, err)
	assert.Equal(t, "internal", repo.Visibility)

	repo, err = client.CreateRepository(context.Background(), "acme", NewRepository{Name: "svc-tpl", Visibility: "private", Template: "acme/template-go"})
	require.NoError(t, err)
	assert.Equal(t, "private", repo.Visibility)
}

func TestClient_EditRepository_SendsOnlyStagedFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /repos/acme/svc-a", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, map[string]any{"has_wiki": false, "description": ""}, body)
		writeJSON(w, http.StatusOK, map[string]any{"name": "svc-a"})
	})

	client := setupTestClient(t, mux)
	no, empty := false, ""
	err := client.EditRepository(context.Background(), "acme", "svc-a", RepositoryEdit{HasWiki: &no, Description: &empty})
	assert.NoError(t, err)
}

func TestClient_ReplaceTopics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/acme/svc-a/topics", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, []any{}, body["names"])
		writeJSON(w, http.StatusOK, map[string]any{"names": []string{}})
	})

	client := setupTestClient(t, mux)
	assert.NoError(t, client.ReplaceTopics(context.Background(), "acme", "svc-a", nil))
}

func TestClient_ListOrganizationRepositories(t *testing.T) {
	var pages int
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme", req.Variables["org"])
		pages++

		page := map[string]any{
			"nodes":    []map[string]any{{"name": "svc-a", "visibility": "PRIVATE", "isArchived": false}},
			"pageInfo": map[string]any{"hasNextPage": true, "endCursor": "c1"},
		}
		if req.Variables["cursor"] == "c1" {
			page = map[string]any{
				"nodes":    []map[string]any{{"name": "old", "visibility": "INTERNAL", "isArchived": true}},
				"pageInfo": map[string]any{"hasNextPage": false, "endCursor": "c2"},
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"organization": map[string]any{"repositories": page},
		}})
	})

	client := setupTestClient(t, mux)
	repos, err := client.ListOrganizationRepositories(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Equal(t, []OrgRepository{
		{Name: "svc-a", Visibility: "private"},
		{Name: "old", Visibility: "internal", Archived: true},
	}, repos)
}

func TestClient_SecurityFeatures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/svc-a/vulnerability-alerts", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /repos/acme/svc-b/vulnerability-alerts", notFound)
	mux.HandleFunc("GET /repos/acme/svc-a/automated-security-fixes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "paused": false})
	})
	mux.HandleFunc("GET /repos/acme/svc-b/automated-security-fixes", notFound)

	client := setupTestClient(t, mux)
	ctx := context.Background()

	on, err := client.VulnerabilityAlertsEnabled(ctx, "acme", "svc-a")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = client.VulnerabilityAlertsEnabled(ctx, "acme", "svc-b")
	require.NoError(t, err)
	assert.False(t, on)

	on, err = client.AutomatedSecurityFixesEnabled(ctx, "acme", "svc-a")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = client.AutomatedSecurityFixesEnabled(ctx, "acme", "svc-b")
	require.NoError(t, err)
	assert.False(t, on)
}

func TestClient_Rulesets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/svc-a/rulesets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("includes_parents"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 7, "name": "main", "target": "branch", "source": "acme/svc-a", "enforcement": "active"},
		})
	})
	mux.HandleFunc("GET /repos/acme/svc-a/rulesets/7", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 7, "name": "main", "target": "branch", "source": "acme/svc-a", "enforcement": "active",
			"conditions": map[string]any{"ref_name": map[string]any{"include": []string{"~DEFAULT_BRANCH"}, "exclude": []string{}}},
			"rules": []map[string]any{
				{"type": "deletion"},
				{"type": "pull_request", "parameters": map[string]any{"required_approving_review_count": 2}},
			},
		})
	})
	mux.HandleFunc("POST /repos/acme/svc-a/rulesets", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "tags", body["name"])
		assert.NotContains(t, body, "conditions")
		rules := body["rules"].([]any)
		require.Len(t, rules, 1)
		rule := rules[0].(map[string]any)
		assert.Equal(t, "pull_request", rule["type"])
		assert.Equal(t, map[string]any{"required_approving_review_count": float64(1)}, rule["parameters"])
		writeJSON(w, http.StatusCreated, map[string]any{"id": 8, "name": "tags", "source": "acme/svc-a", "enforcement": "active"})
	})

	client := setupTestClient(t, mux)
	ctx := context.Background()

	summaries, err := client.ListRulesets(ctx, "acme", "svc-a")
	require.NoError(t, err)
	assert.Equal(t, []RulesetSummary{{ID: 7, Name: "main", Target: "branch"}}, summaries)

	rs, err := client.GetRuleset(ctx, "acme", "svc-a", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"~DEFAULT_BRANCH"}, rs.Conditions.RefName.Include)
	require.Len(t, rs.Rules, 2)
	assert.Equal(t, "deletion", rs.Rules[0].Type)
	assert.Equal(t, float64(2), rs.Rules[1].Parameters["required_approving_review_count"])

	err = client.CreateRuleset(ctx, "acme", "svc-a", manifest.Ruleset{
		Name:        "tags",
		Target:      "tag",
		Enforcement: "active",
		Rules:       []manifest.Rule{{Type: "pull_request", Parameters: map[string]any{"required_approving_review_count": 1}}},
	})
	assert.NoError(t, err)
}

func TestClient_RequiredStatusChecks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/svc-a/branches/main/protection/required_status_checks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"strict": true, "contexts": []string{"ci"}})
	})
	mux.HandleFunc("GET /repos/acme/svc-a/branches/dev/protection/required_status_checks", notFound)
	mux.HandleFunc("PATCH /repos/acme/svc-a/branches/main/protection/required_status_checks", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, false, body["strict"])
		assert.Equal(t, []any{"build"}, body["contexts"])
		writeJSON(w, http.StatusOK, map[string]any{"strict": false, "contexts": []string{"build"}})
	})

	client := setupTestClient(t, mux)
	ctx := context.Background()

	checks, err := client.GetRequiredStatusChecks(ctx, "acme", "svc-a", "main")
	require.NoError(t, err)
	assert.Equal(t, &StatusChecks{Strict: true, Contexts: []string{"ci"}}, checks)

	checks, err = client.GetRequiredStatusChecks(ctx, "acme", "svc-a", "dev")
	require.NoError(t, err)
	assert.Equal(t, &StatusChecks{}, checks)

	assert.NoError(t, client.UpdateRequiredStatusChecks(ctx, "acme", "svc-a", "main", StatusChecks{Contexts: []string{"build"}}))
}

func TestClient_Teams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/acme/teams/platform/members", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, http.StatusOK, []map[string]any{{"login": "carol"}})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/orgs/acme/teams/platform/members?page=2>; rel="next"`, r.Host))
		writeJSON(w, http.StatusOK, []map[string]any{{"login": "alice"}, {"login": "bob"}})
	})
	mux.HandleFunc("POST /orgs/acme/teams", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "Platform Admins", body["name"])
		assert.Equal(t, "closed", body["privacy"])
		assert.Equal(t, float64(10), body["parent_team_id"])
		writeJSON(w, http.StatusCreated, map[string]any{
			"id": 11, "name": "Platform Admins", "slug": "platform-admins",
			"parent": map[string]any{"id": 10, "slug": "platform"},
		})
	})
	mux.HandleFunc("PUT /orgs/acme/teams/platform/memberships/dave", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "member", decodeBody(t, r)["role"])
		writeJSON(w, http.StatusOK, map[string]any{"state": "pending"})
	})
	mux.HandleFunc("GET /orgs/acme/teams/platform/repos/acme/svc-a", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name":        "svc-a",
			"permissions": map[string]bool{"admin": false, "maintain": false, "push": true, "triage": true, "pull": true},
		})
	})
	mux.HandleFunc("GET /orgs/acme/teams/platform/repos/acme/svc-b", notFound)

	client := setupTestClient(t, mux)
	ctx := context.Background()

	members, err := client.ListTeamMembers(ctx, "acme", "platform")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, members)

	team, err := client.CreateTeam(ctx, "acme", NewTeam{Name: "Platform Admins", ParentTeamID: 10})
	require.NoError(t, err)
	assert.Equal(t, &Team{ID: 11, Name: "Platform Admins", Slug: "platform-admins", ParentSlug: "platform"}, team)

	assert.NoError(t, client.AddTeamMember(ctx, "acme", "platform", "dave"))

	perm, err := client.GetTeamRepositoryPermission(ctx, "acme", "platform", "svc-a")
	require.NoError(t, err)
	assert.Equal(t, "push", perm)

	perm, err = client.GetTeamRepositoryPermission(ctx, "acme", "platform", "svc-b")
	require.NoError(t, err)
	assert.Empty(t, perm)
}

func TestClient_Contents(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("repository:\n  name: svc-a\n"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/org-config/contents/repositories/svc-a/repository.yml", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		writeJSON(w, http.StatusOK, map[string]any{
			"type": "file", "encoding": "base64", "content": encoded,
			"path": "repositories/svc-a/repository.yml", "sha": "abc123",
		})
	})
	mux.HandleFunc("PUT /repos/acme/org-config/contents/repositories/svc-a/repository.yml", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "abc123", body["sha"])
		assert.Equal(t, "Update svc-a", body["message"])
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("new")), body["content"])
		writeJSON(w, http.StatusOK, map[string]any{"content": map[string]any{"sha": "def456"}})
	})

	client := setupTestClient(t, mux)
	ctx := context.Background()

	file, err := client.GetFile(ctx, "acme", "org-config", "repositories/svc-a/repository.yml", "main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", file.SHA)
	assert.Equal(t, "repository:\n  name: svc-a\n", string(file.Content))

	err = client.PutFile(ctx, "acme", "org-config", "repositories/svc-a/repository.yml", "Update svc-a", []byte("new"), "abc123")
	assert.NoError(t, err)
}

func TestClient_ValidationErrorIsNotRetried(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /repos/acme/svc-a", func(w http.ResponseWriter, _ *http.Request) {
		calls++
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Visibility can't be internal"})
	})

	client := setupTestClient(t, mux)
	client.SetRetryConfig(fastRetry(3))

	vis := "internal"
	err := client.EditRepository(context.Background(), "acme", "svc-a", RepositoryEdit{Visibility: &vis})

	var ghErr *GitHubError
	require.ErrorAs(t, err, &ghErr)
	assert.Equal(t, ErrorTypeValidation, ghErr.Type)
	assert.Equal(t, 1, calls)
}

func TestClient_ServerErrorIsRetried(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/alice", func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			writeJSON(w, http.StatusBadGateway, map[string]any{"message": "Bad Gateway"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"login": "alice", "name": "Alice"})
	})

	client := setupTestClient(t, mux)
	client.SetRetryConfig(fastRetry(3))

	user, err := client.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &User{Login: "alice", Name: "Alice"}, user)
	assert.Equal(t, 3, calls)
}
