// Package ownership enforces per-resource access control: every tool call
// that touches a stored resource must prove the acting user owns it. All
// failure modes collapse to a denial; nothing in this package fails open.
package ownership

import (
	"fmt"
	"strings"
)

// ResourceType tags which lookup query an ownership check uses. The set is
// closed; unknown types are denied, never defaulted.
type ResourceType string

const (
	ResourceProject     ResourceType = "project"
	ResourceRequirement ResourceType = "requirement"
	ResourceTestCase    ResourceType = "test_case"
	ResourceExecution   ResourceType = "execution"
	ResourceAnalysis    ResourceType = "analysis"
	ResourceTodo        ResourceType = "todo"
	ResourceShare       ResourceType = "share"
	ResourceIntegration ResourceType = "integration"
)

// ownershipQuery is one static registry entry: the single-row lookup, the
// batched variant, and the column holding the owning user id. Fixed at
// startup, never mutated.
type ownershipQuery struct {
	ownerColumn string
	single      string
	batch       string // fmt template, %s replaced by the placeholder list
}

// Child resources (requirements, test cases, executions, analyses) resolve
// ownership through their governing project's user_id.
var queryRegistry = map[ResourceType]ownershipQuery{
	ResourceProject: {
		ownerColumn: "user_id",
		single:      `SELECT user_id FROM projects WHERE id = $1`,
		batch:       `SELECT id, user_id FROM projects WHERE id IN (%s)`,
	},
	ResourceRequirement: {
		ownerColumn: "user_id",
		single: `SELECT p.user_id FROM requirements r
			JOIN projects p ON p.id = r.project_id WHERE r.id = $1`,
		batch: `SELECT r.id, p.user_id FROM requirements r
			JOIN projects p ON p.id = r.project_id WHERE r.id IN (%s)`,
	},
	ResourceTestCase: {
		ownerColumn: "user_id",
		single: `SELECT p.user_id FROM test_cases t
			JOIN projects p ON p.id = t.project_id WHERE t.id = $1`,
		batch: `SELECT t.id, p.user_id FROM test_cases t
			JOIN projects p ON p.id = t.project_id WHERE t.id IN (%s)`,
	},
	ResourceExecution: {
		ownerColumn: "user_id",
		single: `SELECT p.user_id FROM test_executions e
			JOIN projects p ON p.id = e.project_id WHERE e.id = $1`,
		batch: `SELECT e.id, p.user_id FROM test_executions e
			JOIN projects p ON p.id = e.project_id WHERE e.id IN (%s)`,
	},
	ResourceAnalysis: {
		ownerColumn: "user_id",
		single: `SELECT p.user_id FROM analyses a
			JOIN projects p ON p.id = a.project_id WHERE a.id = $1`,
		batch: `SELECT a.id, p.user_id FROM analyses a
			JOIN projects p ON p.id = a.project_id WHERE a.id IN (%s)`,
	},
	ResourceTodo: {
		ownerColumn: "user_id",
		single:      `SELECT user_id FROM todos WHERE id = $1`,
		batch:       `SELECT id, user_id FROM todos WHERE id IN (%s)`,
	},
	ResourceShare: {
		ownerColumn: "created_by",
		single:      `SELECT created_by FROM share_links WHERE id = $1`,
		batch:       `SELECT id, created_by FROM share_links WHERE id IN (%s)`,
	},
	ResourceIntegration: {
		ownerColumn: "user_id",
		single:      `SELECT user_id FROM oauth_connections WHERE id = $1`,
		batch:       `SELECT id, user_id FROM oauth_connections WHERE id IN (%s)`,
	},
}

// toolResources maps tool names to the resource type their ownership check
// runs against. Tools absent from this map do not require ownership: that is
// an explicit opt-out for tools that only create top-level resources or read
// nothing user-scoped, not an implicit default.
var toolResources = map[string]ResourceType{
	"get_project":              ResourceProject,
	"update_project":           ResourceProject,
	"delete_project":           ResourceProject,
	"create_requirement":       ResourceProject,
	"generate_requirement":     ResourceProject,
	"bulk_delete_requirements": ResourceProject,

	"get_requirement":     ResourceRequirement,
	"update_requirement":  ResourceRequirement,
	"delete_requirement":  ResourceRequirement,
	"generate_test_cases": ResourceRequirement,

	"get_test_case":    ResourceTestCase,
	"update_test_case": ResourceTestCase,
	"delete_test_case": ResourceTestCase,
	"record_execution": ResourceTestCase,

	"get_execution":    ResourceExecution,
	"delete_execution": ResourceExecution,

	"get_analysis":    ResourceAnalysis,
	"delete_analysis": ResourceAnalysis,

	"update_todo": ResourceTodo,
	"delete_todo": ResourceTodo,

	"revoke_share": ResourceShare,

	"sync_integration":       ResourceIntegration,
	"disconnect_integration": ResourceIntegration,
}

// idParamNames is the fixed order in which tool input is probed for the
// resource id. First present key wins.
var idParamNames = []string{
	"id",
	"projectId",
	"requirementId",
	"testCaseId",
	"executionId",
	"analysisId",
	"todoId",
	"shareId",
	"integrationId",
}

// placeholders builds "$1, $2, ..." for batched IN queries.
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}
