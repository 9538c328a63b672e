package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validWorkflowJSON = `{
  "id": "11111111-1111-4111-8111-111111111111",
  "name": "linear",
  "version": "1.0.0",
  "roles": [{"id": "role-1", "name": "Anyone"}],
  "activities": [
    {"id": "22222222-2222-4222-8222-222222222222", "name": "A", "role_id": "role-1", "actor_type": "application", "inputs": [], "outputs": []},
    {"id": "33333333-3333-4333-8333-333333333333", "name": "B", "role_id": "role-1", "actor_type": "application", "inputs": [], "outputs": []}
  ],
  "edges": [
    {"id": "44444444-4444-4444-8444-444444444444", "source_id": "22222222-2222-4222-8222-222222222222", "target_id": "33333333-3333-4333-8333-333333333333"}
  ]
}`

func TestLoadValidWorkflow(t *testing.T) {
	wf, err := Load([]byte(validWorkflowJSON))
	require.NoError(t, err)
	assert.Equal(t, "linear", wf.Name)
	assert.Len(t, wf.Activities, 2)
}

func TestLoadRejectsDanglingEdge(t *testing.T) {
	bad := `{
		"id": "11111111-1111-4111-8111-111111111111",
		"name": "broken",
		"version": "1.0.0",
		"activities": [{"id": "22222222-2222-4222-8222-222222222222", "name": "A", "role_id": "r", "actor_type": "application"}],
		"edges": [{"id": "44444444-4444-4444-8444-444444444444", "source_id": "22222222-2222-4222-8222-222222222222", "target_id": "99999999-9999-4999-8999-999999999999"}]
	}`
	_, err := Load([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangling target_id")
}

func TestLoadRejectsMalformedID(t *testing.T) {
	bad := `{"id": "not-a-uuid", "name": "x", "version": "1.0.0"}`
	_, err := Load([]byte(bad))
	require.Error(t, err)
}

func TestLoadRejectsUnknownRoleReference(t *testing.T) {
	bad := `{
		"id": "11111111-1111-4111-8111-111111111111",
		"name": "x",
		"version": "1.0.0",
		"roles": [{"id": "role-1"}],
		"activities": [{"id": "22222222-2222-4222-8222-222222222222", "name": "A", "role_id": "role-missing", "actor_type": "application"}]
	}`
	_, err := Load([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared role")
}
