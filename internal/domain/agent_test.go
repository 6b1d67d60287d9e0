package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHierarchy() Hierarchy {
	return Hierarchy{
		Name:          "portfolio",
		RootTag:       "portfolio",
		GuardrailName: "no_bitcoin_guardrail",
		Models:        []string{"anthropic.claude-3-haiku-20240307-v1:0"},
		Leaves: []AgentSpec{
			{Name: "news_agent", Instruction: "news"},
			{Name: "stock_data_agent", Instruction: "data", AliasName: "stock-data-alias"},
		},
		Supervisor: SupervisorSpec{
			AgentSpec: AgentSpec{Name: "portfolio_assistant", Instruction: "supervise"},
			Collaborators: []CollaboratorSpec{
				{Agent: "news_agent", Instruction: "news"},
				{Agent: "stock_data_agent", Instruction: "prices"},
			},
		},
	}
}

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status                          Status
		transitional, settled, invocable bool
	}{
		{StatusCreating, true, false, false},
		{StatusPreparing, true, false, false},
		{StatusUpdating, true, false, false},
		{StatusVersioning, true, false, false},
		{StatusDeleting, true, false, false},
		{StatusPrepared, false, true, true},
		{StatusReady, false, true, true},
		{StatusNotPrepared, false, true, false},
		{StatusFailed, false, false, false},
		{StatusNotFound, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.transitional, tt.status.Transitional())
			assert.Equal(t, tt.settled, tt.status.Settled())
			assert.Equal(t, tt.invocable, tt.status.Invocable())
		})
	}
}

func TestAliasNameFor(t *testing.T) {
	assert.Equal(t, "news-agent-alias", AliasNameFor(AgentSpec{Name: "news_agent"}))
	assert.Equal(t, "custom", AliasNameFor(AgentSpec{Name: "news_agent", AliasName: "custom"}))
}

func TestHierarchyValidate(t *testing.T) {
	require.NoError(t, testHierarchy().Validate())

	h := testHierarchy()
	h.Leaves = append(h.Leaves, AgentSpec{Name: "news_agent"})
	h.Supervisor.Collaborators = append(h.Supervisor.Collaborators, CollaboratorSpec{Agent: "ghost"})
	err := h.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), `duplicate agent name "news_agent"`)
	assert.Contains(t, err.Error(), `unknown leaf "ghost"`)

	h = testHierarchy()
	h.Models = nil
	err = h.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no models")
}

func TestHierarchyModelsFor(t *testing.T) {
	h := testHierarchy()
	assert.Equal(t, h.Models, h.ModelsFor(h.Leaves[0]))
	own := AgentSpec{Name: "x", Models: []string{"m"}}
	assert.Equal(t, []string{"m"}, h.ModelsFor(own))
}

func TestTeardownPlan(t *testing.T) {
	h := testHierarchy()
	h.Leaves = append(h.Leaves, AgentSpec{Name: "Portfolio_Shadow"})

	plan := h.TeardownPlan()
	assert.Equal(t, []string{"portfolio_assistant", "Portfolio_Shadow"}, plan.Supervisors)
	assert.Equal(t, []string{"news_agent", "stock_data_agent"}, plan.Leaves)
	assert.Equal(t, "no_bitcoin_guardrail", plan.GuardrailName)
}

func TestTeardownPlanWithoutTag(t *testing.T) {
	h := testHierarchy()
	h.RootTag = ""
	plan := h.TeardownPlan()
	assert.Equal(t, []string{"portfolio_assistant"}, plan.Supervisors)
	assert.Len(t, plan.Leaves, 2)
}
