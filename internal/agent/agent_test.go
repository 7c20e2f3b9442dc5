package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
	"github.com/clcummin/threat-designer/internal/workflow"
)

func validThreat(name string, cat schema.StrideCategory) schema.Threat {
	return schema.Threat{
		Name:           name,
		StrideCategory: cat,
		Description:    "word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word",
		Target:         "service",
		Impact:         "impact",
		Likelihood:     schema.LikelihoodMedium,
		Mitigations:    []string{"mitigation one", "mitigation two"},
		Source:         "External Attacker",
		Vector:         "vector",
	}
}

func allCategoryThreats() []schema.Threat {
	threats := make([]schema.Threat, 0, len(schema.AllStrideCategories))
	for i, cat := range schema.AllStrideCategories {
		threats = append(threats, validThreat(string(rune('a'+i)), cat))
	}
	return threats
}

func TestApplyAction_AddThreatsUnionsByNameAndRespectsQuota(t *testing.T) {
	s := SubState{}
	action := AgentAction{Tool: ToolAddThreats, AddThreats: &AddThreatsInput{Threats: []schema.Threat{validThreat("t1", schema.StrideSpoofing)}}}

	s = applyAction(s, action)
	require.NotNil(t, s.Threats)
	assert.Len(t, s.Threats.Threats, 1)
	assert.Equal(t, 1, s.AddThreatsUses)

	revised := AgentAction{Tool: ToolAddThreats, AddThreats: &AddThreatsInput{Threats: []schema.Threat{validThreat("t1", schema.StrideTampering)}}}
	s = applyAction(s, revised)
	require.Len(t, s.Threats.Threats, 1)
	assert.Equal(t, schema.StrideTampering, s.Threats.Threats[0].StrideCategory)
	assert.Equal(t, 2, s.AddThreatsUses)

	s = applyAction(s, action)
	s = applyAction(s, action)
	assert.Equal(t, MaxAddThreatsUses, s.AddThreatsUses)

	before := len(s.Threats.Threats)
	s = applyAction(s, AgentAction{Tool: ToolAddThreats, AddThreats: &AddThreatsInput{Threats: []schema.Threat{validThreat("t2", schema.StrideRepudiation)}}})
	assert.Equal(t, MaxAddThreatsUses, s.AddThreatsUses, "quota must not increment past the cap")
	assert.Len(t, s.Threats.Threats, before, "catalog must not change once the quota is exhausted")
}

func TestApplyAction_RemoveThreatFiltersByName(t *testing.T) {
	s := SubState{Threats: &schema.ThreatsList{Threats: []schema.Threat{
		validThreat("keep", schema.StrideSpoofing),
		validThreat("drop", schema.StrideTampering),
	}}}
	s = applyAction(s, AgentAction{Tool: ToolRemoveThreat, RemoveThreat: &RemoveThreatInput{Name: "drop"}})
	require.Len(t, s.Threats.Threats, 1)
	assert.Equal(t, "keep", s.Threats.Threats[0].Name)
}

func TestApplyAction_GapAnalysisRecordsPerformedAndRespectsQuota(t *testing.T) {
	s := SubState{}
	s = applyAction(s, AgentAction{Tool: ToolGapAnalysis, GapAnalysis: &GapAnalysisInput{Stop: false, Gap: "missing DoS coverage"}})
	assert.True(t, s.GapPerformed)
	assert.Equal(t, 1, s.GapAnalysisUses)
	assert.Equal(t, []string{"missing DoS coverage"}, s.Gaps)

	for i := 0; i < 5; i++ {
		s = applyAction(s, AgentAction{Tool: ToolGapAnalysis, GapAnalysis: &GapAnalysisInput{Stop: true}})
	}
	assert.Equal(t, MaxGapAnalysisUses, s.GapAnalysisUses)
}

func TestSubState_CoverageSatisfied(t *testing.T) {
	s := SubState{Threats: &schema.ThreatsList{Threats: allCategoryThreats()}}
	assert.False(t, s.coverageSatisfied(), "gap_analysis has not run yet")
	s.GapPerformed = true
	assert.True(t, s.coverageSatisfied())
}

type fakeModel struct {
	actions []AgentAction
	calls   int
}

func (f *fakeModel) Generate(ctx context.Context, req llmprovider.GenerateRequest) (*llmprovider.GenerateResponse, error) {
	if f.calls >= len(f.actions) {
		panic("fakeModel: ran out of scripted actions")
	}
	action := f.actions[f.calls]
	f.calls++
	args, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	return &llmprovider.GenerateResponse{ToolCalls: []llmprovider.ToolCall{{ID: "1", Name: ToolChooseAction, Args: args}}}, nil
}

func (f *fakeModel) Family(modelID string) llmprovider.Family { return llmprovider.FamilyGeneric }

func testRuntimeConfig() modelconfig.RuntimeConfig {
	stage := modelconfig.StageModelConfig{ModelID: "anthropic.claude-haiku-3", MaxTokens: 1024}
	stages := map[modelconfig.Stage]modelconfig.StageModelConfig{}
	for _, st := range modelconfig.RequiredStages {
		stages[st] = stage
	}
	return modelconfig.RuntimeConfig{Provider: modelconfig.ProviderBedrock, Stages: stages}
}

func newTestDeps(t *testing.T, model llmprovider.Model) Deps {
	t.Helper()
	factory, err := llmprovider.NewFactoryWithModel(testRuntimeConfig(), model)
	require.NoError(t, err)
	st := store.New(store.Options{})
	t.Cleanup(st.Stop)
	return Deps{Store: st, Factory: factory}
}

func TestAgent_HappyPath_AddsAllCategoriesThenFinishes(t *testing.T) {
	model := &fakeModel{actions: []AgentAction{
		{Tool: ToolAddThreats, AddThreats: &AddThreatsInput{Threats: allCategoryThreats()}},
		{Tool: ToolGapAnalysis, GapAnalysis: &GapAnalysisInput{Stop: true}},
		{Tool: ToolFinish},
	}}
	deps := newTestDeps(t, model)
	deps.Store.PutStatus("job-1", store.JobStatus{State: store.StateThreat})

	out, err := New(deps).Run(context.Background(), workflow.ThreatsSubgraphInput{JobID: "job-1", Title: "X"})
	require.NoError(t, err)
	require.NotNil(t, out.Threats)
	assert.Len(t, out.Threats.Threats, len(schema.AllStrideCategories))
	assert.Empty(t, schema.MissingStrideCategories(out.Threats.Threats))
}

func TestAgent_RejectsPrematureFinishThenSucceeds(t *testing.T) {
	model := &fakeModel{actions: []AgentAction{
		{Tool: ToolFinish},
		{Tool: ToolAddThreats, AddThreats: &AddThreatsInput{Threats: allCategoryThreats()}},
		{Tool: ToolGapAnalysis, GapAnalysis: &GapAnalysisInput{Stop: true}},
		{Tool: ToolFinish},
	}}
	deps := newTestDeps(t, model)
	deps.Store.PutStatus("job-2", store.JobStatus{State: store.StateThreat})

	out, err := New(deps).Run(context.Background(), workflow.ThreatsSubgraphInput{JobID: "job-2", Title: "X"})
	require.NoError(t, err)
	assert.Equal(t, 4, model.calls, "the rejected finish must cost a turn and loop back to agent")
	assert.Empty(t, schema.MissingStrideCategories(out.Threats.Threats))
}

func TestAgent_CancelledBeforeFirstTurn(t *testing.T) {
	deps := newTestDeps(t, &fakeModel{})
	deps.Store.PutStatus("job-3", store.JobStatus{State: store.StateCancelled})

	_, err := New(deps).Run(context.Background(), workflow.ThreatsSubgraphInput{JobID: "job-3", Title: "X"})
	assert.Error(t, err)
}

func TestAgent_StarredThreatsSeedInitialCatalog(t *testing.T) {
	model := &fakeModel{actions: []AgentAction{
		{Tool: ToolAddThreats, AddThreats: &AddThreatsInput{Threats: allCategoryThreats()}},
		{Tool: ToolGapAnalysis, GapAnalysis: &GapAnalysisInput{Stop: true}},
		{Tool: ToolFinish},
	}}
	deps := newTestDeps(t, model)
	deps.Store.PutStatus("job-4", store.JobStatus{State: store.StateThreat})

	starred := []schema.Threat{validThreat("pre-existing", schema.StrideDenialOfService)}
	out, err := New(deps).Run(context.Background(), workflow.ThreatsSubgraphInput{JobID: "job-4", Title: "X", Starred: starred})
	require.NoError(t, err)

	names := map[string]bool{}
	for _, th := range out.Threats.Threats {
		names[th.Name] = true
	}
	assert.True(t, names["pre-existing"], "the starred seed threat must survive the union merge")
}
