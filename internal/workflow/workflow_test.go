package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
)

// fakeModel is a scripted llmprovider.Model: each call to Generate pops the
// next scripted response (or error) off its queue, keyed by nothing more
// than call order, which is sufficient since every stage invokes the model
// exactly once per node visit.
type fakeModel struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	args []byte
	err  error
}

func (f *fakeModel) Generate(ctx context.Context, req llmprovider.GenerateRequest) (*llmprovider.GenerateResponse, error) {
	if f.calls >= len(f.responses) {
		panic("fakeModel: ran out of scripted responses")
	}
	resp := f.responses[f.calls]
	f.calls++
	if resp.err != nil {
		return nil, resp.err
	}
	return &llmprovider.GenerateResponse{
		ToolCalls: []llmprovider.ToolCall{{ID: "1", Name: req.ToolChoice.ToolName, Args: resp.args}},
	}, nil
}

func (f *fakeModel) Family(modelID string) llmprovider.Family { return llmprovider.FamilyGeneric }

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func testRuntimeConfig() modelconfig.RuntimeConfig {
	stage := modelconfig.StageModelConfig{ModelID: "anthropic.claude-haiku-3", MaxTokens: 1024}
	stages := map[modelconfig.Stage]modelconfig.StageModelConfig{}
	for _, s := range modelconfig.RequiredStages {
		stages[s] = stage
	}
	return modelconfig.RuntimeConfig{Provider: modelconfig.ProviderBedrock, Stages: stages}
}

func newTestDeps(t *testing.T, model llmprovider.Model) (Deps, *store.Store) {
	t.Helper()
	factory, err := llmprovider.NewFactoryWithModel(testRuntimeConfig(), model)
	require.NoError(t, err)
	st := store.New(store.Options{})
	t.Cleanup(st.Stop)
	return Deps{Store: st, Factory: factory, FinalizeDelay: time.Millisecond}, st
}

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

func TestFixedIteration_HappyPath(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{args: marshal(t, schema.SummaryResult{Summary: "a payments API"})},
		{args: marshal(t, schema.AssetsList{Assets: []schema.Asset{{Type: schema.AssetTypeAsset, Name: "db", Description: "datastore"}}})},
		{args: marshal(t, schema.FlowsList{DataFlows: []schema.DataFlow{{FlowDescription: "writes", SourceEntity: "api", TargetEntity: "db"}}})},
		{args: marshal(t, schema.ThreatsList{Threats: []schema.Threat{validThreat("t1", schema.StrideSpoofing)}})},
		{args: marshal(t, schema.ThreatsList{Threats: []schema.Threat{validThreat("t1", schema.StrideSpoofing), validThreat("t2", schema.StrideTampering)}})},
	}}
	deps, st := newTestDeps(t, model)

	initial := State{
		JobID:       "job-1",
		Title:       "Payments API",
		Description: "REST service over cloud DB",
		Assumptions: []string{"TLS enforced"},
		Iteration:   2,
	}

	final, err := Run(context.Background(), deps, initial)
	require.NoError(t, err)
	assert.Equal(t, 2, final.Retry)
	require.NotNil(t, final.Threats)
	assert.Len(t, final.Threats.Threats, 2)

	status, ok := st.GetStatus("job-1")
	require.True(t, ok)
	assert.Equal(t, store.StateComplete, status.State)

	results, ok := st.GetResults("job-1")
	require.True(t, ok)
	require.NotNil(t, results.CompletedAt)
	assert.Nil(t, results.Backup)
}

func TestFixedIteration_MaxRetryFinalizesWithoutAnotherCall(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{args: marshal(t, schema.SummaryResult{Summary: "x"})},
		{args: marshal(t, schema.AssetsList{})},
		{args: marshal(t, schema.FlowsList{})},
	}}
	deps, st := newTestDeps(t, model)

	initial := State{JobID: "job-2", Title: "X", Description: "Y", Iteration: 2, Retry: 2}
	final, err := Run(context.Background(), deps, initial)
	require.NoError(t, err)
	assert.Equal(t, 2, final.Retry)

	status, _ := st.GetStatus("job-2")
	assert.Equal(t, store.StateComplete, status.State)
}

func TestReplay_SkipsAssetsAndFlowsRestoresFromBackupAndResetsTrail(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{args: marshal(t, schema.ThreatsList{Threats: []schema.Threat{validThreat("t1", schema.StrideSpoofing)}})},
	}}
	deps, st := newTestDeps(t, model)

	backupAssets := &schema.AssetsList{Assets: []schema.Asset{{Type: schema.AssetTypeAsset, Name: "original-db", Description: "d"}}}
	backupFlows := &schema.FlowsList{}
	st.PutResults("job-3", store.JobResults{
		Backup: &store.ResultsSnapshot{Assets: backupAssets, SystemArchitecture: backupFlows},
	})
	st.UpdateTrail("job-3", store.TrailUpdate{Gaps: []string{"stale"}, Threats: []string{"stale"}})

	starredThreats := &schema.ThreatsList{Threats: []schema.Threat{validThreat("starred", schema.StrideTampering)}}
	initial := State{
		JobID:     "job-3",
		Title:     "X",
		Replay:    true,
		Iteration: 1,
		Threats:   starredThreats,
	}

	final, err := Run(context.Background(), deps, initial)
	require.NoError(t, err)
	require.NotNil(t, final.Assets)
	assert.Equal(t, "original-db", final.Assets.Assets[0].Name)

	trail, _ := st.GetTrail("job-3")
	assert.Empty(t, trail.Gaps)
	assert.Empty(t, trail.Threats)
}

func TestInterrupt_CancelledStatusStopsRunBeforeModelCall(t *testing.T) {
	deps, st := newTestDeps(t, &fakeModel{})
	st.PutStatus("job-4", store.JobStatus{State: store.StateCancelled})

	initial := State{JobID: "job-4", Title: "X", Description: "Y", Iteration: 1}
	_, err := Run(context.Background(), deps, initial)
	assert.True(t, apperr.IsCancelled(err))
}

func TestFinalize_CancelledDuringSyntheticDelayMarksCancelled(t *testing.T) {
	deps, st := newTestDeps(t, &fakeModel{})
	deps.FinalizeDelay = 20 * time.Millisecond
	st.PutStatus("job-5", store.JobStatus{State: store.StateFinalize})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := nodeFinalize(deps)(ctx, State{JobID: "job-5", Title: "X"})
	assert.True(t, apperr.IsCancelled(err))

	status, ok := st.GetStatus("job-5")
	require.True(t, ok)
	assert.Equal(t, store.StateCancelled, status.State)
}

func TestAutoMode_RoutesToThreatsSubgraphAndFinalizes(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{args: marshal(t, schema.SummaryResult{Summary: "x"})},
		{args: marshal(t, schema.AssetsList{})},
		{args: marshal(t, schema.FlowsList{})},
	}}
	deps, st := newTestDeps(t, model)

	runner := &fakeRunner{out: ThreatsSubgraphOutput{Threats: &schema.ThreatsList{Threats: []schema.Threat{validThreat("t1", schema.StrideSpoofing)}}}}
	deps.Runner = runner

	initial := State{JobID: "job-6", Title: "X", Description: "Y", Iteration: 0}
	final, err := Run(context.Background(), deps, initial)
	require.NoError(t, err)
	require.True(t, runner.called)
	require.NotNil(t, final.Threats)
	assert.Len(t, final.Threats.Threats, 1)

	status, _ := st.GetStatus("job-6")
	assert.Equal(t, store.StateComplete, status.State)
}

type fakeRunner struct {
	out    ThreatsSubgraphOutput
	err    error
	called bool
}

func (f *fakeRunner) Run(ctx context.Context, in ThreatsSubgraphInput) (ThreatsSubgraphOutput, error) {
	f.called = true
	return f.out, f.err
}

func TestEvaluateIterationPolicy(t *testing.T) {
	assert.True(t, evaluateIterationPolicy(15, 0, 15))
	assert.False(t, evaluateIterationPolicy(14, 0, 15))
	assert.True(t, evaluateIterationPolicy(2, 2, 15))
	assert.False(t, evaluateIterationPolicy(1, 2, 15))
	assert.False(t, evaluateIterationPolicy(5, 0, 15))
}
