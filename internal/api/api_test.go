package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcummin/threat-designer/internal/executor"
	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
	"github.com/clcummin/threat-designer/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRuntimeConfig() modelconfig.RuntimeConfig {
	stage := modelconfig.StageModelConfig{ModelID: "anthropic.claude-haiku-3", MaxTokens: 1024}
	stages := map[modelconfig.Stage]modelconfig.StageModelConfig{}
	for _, s := range modelconfig.RequiredStages {
		stages[s] = stage
	}
	return modelconfig.RuntimeConfig{Provider: modelconfig.ProviderBedrock, Stages: stages}
}

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store, *executor.Executor) {
	t.Helper()
	st := store.New(store.Options{})
	t.Cleanup(st.Stop)

	factory, err := llmprovider.NewFactoryWithModel(testRuntimeConfig(), blockingModel{})
	require.NoError(t, err)
	deps := workflow.Deps{Store: st, Factory: factory, FinalizeDelay: time.Millisecond}
	ex := executor.New(deps)

	router := NewRouter(Deps{Executor: ex, Store: st, UploadBucket: "test-bucket"})
	return router, st, ex
}

// blockingModel blocks forever; this file's handler tests only need a job
// to exist and be running, never to finish.
type blockingModel struct{}

func (blockingModel) Generate(ctx context.Context, req llmprovider.GenerateRequest) (*llmprovider.GenerateResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingModel) Family(modelID string) llmprovider.Family { return llmprovider.FamilyGeneric }

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStart_ValidatesRequiredFields(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", startRequest{Iteration: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION_ERROR", string(env.Error))
}

func TestGetStatus_UnknownJobIsNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/does-not-exist/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatus_ReturnsPersistedState(t *testing.T) {
	router, st, _ := newTestRouter(t)
	st.PutStatus("job-1", store.JobStatus{State: store.StateFlow, Retry: 3, Detail: "building flows"})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-1/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, store.StateFlow, resp.State)
	assert.Equal(t, 3, resp.Retry)
	require.NotNil(t, resp.Detail)
	assert.Equal(t, "building flows", *resp.Detail)
}

func TestGetTrail_ReturnsAssetsFlowsGapsThreats(t *testing.T) {
	router, st, _ := newTestRouter(t)
	assets := "some assets"
	st.UpdateTrail("job-1", store.TrailUpdate{Assets: &assets, Gaps: []string{"gap one"}, Threats: []string{"threat reasoning"}})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-1/trail", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp trailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "some assets", resp.Assets)
	assert.Equal(t, []string{"gap one"}, resp.Gaps)
	assert.Equal(t, []string{"threat reasoning"}, resp.Threats)
}

func TestGetResults_NotFoundStillReturns200WithNotFoundState(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/missing/results", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp resultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Not Found", resp.State)
	assert.Nil(t, resp.Item)
}

func TestUpdate_CapturesBackupOnFirstUpdateAndLocksOwnerFields(t *testing.T) {
	router, st, _ := newTestRouter(t)
	st.PutResults("job-1", store.JobResults{
		Owner: "original-owner", S3Location: "s3://bucket/key",
		Title: "Old Title", ThreatList: &schema.ThreatsList{Threats: []schema.Threat{}},
	})

	newTitle := "New Title"
	rec := doJSON(t, router, http.MethodPatch, "/api/v1/jobs/job-1", updateRequest{Title: &newTitle})
	assert.Equal(t, http.StatusOK, rec.Code)

	results, ok := st.GetResults("job-1")
	require.True(t, ok)
	assert.Equal(t, "New Title", results.Title)
	assert.Equal(t, "original-owner", results.Owner, "owner is locked: update has no field for it")
	assert.Equal(t, "s3://bucket/key", results.S3Location, "s3_location is locked: update has no field for it")
	require.NotNil(t, results.Backup, "first update captures a backup")

	// A second update must not overwrite the already-captured backup.
	anotherTitle := "Newer Title"
	doJSON(t, router, http.MethodPatch, "/api/v1/jobs/job-1", updateRequest{Title: &anotherTitle})
	results2, _ := st.GetResults("job-1")
	assert.Same(t, results.Backup, results2.Backup, "second update must not recapture the backup")
}

func TestRestore_RequiresBackupAndSetsComplete(t *testing.T) {
	router, st, _ := newTestRouter(t)
	st.PutResults("job-1", store.JobResults{Title: "X"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs/job-1/restore", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no backup yet")

	backup := &store.ResultsSnapshot{ThreatList: &schema.ThreatsList{Threats: []schema.Threat{{Name: "t1"}}}}
	st.MutateResults("job-1", func(r store.JobResults) (store.JobResults, error) {
		r.Backup = backup
		r.ThreatList = &schema.ThreatsList{Threats: []schema.Threat{{Name: "t1"}, {Name: "t2"}}}
		return r, nil
	})

	rec2 := doJSON(t, router, http.MethodPost, "/api/v1/jobs/job-1/restore", nil)
	assert.Equal(t, http.StatusOK, rec2.Code)

	results, _ := st.GetResults("job-1")
	require.NotNil(t, results.ThreatList)
	assert.Len(t, results.ThreatList.Threats, 1, "restore copies the backup's threat_list over current")

	status, _ := st.GetStatus("job-1")
	assert.Equal(t, store.StateComplete, status.State)
}

func TestDelete_RemovesJob(t *testing.T) {
	router, st, _ := newTestRouter(t)
	st.PutResults("job-1", store.JobResults{Title: "X"})

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/jobs/job-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, st.Exists("job-1"))
}

func TestGenerateUploadURLThenPutThenDownload_RoundTrips(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/uploads", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var uploadResp uploadURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploadResp))
	assert.Contains(t, uploadResp.Name, "s3://test-bucket/")

	putReq := httptest.NewRequest(http.MethodPut, uploadResp.Presigned[len("http://example.com"):], bytes.NewReader([]byte("fake-png-bytes")))
	putReq.Header.Set("Content-Type", "image/png")
	putRec := httptest.NewRecorder()
	router.ServeHTTP(putRec, putReq)
	assert.Equal(t, http.StatusNoContent, putRec.Code)

	downloadPath := "/api/v1/uploads/" + uploadResp.Name[len("s3://test-bucket/"):]
	downloadRec := doJSON(t, router, http.MethodGet, downloadPath, nil)
	assert.Equal(t, http.StatusOK, downloadRec.Code)

	var downloadResp downloadBlobResponse
	require.NoError(t, json.Unmarshal(downloadRec.Body.Bytes(), &downloadResp))
	assert.Equal(t, "image/png", downloadResp.Type)
	assert.Equal(t, []byte("fake-png-bytes"), downloadResp.Data)
}

func TestInterrupt_UnknownJobReturnsNotInterrupted(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs/does-not-exist/interrupt", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp interruptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Interrupted)
}
