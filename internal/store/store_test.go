package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return New(Options{MaxJobs: 2, TerminalTTL: time.Millisecond})
}

func TestPutGetStatus(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.PutStatus("job-1", JobStatus{State: StateAssets, Retry: 0})

	got, ok := s.GetStatus("job-1")
	require.True(t, ok)
	assert.Equal(t, StateAssets, got.State)
	assert.Equal(t, "job-1", got.ID)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestPutStatus_NotifiesOnStatusHook(t *testing.T) {
	var seen []JobStatus
	s := New(Options{OnStatus: func(st JobStatus) { seen = append(seen, st) }})
	defer s.Stop()

	s.PutStatus("job-1", JobStatus{State: StateAssets, Retry: 0})
	s.PutStatus("job-1", JobStatus{State: StateFlow, Retry: 0})

	require.Len(t, seen, 2)
	assert.Equal(t, StateAssets, seen[0].State)
	assert.Equal(t, StateFlow, seen[1].State)
}

func TestUpdateDetailDoesNotDisturbStateOrRetry(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.PutStatus("job-1", JobStatus{State: StateThreat, Retry: 3})
	s.UpdateDetail("job-1", "Adding threats")

	got, _ := s.GetStatus("job-1")
	assert.Equal(t, StateThreat, got.State)
	assert.Equal(t, 3, got.Retry)
	assert.Equal(t, "Adding threats", got.Detail)
}

func TestUpdateTrail_OverwriteScalarsAppendArrays(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	assets := "identified 5 assets"
	s.UpdateTrail("job-1", TrailUpdate{Assets: &assets, Gaps: []string{"gap one"}})
	s.UpdateTrail("job-1", TrailUpdate{Gaps: []string{"gap two"}, Threats: []string{"threat reasoning A"}})

	trail, ok := s.GetTrail("job-1")
	require.True(t, ok)
	assert.Equal(t, "identified 5 assets", trail.Assets)
	assert.Equal(t, []string{"gap one", "gap two"}, trail.Gaps)
	assert.Equal(t, []string{"threat reasoning A"}, trail.Threats)
}

func TestResetTrailThreadsAndGaps(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.UpdateTrail("job-1", TrailUpdate{Gaps: []string{"g"}})
	s.ResetTrailThreadsAndGaps("job-1")

	trail, _ := s.GetTrail("job-1")
	assert.Empty(t, trail.Gaps)
	assert.Empty(t, trail.Threats)
}

func TestAllJobIDs_PreservesInsertionOrder(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.PutStatus("a", JobStatus{State: StateStart})
	s.PutStatus("b", JobStatus{State: StateStart})
	s.PutStatus("c", JobStatus{State: StateStart})

	assert.Equal(t, []string{"a", "b", "c"}, s.AllJobIDs())
}

func TestDelete_RemovesFromIndex(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.PutStatus("a", JobStatus{State: StateStart})
	s.PutStatus("b", JobStatus{State: StateStart})
	s.Delete("a")

	assert.Equal(t, []string{"b"}, s.AllJobIDs())
	assert.False(t, s.Exists("a"))
}

func TestCleanup_EvictsOnlyTerminalJobsOverCapacity(t *testing.T) {
	s := newTestStore() // MaxJobs = 2, TerminalTTL = 1ms

	s.PutStatus("running", JobStatus{State: StateThreat})
	s.PutStatus("done-1", JobStatus{State: StateComplete})
	s.PutStatus("done-2", JobStatus{State: StateFailed})
	time.Sleep(5 * time.Millisecond)

	evicted := s.Cleanup(time.Now())

	assert.Equal(t, 2, evicted)
	assert.True(t, s.Exists("running"), "running jobs must never be evicted")
	assert.False(t, s.Exists("done-1"))
	assert.False(t, s.Exists("done-2"))
}

func TestCleanup_NoOpUnderCapacity(t *testing.T) {
	s := New(Options{MaxJobs: 10, TerminalTTL: time.Millisecond})
	s.PutStatus("done", JobStatus{State: StateComplete})
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 0, s.Cleanup(time.Now()))
	assert.True(t, s.Exists("done"))
}

func TestCredentials_ClearedOnRetrieval(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.PutCredentials(Credentials{AccessKey: "AKIA...", Region: "us-east-1"})

	first, err := s.TakeCredentials()
	require.NoError(t, err)
	assert.Equal(t, "AKIA...", first.AccessKey)

	_, err = s.TakeCredentials()
	assert.Error(t, err, "credentials must be cleared after retrieval")
}

func TestCredentials_ExpireAfterTTL(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.mu.Lock()
	s.creds = &Credentials{AccessKey: "AKIA...", LoadedAt: time.Now().Add(-5 * time.Hour)}
	s.mu.Unlock()

	_, err := s.TakeCredentials()
	assert.Error(t, err)
}

func TestClearAllData_PreservesCredentials(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.PutCredentials(Credentials{AccessKey: "AKIA..."})
	s.PutStatus("job-1", JobStatus{State: StateStart})
	s.PutUpload("upload-1", UploadedFile{Type: "image/png", Data: []byte("x")})

	s.ClearAllData()

	assert.Empty(t, s.AllJobIDs())
	_, ok := s.GetUpload("upload-1")
	assert.False(t, ok)

	creds, err := s.TakeCredentials()
	require.NoError(t, err, "credentials must survive ClearAllData")
	assert.Equal(t, "AKIA...", creds.AccessKey)
}

func TestPutUploadQuotaExceeded_StoresNullDataSentinel(t *testing.T) {
	s := newTestStore()
	defer s.Stop()

	s.PutUploadQuotaExceeded("upload-1", "image/png", "storage quota exceeded")

	f, ok := s.GetUpload("upload-1")
	require.True(t, ok)
	assert.Nil(t, f.Data)
	assert.Equal(t, "storage quota exceeded", f.Error)
}

func TestNormalizeS3Location(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := NormalizeS3Location("s3://My-Bucket/jobs/diagram.png")
		require.NoError(t, err)
		assert.Equal(t, "s3://my-bucket/jobs/diagram.png", got)
	})

	t.Run("strips query and fragment", func(t *testing.T) {
		got, err := NormalizeS3Location("s3://bucket/key.png?versionId=abc#frag")
		require.NoError(t, err)
		assert.Equal(t, "s3://bucket/key.png", got)
	})

	t.Run("rejects wrong scheme", func(t *testing.T) {
		_, err := NormalizeS3Location("https://bucket/key.png")
		assert.Error(t, err)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := NormalizeS3Location("   ")
		assert.Error(t, err)
	})
}
