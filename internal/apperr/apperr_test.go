package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus_MatchesWireTable(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, 400},
		{KindUnauthorized, 401},
		{KindCredentials, 401},
		{KindOpenAIAuth, 401},
		{KindNotFound, 404},
		{KindModelError, 422},
		{KindModelProvider, 422},
		{KindOpenAIRateLimit, 429},
		{KindInternal, 500},
	}
	for _, tc := range cases {
		e := New(tc.kind, "x")
		assert.Equal(t, tc.want, e.HTTPStatus(), tc.kind)
	}
}

func TestHTTPStatus_UnmappedKindDefaultsTo500(t *testing.T) {
	e := New(KindProviderGeneric, "x")
	assert.Equal(t, 500, e.HTTPStatus())
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(Cancelled))
	assert.True(t, IsCancelled(Wrap(KindInternal, "outer", Cancelled)))
	assert.False(t, IsCancelled(errors.New("plain error")))
	assert.False(t, IsCancelled(nil))
}

func TestRemap_ProviderKindsBecomeWireKinds(t *testing.T) {
	assert.Equal(t, KindCredentials, Remap(New(KindProviderAuth, "x")).Kind)
	assert.Equal(t, KindOpenAIRateLimit, Remap(New(KindProviderRate, "x")).Kind)
	assert.Equal(t, KindModelProvider, Remap(New(KindProviderTimeout, "x")).Kind)
	assert.Equal(t, KindModelProvider, Remap(New(KindProviderPolicy, "x")).Kind)
	assert.Equal(t, KindValidation, Remap(New(KindValidation, "x")).Kind, "non-provider kinds pass through")
}

func TestWithJobIDAndProvider_DoNotMutateOriginal(t *testing.T) {
	base := New(KindInternal, "x")
	withJob := base.WithJobID("job-1")
	withProvider := base.WithProvider("bedrock")

	assert.Empty(t, base.JobID)
	assert.Equal(t, "job-1", withJob.JobID)
	assert.Empty(t, base.Provider)
	assert.Equal(t, "bedrock", withProvider.Provider)
}
