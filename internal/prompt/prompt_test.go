package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/schema"
)

func TestClean_StripsControlBytesAndNulls(t *testing.T) {
	in := "hello\x00world\x01\n\tok"
	assert.Equal(t, "helloworld\n\tok", Clean(in))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", TruncateString("hello", 10))
	assert.Equal(t, "hel...", TruncateString("hello", 3))
}

func TestBuild_CanonicalOrdering(t *testing.T) {
	diagram := &Diagram{MediaType: "image/png", Data: []byte("fake-bytes")}
	msg := Build(BuildOptions{
		Diagram:     diagram,
		Description: "A payments API",
		Assumptions: []string{"TLS enforced"},
		PayloadTags: []Tag{{Name: "identified_assets_and_entities", Content: `{"assets":[]}`}},
		Directive:   "Identify system flows",
	})

	require.Len(t, msg.Parts, 4)
	assert.Equal(t, llmprovider.PartImage, msg.Parts[0].Kind)
	assert.Contains(t, msg.Parts[1].Text, "<description>")
	assert.Contains(t, msg.Parts[1].Text, "<assumptions>")
	assert.Contains(t, msg.Parts[2].Text, "<identified_assets_and_entities>")
	assert.Equal(t, "Identify system flows", msg.Parts[3].Text)
}

func TestBuild_OmitsDiagramWhenNil(t *testing.T) {
	msg := Build(BuildOptions{Directive: "go"})
	require.Len(t, msg.Parts, 1)
	assert.Equal(t, llmprovider.PartText, msg.Parts[0].Kind)
}

func TestBuild_InsertsCacheMarkerOnlyWhenSupportedAndPayloadPresent(t *testing.T) {
	withCaching := Build(BuildOptions{
		PayloadTags:     []Tag{{Name: "x", Content: "y"}},
		SupportsCaching: true,
	})
	assert.Contains(t, withCaching.Parts[0].Text, cacheMarker)

	withoutCaching := Build(BuildOptions{
		PayloadTags:     []Tag{{Name: "x", Content: "y"}},
		SupportsCaching: false,
	})
	assert.NotContains(t, withoutCaching.Parts[0].Text, cacheMarker)
}

func TestBuild_CacheMarkerPrecedesPayloadTags(t *testing.T) {
	msg := Build(BuildOptions{
		PayloadTags:     []Tag{{Name: "x", Content: "y"}},
		SupportsCaching: true,
	})
	markerIdx := strings.Index(msg.Parts[0].Text, cacheMarker)
	tagIdx := strings.Index(msg.Parts[0].Text, "<x>")
	require.GreaterOrEqual(t, markerIdx, 0)
	require.GreaterOrEqual(t, tagIdx, 0)
	assert.Less(t, markerIdx, tagIdx, "cache marker must precede the high-entropy payload tags")
}

func TestResolveThreatsVariant(t *testing.T) {
	assert.Equal(t, ThreatsVariantInitial, ResolveThreatsVariant(0, true))
	assert.Equal(t, ThreatsVariantImprovement, ResolveThreatsVariant(1, true))
	assert.Equal(t, ThreatsVariantImprovement, ResolveThreatsVariant(0, false))
}

func TestBuildThreatsPrompt_IncludesExistingThreatsOnlyOnImprovement(t *testing.T) {
	existing := &schema.ThreatsList{Threats: []schema.Threat{{Name: "t1"}}}

	initial := BuildThreatsPrompt(nil, "", nil, nil, nil, existing, ThreatsVariantInitial, false)
	for _, p := range initial.Parts {
		assert.NotContains(t, p.Text, "<threats>")
	}

	improvement := BuildThreatsPrompt(nil, "", nil, nil, nil, existing, ThreatsVariantImprovement, false)
	found := false
	for _, p := range improvement.Parts {
		if p.Kind == llmprovider.PartText {
			found = found || (len(p.Text) > 0 && contains(p.Text, "<threats>"))
		}
	}
	assert.True(t, found)
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestBuildAgentSystemPrompt_EmbedsAssumptionsAndInstructions(t *testing.T) {
	got := BuildAgentSystemPrompt([]string{"TLS enforced"}, nil, nil, "Focus on the payment flow")
	assert.Contains(t, got, "TLS enforced")
	assert.Contains(t, got, "Focus on the payment flow")
}
