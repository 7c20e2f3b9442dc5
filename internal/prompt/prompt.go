// Package prompt is the Message Builder (C4): it composes the canonical
// multimodal message spec.md §4.6 describes — diagram, optional
// description/assumptions, stage-specific payload tags, stage directive —
// and the per-stage system prompt templates, in the teacher's sprintf-based
// prompt-builder idiom (internal/llm/prompt.go's BuildXxxPrompt functions
// and TruncateString helper).
package prompt

import (
	"fmt"
	"strings"

	"github.com/clcummin/threat-designer/internal/llmprovider"
)

// Tag is one stage-specific payload block, rendered as an XML-ish tag
// wrapper around its content (e.g. <identified_assets_and_entities>...).
type Tag struct {
	Name    string
	Content string
}

func (t Tag) render() string {
	if t.Content == "" {
		return ""
	}
	return fmt.Sprintf("<%s>\n%s\n</%s>", t.Name, Clean(t.Content), t.Name)
}

// Diagram is the architecture diagram image attached to the human message.
// A nil Diagram means the image was omitted (spec.md §8's "null data blob"
// edge case): stages still run, just without the picture.
type Diagram struct {
	MediaType string
	Data      []byte
}

// cacheMarker is the sentinel text spec.md §4.6 calls for, inserted
// between the low-entropy context block and the high-entropy payload when
// the bound provider supports prompt caching.
const cacheMarker = "<!-- cache-breakpoint -->"

// Clean strips control bytes and null characters from user-supplied
// strings, per spec.md §4.6.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0 || (r < 0x20 && r != '\n' && r != '\t') {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TruncateString trims s to maxLen bytes, appending "...". Mirrors the
// teacher's internal/llm/prompt.go helper of the same name.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// BuildOptions assembles one stage's human message.
type BuildOptions struct {
	Diagram         *Diagram
	Description     string
	Assumptions     []string
	PayloadTags     []Tag
	Directive       string
	SupportsCaching bool
}

// Build composes the canonical message ordering of spec.md §4.6:
// diagram → description/assumptions → cache marker → stage payload tags →
// stage directive.
func Build(opts BuildOptions) llmprovider.Message {
	var parts []llmprovider.Part

	if opts.Diagram != nil && len(opts.Diagram.Data) > 0 {
		parts = append(parts, llmprovider.ImagePart(opts.Diagram.MediaType, opts.Diagram.Data))
	}

	var context strings.Builder
	if opts.Description != "" {
		context.WriteString(fmt.Sprintf("<description>\n%s\n</description>\n", Clean(opts.Description)))
	}
	if len(opts.Assumptions) > 0 {
		context.WriteString("<assumptions>\n")
		for _, a := range opts.Assumptions {
			context.WriteString(fmt.Sprintf("- %s\n", Clean(a)))
		}
		context.WriteString("</assumptions>\n")
	}
	if context.Len() > 0 {
		parts = append(parts, llmprovider.TextPart(context.String()))
	}

	var rendered []string
	for _, tag := range opts.PayloadTags {
		if r := tag.render(); r != "" {
			rendered = append(rendered, r)
		}
	}

	var payload strings.Builder
	if opts.SupportsCaching && len(rendered) > 0 {
		payload.WriteString(cacheMarker + "\n")
	}
	for _, r := range rendered {
		payload.WriteString(r)
		payload.WriteString("\n")
	}
	if payload.Len() > 0 {
		parts = append(parts, llmprovider.TextPart(payload.String()))
	}

	if opts.Directive != "" {
		parts = append(parts, llmprovider.TextPart(opts.Directive))
	}

	return llmprovider.Message{Role: llmprovider.RoleUser, Parts: parts}
}
