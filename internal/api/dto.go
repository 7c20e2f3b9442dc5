package api

import (
	"time"

	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
)

// startRequest is spec.md §6's "Start job" request body.
type startRequest struct {
	ID           string                     `json:"id,omitempty"`
	S3Location   string                     `json:"s3_location,omitempty"`
	Iteration    int                        `json:"iteration"`
	Reasoning    modelconfig.ReasoningLevel `json:"reasoning"`
	Title        string                     `json:"title,omitempty"`
	Description  string                     `json:"description,omitempty"`
	Assumptions  []string                   `json:"assumptions"`
	Replay       bool                       `json:"replay"`
	Instructions string                     `json:"instructions,omitempty"`
}

type startResponse struct {
	ID string `json:"id"`
}

// statusResponse is spec.md §6's "Status response".
type statusResponse struct {
	ID     string         `json:"id"`
	State  store.JobState `json:"state"`
	Retry  int            `json:"retry"`
	Detail *string        `json:"detail"`
}

// trailResponse is spec.md §6's "Trail response".
type trailResponse struct {
	ID      string   `json:"id"`
	Assets  string   `json:"assets"`
	Flows   string   `json:"flows"`
	Gaps    []string `json:"gaps"`
	Threats []string `json:"threats"`
}

// resultsResponse is spec.md §6's "Results response".
type resultsResponse struct {
	JobID string            `json:"job_id"`
	State string            `json:"state"` // "Found" | "Not Found"
	Item  *store.JobResults `json:"item"`
}

// updateRequest carries the subset of JobResults a caller may mutate.
// owner/s3_location/job_id are intentionally absent: spec.md §4.7/§6 locks
// them, so there is no field for a caller to even attempt setting them.
type updateRequest struct {
	Title              *string             `json:"title,omitempty"`
	Description        *string             `json:"description,omitempty"`
	Assumptions        []string            `json:"assumptions,omitempty"`
	Assets             *schema.AssetsList  `json:"assets,omitempty"`
	SystemArchitecture *schema.FlowsList   `json:"system_architecture,omitempty"`
	ThreatList         *schema.ThreatsList `json:"threat_list,omitempty"`
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type uploadURLResponse struct {
	Presigned string `json:"presigned"`
	Name      string `json:"name"`
}

type downloadBlobResponse struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type interruptResponse struct {
	ID          string `json:"id"`
	Interrupted bool   `json:"interrupted"`
}

type allResultsResponse struct {
	Items []store.JobResults `json:"items"`
}
