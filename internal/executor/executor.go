// Package executor implements the Job Executor & Registry (C7): the public
// entry point that starts a job's workflow run in the background, an
// active-job registry keyed by job id with cooperative cancellation tokens,
// and the race-safe status bookkeeping spec.md §4.4 describes.
//
// The registry's shape — a manager owning a map of per-job records behind a
// mutex, with cancellation and cleanup funneled through narrow methods — is
// grounded on the teacher's SiteContextManager
// (internal/driven/context_manager.go), generalized from "one record per
// site host" to "one cancellation token per running job".
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/agent"
	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/prompt"
	"github.com/clcummin/threat-designer/internal/schema"
	"github.com/clcummin/threat-designer/internal/store"
	"github.com/clcummin/threat-designer/internal/workflow"
)

// DefaultWaitTimeout is WaitForCompletion's default deadline when the caller
// passes a non-positive timeout, per spec.md §5.
const DefaultWaitTimeout = 5 * time.Minute

// pollInterval is WaitForCompletion's poll cadence, per spec.md §4.4.
const pollInterval = 1 * time.Second

// StartParams is the public entry point's input, mirroring spec.md §6's
// "Start job" request body.
type StartParams struct {
	ID           string
	S3Location   string
	Iteration    int
	Reasoning    modelconfig.ReasoningLevel
	Title        string
	Description  string
	Assumptions  []string
	Replay       bool
	Instructions string
}

// execution is one registry entry: the cancellation token and bookkeeping
// for a job's background run. Mirrors spec.md §4.4's
// "{cancel_token, status: RUNNING, start_time, task}".
type execution struct {
	cancel    context.CancelFunc
	startedAt time.Time
	done      chan struct{}
}

// Executor is the C7 public entry point. One Executor is constructed per
// process and shared across jobs; it owns no state of its own beyond the
// registry — job status/results/trail all live in the injected Store.
type Executor struct {
	deps workflow.Deps

	mu   sync.Mutex
	jobs map[string]*execution
}

// New builds an Executor around the collaborators a job's workflow run
// needs: the store (C2), model factory (C3), and the threats-agent runner
// (C6) wired in as workflow.Deps.Runner.
func New(deps workflow.Deps) *Executor {
	return &Executor{deps: deps, jobs: make(map[string]*execution)}
}

// NewAgentRunner adapts an internal/agent.Deps into the
// workflow.ThreatsSubgraphRunner seam, so callers constructing an Executor
// don't need to import internal/agent directly just to wire it in.
func NewAgentRunner(deps agent.Deps) workflow.ThreatsSubgraphRunner {
	return agent.New(deps)
}

func (e *Executor) logger() *zap.Logger {
	if e.deps.Logger != nil {
		return e.deps.Logger
	}
	return zap.NewNop()
}

// Execute is spec.md §4.4's `execute(params)`: it validates params,
// initializes either a new or replay job state, persists the START status
// and seed trail, registers a cancellation token, and schedules the
// workflow run in the background. Returns the job id immediately; the run
// itself is asynchronous.
func (e *Executor) Execute(ctx context.Context, params StartParams) (string, error) {
	if err := validateStartParams(params); err != nil {
		return "", err
	}

	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}

	var (
		initial workflow.State
		err     error
	)
	if params.Replay {
		initial, err = e.buildReplayState(id, params)
	} else {
		initial, err = e.buildNewJobState(id, params)
	}
	if err != nil {
		return "", err
	}

	e.deps.Store.PutStatus(id, store.JobStatus{State: store.StateStart, Retry: 0})

	runCtx, cancel := context.WithCancel(context.Background())
	exec := &execution{cancel: cancel, startedAt: time.Now(), done: make(chan struct{})}
	e.mu.Lock()
	e.jobs[id] = exec
	e.mu.Unlock()

	go e.run(runCtx, exec, id, initial)

	return id, nil
}

func validateStartParams(params StartParams) error {
	if params.Replay {
		if params.ID == "" {
			return apperr.New(apperr.KindValidation, "replay requires an existing job id")
		}
		return nil
	}
	if params.Title == "" || params.Description == "" {
		return apperr.New(apperr.KindValidation, "title and description are required for a new job")
	}
	return nil
}

// buildNewJobState loads the diagram (if an upload key was supplied) and
// assembles a fresh workflow.State for a new job.
func (e *Executor) buildNewJobState(id string, params StartParams) (workflow.State, error) {
	diagram, caching, err := e.loadDiagram(id, params.S3Location)
	if err != nil {
		return workflow.State{}, err
	}

	e.deps.Store.PutResults(id, store.JobResults{
		S3Location:  params.S3Location,
		Title:       params.Title,
		Description: params.Description,
		Assumptions: params.Assumptions,
	})

	return workflow.State{
		JobID:           id,
		Title:           params.Title,
		Description:     params.Description,
		Assumptions:     params.Assumptions,
		Instructions:    params.Instructions,
		Diagram:         diagram,
		SupportsCaching: caching,
		Iteration:       params.Iteration,
		ReasoningLevel:  params.Reasoning,
		Replay:          false,
	}, nil
}

// buildReplayState reads the existing results record, filters threats to
// starred-only (spec.md §8 scenario 5), captures a backup snapshot of the
// prior results, and resets the trail's gaps/threats arrays.
func (e *Executor) buildReplayState(id string, params StartParams) (workflow.State, error) {
	existing, ok := e.deps.Store.GetResults(id)
	if !ok {
		return workflow.State{}, apperr.New(apperr.KindNotFound, "no existing results for replay").WithJobID(id)
	}

	starred := schema.FilterStarred(threatsOf(existing.ThreatList))

	if err := e.deps.Store.MutateResults(id, func(r store.JobResults) (store.JobResults, error) {
		if r.Backup == nil {
			r.Backup = &store.ResultsSnapshot{
				Assets:             r.Assets,
				SystemArchitecture: r.SystemArchitecture,
				ThreatList:         r.ThreatList,
			}
		}
		return r, nil
	}); err != nil {
		return workflow.State{}, apperr.Wrap(apperr.KindInternal, "capture replay backup", err).WithJobID(id)
	}
	e.deps.Store.ResetTrailThreadsAndGaps(id)

	diagram, caching, err := e.loadDiagram(id, existing.S3Location)
	if err != nil {
		return workflow.State{}, err
	}

	return workflow.State{
		JobID:           id,
		Title:           existing.Title,
		Description:     existing.Description,
		Assumptions:     existing.Assumptions,
		Instructions:    params.Instructions,
		Diagram:         diagram,
		SupportsCaching: caching,
		Iteration:       params.Iteration,
		ReasoningLevel:  params.Reasoning,
		Replay:          true,
		Starred:         starred,
	}, nil
}

func threatsOf(list *schema.ThreatsList) []schema.Threat {
	if list == nil {
		return nil
	}
	return list.Threats
}

// loadDiagram resolves an upload key into a prompt.Diagram. A missing or
// quota-exceeded upload is not an error (spec.md §8: "the summary/assets/
// flows/threats stages still run ... the diagram is omitted"); it simply
// yields a nil Diagram and a logged warning.
func (e *Executor) loadDiagram(jobID, key string) (*prompt.Diagram, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	normalized, err := store.NormalizeS3Location(key)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindValidation, "invalid s3_location", err).WithJobID(jobID)
	}

	upload, ok := e.deps.Store.GetUpload(normalized)
	if !ok {
		e.logger().Warn("upload not found, diagram omitted", zap.String("job_id", jobID), zap.String("key", key))
		return nil, false, nil
	}
	if upload.Error != "" || len(upload.Data) == 0 {
		e.logger().Warn("upload has no image data, diagram omitted",
			zap.String("job_id", jobID), zap.String("key", key), zap.String("reason", upload.Error))
		return nil, false, nil
	}
	return &prompt.Diagram{MediaType: upload.Type, Data: upload.Data}, true, nil
}

// run executes the workflow to completion and resolves the registry entry
// per spec.md §4.4's success/cancellation/failure branches.
func (e *Executor) run(ctx context.Context, exec *execution, id string, initial workflow.State) {
	defer close(exec.done)
	defer e.unregister(id)

	// nodeFinalize (internal/workflow) already persists the normalized
	// results record and the terminal COMPLETE/CANCELLED status for both the
	// success path and its own in-wait cancellation path; the executor only
	// needs to handle cancellation/failure surfaced from an earlier
	// suspension point, where no node has written terminal status yet.
	final, err := workflow.Run(ctx, e.deps, initial)
	if err != nil {
		if apperr.IsCancelled(err) {
			e.markCancelled(id, "cancelled during execution")
			return
		}
		e.markFailed(id, final, err)
	}
}

func (e *Executor) markFailed(id string, final workflow.State, err error) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		appErr = apperr.Wrap(apperr.KindInternal, "unclassified workflow failure", err)
	}
	appErr = apperr.Remap(appErr)

	now := time.Now()
	e.deps.Store.PutStatus(id, store.JobStatus{State: store.StateFailed, Retry: final.Retry})
	_ = e.deps.Store.MutateResults(id, func(r store.JobResults) (store.JobResults, error) {
		r.Error = appErr.Message
		r.ErrorType = string(appErr.Kind)
		r.Provider = appErr.Provider
		r.FailedAt = &now
		return r, nil
	})
	e.logger().Error("job failed", zap.String("job_id", id), zap.Error(appErr))
}

func (e *Executor) markCancelled(id, reason string) {
	now := time.Now()
	status, _ := e.deps.Store.GetStatus(id)
	e.deps.Store.PutStatus(id, store.JobStatus{State: store.StateCancelled, Retry: status.Retry})
	_ = e.deps.Store.MutateResults(id, func(r store.JobResults) (store.JobResults, error) {
		r.CancelledAt = &now
		r.CancellationReason = reason
		return r, nil
	})
}

func (e *Executor) unregister(id string) {
	e.mu.Lock()
	delete(e.jobs, id)
	e.mu.Unlock()
}

// IsExecuting reports spec.md §4.4's `is_executing(id)`: true iff the
// persisted state is one of the non-terminal states, regardless of whether
// the registry still holds an entry (the two can briefly diverge around the
// unregister race, and the persisted state is authoritative).
func (e *Executor) IsExecuting(id string) bool {
	status, ok := e.deps.Store.GetStatus(id)
	if !ok {
		return false
	}
	return store.NonTerminalStates[status.State]
}

// Interrupt is spec.md §4.4's `interrupt(id)`, idempotent: if the registry
// holds the job, remove the entry, fire its cancellation token and mark
// CANCELLED; if not but
// the persisted state is non-terminal (an orphan — e.g. the process
// restarted mid-run), mark it CANCELLED directly. Returns whether any work
// was done.
func (e *Executor) Interrupt(id string) bool {
	e.mu.Lock()
	exec, ok := e.jobs[id]
	if ok {
		delete(e.jobs, id)
	}
	e.mu.Unlock()

	if ok {
		exec.cancel()
		e.markCancelled(id, "interrupted")
		return true
	}

	if e.IsExecuting(id) {
		e.markCancelled(id, "interrupted orphan")
		return true
	}
	return false
}

// WaitForCompletion polls at 1s intervals until the job reaches COMPLETE
// (returns nil), FAILED or CANCELLED (returns an error describing why), the
// caller's context is cancelled, or timeout elapses (defaults to
// DefaultWaitTimeout when non-positive).
func (e *Executor) WaitForCompletion(ctx context.Context, id string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, ok := e.deps.Store.GetStatus(id)
		if ok {
			switch status.State {
			case store.StateComplete:
				return nil
			case store.StateFailed:
				results, _ := e.deps.Store.GetResults(id)
				return apperr.New(apperr.Kind(results.ErrorType), results.Error).WithJobID(id).WithProvider(results.Provider)
			case store.StateCancelled:
				return apperr.Cancelled
			}
		}

		select {
		case <-deadlineCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperr.New(apperr.KindInternal, "wait_for_completion timed out").WithJobID(id)
		case <-ticker.C:
		}
	}
}
