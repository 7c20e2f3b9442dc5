package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/executor"
	"github.com/clcummin/threat-designer/internal/store"
)

// start implements spec.md §4.7's start_threat_modeling / §6's "Start job".
func (h *handler) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	id, err := h.deps.Executor.Execute(c.Request.Context(), executor.StartParams{
		ID:           req.ID,
		S3Location:   req.S3Location,
		Iteration:    req.Iteration,
		Reasoning:    req.Reasoning,
		Title:        req.Title,
		Description:  req.Description,
		Assumptions:  req.Assumptions,
		Replay:       req.Replay,
		Instructions: req.Instructions,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, startResponse{ID: id})
}

// getStatus implements get_status / §6's "Status response".
func (h *handler) getStatus(c *gin.Context) {
	id := c.Param("id")
	status, ok := h.deps.Store.GetStatus(id)
	if !ok {
		writeError(c, apperr.New(apperr.KindNotFound, "job not found").WithJobID(id))
		return
	}
	var detail *string
	if status.Detail != "" {
		detail = &status.Detail
	}
	c.JSON(http.StatusOK, statusResponse{ID: id, State: status.State, Retry: status.Retry, Detail: detail})
}

// getTrail implements get_trail / §6's "Trail response".
func (h *handler) getTrail(c *gin.Context) {
	id := c.Param("id")
	trail, ok := h.deps.Store.GetTrail(id)
	if !ok {
		writeError(c, apperr.New(apperr.KindNotFound, "job not found").WithJobID(id))
		return
	}
	c.JSON(http.StatusOK, trailResponse{ID: id, Assets: trail.Assets, Flows: trail.Flows, Gaps: trail.Gaps, Threats: trail.Threats})
}

// getResults implements get_results / §6's "Results response".
func (h *handler) getResults(c *gin.Context) {
	id := c.Param("id")
	results, ok := h.deps.Store.GetResults(id)
	if !ok {
		c.JSON(http.StatusOK, resultsResponse{JobID: id, State: "Not Found"})
		return
	}
	c.JSON(http.StatusOK, resultsResponse{JobID: id, State: "Found", Item: &results})
}

// getAllResults implements get_all_results.
func (h *handler) getAllResults(c *gin.Context) {
	ids := h.deps.Store.AllJobIDs()
	items := make([]store.JobResults, 0, len(ids))
	for _, id := range ids {
		if results, ok := h.deps.Store.GetResults(id); ok {
			items = append(items, results)
		}
	}
	c.JSON(http.StatusOK, allResultsResponse{Items: items})
}

// update implements update_tm: rejects changes to owner/s3_location/job_id
// (there is no request field for them to begin with — see updateRequest),
// captures a backup snapshot on the first update, and merges the supplied
// fields over the current results.
func (h *handler) update(c *gin.Context) {
	id := c.Param("id")
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}

	var updated store.JobResults
	err := h.deps.Store.MutateResults(id, func(r store.JobResults) (store.JobResults, error) {
		if r.Backup == nil {
			r.Backup = &store.ResultsSnapshot{
				Assets:             r.Assets,
				SystemArchitecture: r.SystemArchitecture,
				ThreatList:         r.ThreatList,
			}
		}
		if req.Title != nil {
			r.Title = *req.Title
		}
		if req.Description != nil {
			r.Description = *req.Description
		}
		if req.Assumptions != nil {
			r.Assumptions = req.Assumptions
		}
		if req.Assets != nil {
			r.Assets = req.Assets
		}
		if req.SystemArchitecture != nil {
			r.SystemArchitecture = req.SystemArchitecture
		}
		if req.ThreatList != nil {
			r.ThreatList = req.ThreatList
		}
		updated = r
		return r, nil
	})
	if err != nil {
		writeError(c, apperr.New(apperr.KindNotFound, "job not found").WithJobID(id))
		return
	}
	c.JSON(http.StatusOK, resultsResponse{JobID: id, State: "Found", Item: &updated})
}

// restore implements restore_tm: requires backup present, copies
// backup.{assets, system_architecture, threat_list} over current, and
// transitions status to COMPLETE.
func (h *handler) restore(c *gin.Context) {
	id := c.Param("id")

	var restored store.JobResults
	err := h.deps.Store.MutateResults(id, func(r store.JobResults) (store.JobResults, error) {
		if r.Backup == nil {
			return r, apperr.New(apperr.KindValidation, "no backup to restore from").WithJobID(id)
		}
		r.Assets = r.Backup.Assets
		r.SystemArchitecture = r.Backup.SystemArchitecture
		r.ThreatList = r.Backup.ThreatList
		restored = r
		return r, nil
	})
	if err != nil {
		if !h.deps.Store.Exists(id) {
			writeError(c, apperr.New(apperr.KindNotFound, "job not found").WithJobID(id))
			return
		}
		writeError(c, err)
		return
	}

	h.deps.Store.PutStatus(id, store.JobStatus{State: store.StateComplete, Retry: restored.Retry})
	c.JSON(http.StatusOK, resultsResponse{JobID: id, State: "Found", Item: &restored})
}

// delete implements delete_tm.
func (h *handler) delete(c *gin.Context) {
	id := c.Param("id")
	if !h.deps.Store.Exists(id) {
		c.JSON(http.StatusOK, deleteResponse{ID: id, Deleted: false})
		return
	}
	h.deps.Store.Delete(id)
	c.JSON(http.StatusOK, deleteResponse{ID: id, Deleted: true})
}

// interrupt exposes internal/executor's Interrupt over HTTP. Not named in
// spec.md §4.7's endpoint list directly, but required by §8 scenario 4 and
// implied by §5's cancellation contract — there is otherwise no external
// surface that can ever call it.
func (h *handler) interrupt(c *gin.Context) {
	id := c.Param("id")
	ok := h.deps.Executor.Interrupt(id)
	c.JSON(http.StatusOK, interruptResponse{ID: id, Interrupted: ok})
}
