package store

import (
	"fmt"
	"time"
)

// PutStatus writes tm_job_status_<id>, last-writer-wins, stamping UpdatedAt.
// If opts.OnStatus is set, it is notified of every transition (A5's
// job-status push, wired to internal/wsbus by the caller that builds the
// Store), fired outside the record lock so a slow subscriber never blocks a
// status write.
func (s *Store) PutStatus(id string, status JobStatus) {
	status.ID = id
	status.UpdatedAt = time.Now()
	rec := s.record(id)
	rec.mu.Lock()
	rec.status = status
	rec.mu.Unlock()

	if s.opts.OnStatus != nil {
		s.opts.OnStatus(status)
	}
}

// GetStatus reads tm_job_status_<id>.
func (s *Store) GetStatus(id string) (JobStatus, bool) {
	rec, ok := s.recordIfExists(id)
	if !ok {
		return JobStatus{}, false
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.status, true
}

// UpdateDetail updates only the status Detail field, used by agent tools to
// set a short human label without disturbing State/Retry.
func (s *Store) UpdateDetail(id, detail string) {
	rec, ok := s.recordIfExists(id)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.status.Detail = detail
	rec.status.UpdatedAt = time.Now()
}

// PutResults writes tm_job_results_<id>, last-writer-wins.
func (s *Store) PutResults(id string, results JobResults) {
	results.JobID = id
	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.results = results
}

// GetResults reads tm_job_results_<id>.
func (s *Store) GetResults(id string) (JobResults, bool) {
	rec, ok := s.recordIfExists(id)
	if !ok {
		return JobResults{}, false
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.results, true
}

// MutateResults atomically reads and rewrites a job's results under the
// record's write lock, returning an error from fn to abort without writing.
func (s *Store) MutateResults(id string, fn func(JobResults) (JobResults, error)) error {
	rec, ok := s.recordIfExists(id)
	if !ok {
		return fmt.Errorf("store: job %q not found", id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next, err := fn(rec.results)
	if err != nil {
		return err
	}
	next.JobID = id
	rec.results = next
	return nil
}

// GetTrail reads tm_job_trail_<id>.
func (s *Store) GetTrail(id string) (JobTrail, bool) {
	rec, ok := s.recordIfExists(id)
	if !ok {
		return JobTrail{}, false
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.trail, true
}

// TrailUpdate is a partial trail mutation: Assets/Flows overwrite when
// non-nil, Gaps/Threats append each element, per spec.md §4.3's merge rule.
type TrailUpdate struct {
	Assets  *string
	Flows   *string
	Gaps    []string
	Threats []string
}

// UpdateTrail merges a TrailUpdate into tm_job_trail_<id>: assets/flows
// overwrite, gaps/threats append, preserving production order.
func (s *Store) UpdateTrail(id string, upd TrailUpdate) {
	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.trail.ID = id
	if upd.Assets != nil {
		rec.trail.Assets = *upd.Assets
	}
	if upd.Flows != nil {
		rec.trail.Flows = *upd.Flows
	}
	rec.trail.Gaps = append(rec.trail.Gaps, upd.Gaps...)
	rec.trail.Threats = append(rec.trail.Threats, upd.Threats...)
}

// ResetTrailThreadsAndGaps clears Gaps and Threats (used on replay entry,
// spec.md §4.1's generate_summary replay branch) without touching
// Assets/Flows.
func (s *Store) ResetTrailThreadsAndGaps(id string) {
	rec := s.record(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.trail.Gaps = nil
	rec.trail.Threats = nil
}

// AllJobIDs reads tm_all_jobs, in insertion order.
func (s *Store) AllJobIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Delete removes a job's status/results/trail entirely.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Exists reports whether a job record exists at all (any of
// status/results/trail having been written).
func (s *Store) Exists(id string) bool {
	_, ok := s.recordIfExists(id)
	return ok
}
