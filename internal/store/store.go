// Package store implements the session-scoped key/value persistence layer
// described in spec.md §4.3: job status, results, trail, a job index, and
// uploaded-file blobs, keyed by the prefixes tm_job_status_<id>,
// tm_job_results_<id>, tm_job_trail_<id>, tm_all_jobs, tm_uploaded_files_<key>
// and tm_aws_credentials.
//
// The shape is lifted from the teacher's SiteContextManager/SiteContext
// pair: a manager owns a map of per-job records behind a RWMutex and runs a
// periodic cleanup goroutine; each record owns its own RWMutex for its
// sub-fields, so a read of one job's trail never blocks a write to
// another's status.
package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/schema"
)

// JobState is one of the values a JobStatus.State field may hold.
type JobState string

const (
	StateStart       JobState = "START"
	StateAssets      JobState = "ASSETS"
	StateFlow        JobState = "FLOW"
	StateThreat      JobState = "THREAT"
	StateThreatRetry JobState = "THREAT_RETRY"
	StateFinalize    JobState = "FINALIZE"
	StateComplete    JobState = "COMPLETE"
	StateFailed      JobState = "FAILED"
	StateCancelled   JobState = "CANCELLED"
)

// NonTerminalStates are the states for which Executor.IsExecuting is true.
var NonTerminalStates = map[JobState]bool{
	StateStart:       true,
	StateAssets:      true,
	StateFlow:        true,
	StateThreat:      true,
	StateThreatRetry: true,
	StateFinalize:    true,
}

// JobStatus mirrors spec.md §3's JobStatus record.
type JobStatus struct {
	ID        string
	State     JobState
	Retry     int
	UpdatedAt time.Time
	Detail    string
}

// ResultsSnapshot is the {assets, system_architecture, threat_list} backup
// taken before a replay or update mutates current results.
type ResultsSnapshot struct {
	Assets              *schema.AssetsList
	SystemArchitecture  *schema.FlowsList
	ThreatList          *schema.ThreatsList
}

// JobResults mirrors spec.md §3's JobResults record.
type JobResults struct {
	JobID              string
	S3Location         string
	Owner              string
	Title              string
	Description        string
	Assumptions        []string
	Assets             *schema.AssetsList
	SystemArchitecture *schema.FlowsList
	ThreatList         *schema.ThreatsList
	Retry              int
	Backup             *ResultsSnapshot

	CompletedAt *time.Time
	FailedAt    *time.Time
	CancelledAt *time.Time

	Error             string
	ErrorType         string
	CancellationReason string
	Provider          string
}

// JobTrail mirrors spec.md §3's JobTrail record: assets/flows overwrite,
// gaps/threats append.
type JobTrail struct {
	ID      string
	Assets  string
	Flows   string
	Gaps    []string
	Threats []string
}

// UploadedFile mirrors spec.md §3's uploaded-file record.
type UploadedFile struct {
	Key       string
	Data      []byte // nil if storage quota was exceeded
	Type      string
	Timestamp time.Time
	Error     string
}

// jobRecord is the per-job bundle of status/results/trail, each guarded by
// its own mutex so independent fields don't contend.
type jobRecord struct {
	mu      sync.RWMutex
	status  JobStatus
	results JobResults
	trail   JobTrail
}

// Options configures a Store, mirroring the teacher's
// SiteContextManagerOptions shape.
type Options struct {
	// MaxJobs is the soft capacity above which the cleanup routine evicts
	// the oldest terminal jobs. Zero means DefaultOptions' value.
	MaxJobs int
	// CleanupInterval is how often the background sweep runs. Zero disables
	// the background goroutine (tests typically call Cleanup directly).
	CleanupInterval time.Duration
	// TerminalTTL is how long a terminal job is kept before it becomes
	// eligible for eviction.
	TerminalTTL time.Duration
	Logger      *zap.Logger
	// OnStatus, if set, is called with every JobStatus written via PutStatus
	// (A5's job-status push). Nil means no subscriber; the zero cost path
	// most tests use.
	OnStatus func(JobStatus)
}

// DefaultOptions mirrors DefaultSiteContextManagerOptions.
func DefaultOptions() Options {
	return Options{
		MaxJobs:         500,
		CleanupInterval: 15 * time.Minute,
		TerminalTTL:     24 * time.Hour,
		Logger:          zap.NewNop(),
	}
}

// Store is the session-scoped key/value persistence layer.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobRecord
	order   []string // insertion order, for deterministic index listing
	uploads map[string]*UploadedFile
	creds   *Credentials

	opts Options

	stopOnce sync.Once
	stopCh   chan struct{}
	ticker   *time.Ticker
}

// Credentials mirrors the tm_aws_credentials slot. Credentials are
// read-only after load and expire after 4 hours (spec.md §4.5); retrieval
// clears the slot.
type Credentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	LoadedAt     time.Time
}

const credentialTTL = 4 * time.Hour

// New creates a Store and, if opts.CleanupInterval > 0, starts the
// background eviction goroutine.
func New(opts Options) *Store {
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = DefaultOptions().MaxJobs
	}
	if opts.TerminalTTL <= 0 {
		opts.TerminalTTL = DefaultOptions().TerminalTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Store{
		jobs:    make(map[string]*jobRecord),
		uploads: make(map[string]*UploadedFile),
		opts:    opts,
		stopCh:  make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		s.ticker = time.NewTicker(opts.CleanupInterval)
		go s.cleanupLoop()
	}
	return s
}

func (s *Store) cleanupLoop() {
	for {
		select {
		case <-s.ticker.C:
			evicted := s.Cleanup(time.Now())
			if evicted > 0 {
				s.opts.Logger.Info("store cleanup evicted terminal jobs", zap.Int("evicted", evicted))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts the background cleanup goroutine. Safe to call multiple times
// and safe to call on a Store created with CleanupInterval == 0.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.ticker != nil {
			s.ticker.Stop()
		}
	})
}

// Cleanup evicts terminal jobs older than TerminalTTL once the store
// exceeds MaxJobs capacity. Running jobs are never evicted. Returns the
// number of jobs evicted. Exported so tests and operators can trigger a
// sweep deterministically instead of waiting on the ticker.
func (s *Store) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) <= s.opts.MaxJobs {
		return 0
	}

	evicted := 0
	remaining := s.order[:0:0]
	for _, id := range s.order {
		rec, ok := s.jobs[id]
		if !ok {
			continue
		}
		rec.mu.RLock()
		state := rec.status.State
		updatedAt := rec.status.UpdatedAt
		rec.mu.RUnlock()

		terminal := state == StateComplete || state == StateFailed || state == StateCancelled
		if terminal && now.Sub(updatedAt) > s.opts.TerminalTTL {
			delete(s.jobs, id)
			evicted++
			continue
		}
		remaining = append(remaining, id)
	}
	s.order = remaining
	return evicted
}

func (s *Store) record(id string) *jobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		rec = &jobRecord{}
		s.jobs[id] = rec
		s.order = append(s.order, id)
	}
	return rec
}

func (s *Store) recordIfExists(id string) (*jobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	return rec, ok
}
