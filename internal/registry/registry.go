// Package registry is the in-memory store of download jobs and the single
// authority over their state transitions.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dammysspp/YT-SP/internal/models"
)

var (
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when a mutation would violate the job
	// lifecycle, e.g. transitioning out of a terminal state.
	ErrConflict = errors.New("job state conflict")
)

type entry struct {
	mu  sync.Mutex
	job *models.Job
}

// Registry owns all job objects for their lifetime. Mutations on one job are
// linearizable; different jobs never block each other.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Create registers a new queued job with a fresh id and a snapshot of the
// submitted options, and returns a copy of it.
func (r *Registry) Create(url string, opts models.JobOptions) *models.Job {
	job := &models.Job{
		ID:        newJobID(),
		URL:       url,
		Options:   opts,
		Status:    models.StatusQueued,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.entries[job.ID] = &entry{job: job}
	r.order = append(r.order, job.ID)
	r.mu.Unlock()

	return job.Clone()
}

// Get returns a copy of the job, or ErrNotFound.
func (r *Registry) Get(id string) (*models.Job, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// List returns copies of all jobs in insertion order.
func (r *Registry) List() []*models.Job {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		if job, err := r.Get(id); err == nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Update applies fn to the job under its lock. Returns ErrNotFound for an
// unknown id; any error from fn aborts the mutation.
func (r *Registry) Update(id string, fn func(*models.Job) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.job)
}

// Transition moves the job to a new status, enforcing the lifecycle DAG.
// Moving to the current status is a no-op. Illegal moves, including any move
// out of a terminal state, return ErrConflict.
func (r *Registry) Transition(id string, to models.JobStatus) error {
	return r.Update(id, func(job *models.Job) error {
		if job.Status == to {
			return nil
		}
		if !models.CanTransition(job.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrConflict, job.Status, to)
		}
		job.Status = to
		return nil
	})
}

// SetProgress overwrites the job's live progress and captures the title the
// first time one shows up.
func (r *Registry) SetProgress(id string, p models.Progress, title string) error {
	return r.Update(id, func(job *models.Job) error {
		job.Progress = p
		if job.Title == "" && title != "" {
			job.Title = title
		}
		return nil
	})
}

// Finish moves the job to a terminal state and sets its write-once result.
// A second Finish on the same job returns ErrConflict.
func (r *Registry) Finish(id string, to models.JobStatus, result models.Result) error {
	if !to.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrConflict, to)
	}
	return r.Update(id, func(job *models.Job) error {
		if job.Result != nil {
			return fmt.Errorf("%w: result already set", ErrConflict)
		}
		if !models.CanTransition(job.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrConflict, job.Status, to)
		}
		job.Status = to
		job.Result = &result
		job.CompletedAt = time.Now()
		return nil
	})
}

// Purge drops all terminal jobs and returns how many were removed. History
// entries outlive purged jobs.
func (r *Registry) Purge() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		e := r.entries[id]
		e.mu.Lock()
		terminal := e.job.Status.IsTerminal()
		e.mu.Unlock()
		if terminal {
			delete(r.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// newJobID returns a short opaque id. Eight hex chars of a v4 uuid is plenty
// for a single process; ids are never reused within one registry.
func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
