// Package scheduler runs queued download jobs on a bounded worker pool,
// driving the job lifecycle and publishing progress to the event stream.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dammysspp/YT-SP/internal/events"
	"github.com/dammysspp/YT-SP/internal/models"
	"github.com/dammysspp/YT-SP/internal/registry"
)

// publishInterval rate-limits progress events per job. Intermediate updates
// inside the window are coalesced; phase changes and terminal events always
// go out.
const publishInterval = 100 * time.Millisecond

// Downloader is the slice of the external capability the scheduler needs:
// fetch one URL with fixed options, reporting progress along the way.
// Cancelling ctx must stop the transfer; the returned error then satisfies
// errors.Is(err, context.Canceled).
type Downloader interface {
	Download(ctx context.Context, url string, opts models.JobOptions, onProgress func(models.ProgressUpdate)) (string, error)
}

// HistoryAppender records terminal job snapshots.
type HistoryAppender interface {
	Append(*models.HistoryEntry) error
}

// Request is one download submission.
type Request struct {
	URL     string
	Options models.JobOptions
}

// Scheduler owns the FIFO queue and the worker pool. Jobs are dequeued in
// submission order; at most `workers` jobs are active at once.
type Scheduler struct {
	registry *registry.Registry
	history  HistoryAppender
	events   *events.Broadcaster
	dl       Downloader
	workers  int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	active  map[string]context.CancelFunc
	stopped bool

	wg sync.WaitGroup
}

// New creates a scheduler. Call Start before submitting.
func New(reg *registry.Registry, hist HistoryAppender, bc *events.Broadcaster, dl Downloader, workers int) *Scheduler {
	if workers <= 0 {
		workers = 3
	}
	s := &Scheduler{
		registry: reg,
		history:  hist,
		events:   bc,
		dl:       dl,
		workers:  workers,
		active:   make(map[string]context.CancelFunc),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker()
		}()
	}
}

// Stop cancels running jobs, drains the workers and returns once they exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, cancel := range s.active {
		cancel()
	}
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit registers all requests as queued jobs and enqueues them FIFO. The
// returned ids are in request order. Jobs are visible as queued before Submit
// returns.
func (s *Scheduler) Submit(requests []Request) []string {
	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		job := s.registry.Create(req.URL, req.Options)
		ids = append(ids, job.ID)
	}

	s.mu.Lock()
	s.queue = append(s.queue, ids...)
	s.mu.Unlock()
	s.cond.Broadcast()

	return ids
}

// Cancel stops a job. Queued jobs go terminal synchronously; running jobs get
// their context cancelled and reach `cancelled` once the capability confirms
// teardown. Cancelling a terminal job returns registry.ErrConflict.
func (s *Scheduler) Cancel(id string) error {
	job, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return registry.ErrConflict
	}

	s.mu.Lock()
	if cancel, ok := s.active[id]; ok {
		s.mu.Unlock()
		cancel()
		return nil
	}
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if err := s.registry.Finish(id, models.StatusCancelled, models.Result{ErrorMessage: "cancelled before start"}); err != nil {
		// A worker grabbed the job between our checks; its context is (or is
		// about to be) registered, so signal it instead.
		s.mu.Lock()
		cancel, ok := s.active[id]
		s.mu.Unlock()
		if ok {
			cancel()
			return nil
		}
		return err
	}

	// A worker may still have grabbed the job in the same window and be
	// starting the capability; its transitions will now fail, but the
	// transfer itself must be torn down too.
	s.mu.Lock()
	if cancel, ok := s.active[id]; ok {
		cancel()
	}
	s.mu.Unlock()

	s.recordTerminal(id, models.StatusCancelled, "", "", "")
	return nil
}

func (s *Scheduler) worker() {
	for {
		id, ok := s.next()
		if !ok {
			return
		}
		s.run(id)
	}
}

func (s *Scheduler) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	return id, true
}

// run executes one job end to end. The context registered under the job id is
// the cooperative cancellation signal: Cancel invokes it and the capability
// tears the transfer down.
func (s *Scheduler) run(id string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.active[id] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	}()

	if err := s.registry.Transition(id, models.StatusStarting); err != nil {
		// Cancelled while queued; nothing to run.
		return
	}
	job, err := s.registry.Get(id)
	if err != nil {
		return
	}

	s.events.Publish(models.Event{
		DownloadID: id,
		Status:     models.StatusStarting.String(),
		Message:    "Initializing download...",
	})

	var (
		lastPublish time.Time
		lastPhase   string
		maxPercent  float64
		durationSec float64
	)
	onProgress := func(u models.ProgressUpdate) {
		if u.DurationSeconds > 0 {
			durationSec = u.DurationSeconds
		}
		status := models.StatusDownloading
		if u.Phase == "converting" {
			status = models.StatusConverting
		}
		// Percent never moves backwards for a job, whatever the tool prints
		// across fragment or stream boundaries.
		if u.Percent < maxPercent {
			u.Percent = maxPercent
		}
		maxPercent = u.Percent

		if err := s.registry.Transition(id, status); err != nil {
			return // job already terminal, late callback
		}
		_ = s.registry.SetProgress(id, models.Progress{
			Percent:         u.Percent,
			DownloadedBytes: u.DownloadedBytes,
			TotalBytes:      u.TotalBytes,
			Speed:           u.Speed,
			ETASeconds:      u.ETASeconds,
		}, u.Title)

		now := time.Now()
		if u.Phase == lastPhase && now.Sub(lastPublish) < publishInterval {
			return
		}
		lastPhase = u.Phase
		lastPublish = now
		s.events.Publish(progressEvent(id, status, u))
	}

	filename, err := s.dl.Download(ctx, job.URL, job.Options, onProgress)

	duration := ""
	if durationSec > 0 {
		duration = models.FormatDuration(durationSec)
	}

	switch {
	case err == nil:
		if ferr := s.registry.Finish(id, models.StatusCompleted, models.Result{Filename: filename}); ferr != nil {
			log.Printf("job %s: finish after success: %v", id, ferr)
			return
		}
		s.recordTerminal(id, models.StatusCompleted, filename, duration, "")
	case errors.Is(err, context.Canceled):
		if ferr := s.registry.Finish(id, models.StatusCancelled, models.Result{ErrorMessage: "cancelled"}); ferr != nil {
			return
		}
		s.recordTerminal(id, models.StatusCancelled, "", duration, "")
	default:
		log.Printf("job %s: download failed: %v", id, err)
		if ferr := s.registry.Finish(id, models.StatusFailed, models.Result{ErrorMessage: err.Error()}); ferr != nil {
			return
		}
		s.recordTerminal(id, models.StatusFailed, "", duration, err.Error())
	}
}

// recordTerminal appends the history entry and publishes the terminal event.
// The final event for a job is never coalesced away.
func (s *Scheduler) recordTerminal(id string, status models.JobStatus, filename, duration, errMsg string) {
	job, err := s.registry.Get(id)
	if err != nil {
		return
	}

	entry := &models.HistoryEntry{
		DownloadID:  id,
		Title:       job.Title,
		Filename:    filename,
		Duration:    duration,
		Success:     status == models.StatusCompleted,
		Error:       errMsg,
		CompletedAt: job.CompletedAt,
	}
	if err := s.history.Append(entry); err != nil {
		log.Printf("job %s: append history: %v", id, err)
	}

	ev := models.Event{
		DownloadID: id,
		Status:     status.String(),
		Title:      job.Title,
		Filename:   filename,
		Error:      errMsg,
	}
	if status == models.StatusCompleted {
		ev.Percent = 100
	} else {
		ev.Percent = job.Progress.Percent
	}
	s.events.Publish(ev)
}

func progressEvent(id string, status models.JobStatus, u models.ProgressUpdate) models.Event {
	ev := models.Event{
		DownloadID: id,
		Status:     status.String(),
		Percent:    u.Percent,
		Title:      u.Title,
		Filename:   u.Filename,
	}
	if u.TotalBytes > 0 {
		ev.Downloaded = models.FormatSize(u.DownloadedBytes)
		ev.Total = models.FormatSize(u.TotalBytes)
	}
	if u.Speed > 0 {
		ev.Speed = models.FormatSize(int64(u.Speed)) + "/s"
	}
	if u.ETASeconds > 0 {
		ev.ETA = models.FormatDuration(float64(u.ETASeconds))
	}
	return ev
}
