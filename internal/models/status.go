package models

// JobStatus is the lifecycle state of a download job.
type JobStatus string

const (
	// StatusQueued means the job is accepted and waiting for a worker.
	StatusQueued JobStatus = "queued"

	// StatusStarting means a worker picked the job up and is invoking the
	// fetch capability.
	StatusStarting JobStatus = "starting"

	// StatusDownloading means media bytes are being transferred.
	StatusDownloading JobStatus = "downloading"

	// StatusConverting means post-processing (audio extraction or container
	// remux) is running.
	StatusConverting JobStatus = "converting"

	// StatusCompleted means the job finished successfully.
	StatusCompleted JobStatus = "completed"

	// StatusFailed means the capability reported an error.
	StatusFailed JobStatus = "failed"

	// StatusCancelled means the job was cancelled before reaching another
	// terminal state.
	StatusCancelled JobStatus = "cancelled"
)

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether a worker currently holds the job.
func (s JobStatus) IsActive() bool {
	return s == StatusStarting || s == StatusDownloading || s == StatusConverting
}

// CanTransition reports whether moving from one status to another is legal.
// Downloading and converting may alternate (a remux follows the transfer, and
// fragmented downloads interleave the two); cancelled is reachable from every
// non-terminal state; terminal states are absorbing.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusStarting
	case StatusStarting:
		return to == StatusDownloading || to == StatusConverting ||
			to == StatusCompleted || to == StatusFailed
	case StatusDownloading, StatusConverting:
		return to == StatusDownloading || to == StatusConverting ||
			to == StatusCompleted || to == StatusFailed
	}
	return false
}
