package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// JobOptions are the per-download settings captured when a job is submitted.
// They are a snapshot: changing global settings later never affects a job
// that is already queued or running.
type JobOptions struct {
	Resolution      string `json:"resolution"`       // "best", "1080p", "720p", ...
	Format          string `json:"format"`           // output container: mp4, mkv, webm
	AudioOnly       bool   `json:"audio_only"`       // extract audio to mp3
	AudioBitrate    string `json:"audio_bitrate"`    // "128", "192", "320"
	OutputFilename  string `json:"output_filename"`  // optional custom filename (no extension)
	DownloadDir     string `json:"download_dir"`     // target directory
	CreateSubfolder bool   `json:"create_subfolder"` // put files under Video/ or Audio/
}

// Progress is the live progress of a running job, overwritten on each update.
type Progress struct {
	Percent         float64 `json:"percent"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Speed           float64 `json:"speed"` // bytes per second
	ETASeconds      int     `json:"eta_seconds"`
}

// Result is the terminal outcome of a job, set exactly once.
type Result struct {
	Filename     string `json:"filename,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Job is one requested download tracked by the registry.
type Job struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	Options     JobOptions `json:"options"`
	Status      JobStatus  `json:"status"`
	Progress    Progress   `json:"progress"`
	Result      *Result    `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt time.Time  `json:"completed_at,omitempty"`
}

// Clone returns an independent copy safe to hand to callers.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}

// VideoMetadata describes a resolved video prior to job creation. For
// playlist children, PlaylistIndex is 1-based and PlaylistTitle is set.
type VideoMetadata struct {
	Success                bool     `json:"success"`
	Error                  string   `json:"error,omitempty"`
	URL                    string   `json:"url"`
	ID                     string   `json:"id,omitempty"`
	Title                  string   `json:"title"`
	Description            string   `json:"description,omitempty"`
	Duration               float64  `json:"duration,omitempty"`
	DurationString         string   `json:"duration_string,omitempty"`
	Thumbnail              string   `json:"thumbnail,omitempty"`
	Uploader               string   `json:"uploader,omitempty"`
	UploadDate             string   `json:"upload_date,omitempty"`
	ViewCount              int64    `json:"view_count,omitempty"`
	Platform               string   `json:"platform,omitempty"`
	Resolutions            []string `json:"resolutions,omitempty"`
	AvailableContainers    []string `json:"available_containers,omitempty"`
	AvailableAudioBitrates []string `json:"available_audio_bitrates,omitempty"`
	PlaylistIndex          int      `json:"playlist_index,omitempty"`
	PlaylistCount          int      `json:"playlist_count,omitempty"`
	PlaylistTitle          string   `json:"playlist_title,omitempty"`
}

// MediaInfo is the capability's answer for one URL: either a single video or
// an expanded playlist.
type MediaInfo struct {
	IsPlaylist       bool
	Video            *VideoMetadata
	PlaylistTitle    string
	PlaylistUploader string
	PlaylistURL      string
	Videos           []VideoMetadata
}

// ResolveResult is one ordered slot of a batch metadata resolution.
type ResolveResult struct {
	URL  string
	Info *MediaInfo
	Err  error
}

// ProgressUpdate is a single normalized callback from the external
// fetch/transcode capability.
type ProgressUpdate struct {
	Phase           string // "downloading" or "converting"
	Percent         float64
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64 // bytes per second
	ETASeconds      int
	DurationSeconds float64 // media duration, once the tool reports it
	Title           string
	Filename        string
}

// Event is one message on the live progress stream. The first event per
// observer is the synthetic "connected" event; all later events carry a
// download id and status.
type Event struct {
	Type       string  `json:"type,omitempty"` // "connected" for the handshake event
	ClientID   string  `json:"client_id,omitempty"`
	DownloadID string  `json:"download_id,omitempty"`
	Status     string  `json:"status,omitempty"`
	Percent    float64 `json:"percent"`
	Downloaded string  `json:"downloaded,omitempty"`
	Total      string  `json:"total,omitempty"`
	Speed      string  `json:"speed,omitempty"`
	ETA        string  `json:"eta,omitempty"`
	Filename   string  `json:"filename,omitempty"`
	Title      string  `json:"title,omitempty"`
	Error      string  `json:"error,omitempty"`
	Message    string  `json:"message,omitempty"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// HistoryEntry is the terminal snapshot of a job, persisted independently of
// the live registry.
type HistoryEntry struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	DownloadID  string    `gorm:"size:64;index" json:"download_id"`
	Title       string    `gorm:"size:512" json:"title"`
	Filename    string    `gorm:"size:1024" json:"filename"`
	Duration    string    `gorm:"size:32" json:"duration"`
	Success     bool      `json:"success"`
	Error       string    `gorm:"size:1024" json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

var urlPattern = regexp.MustCompile(`^https?://` +
	`(?i:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?|localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

// ValidateURL reports whether s looks like an http(s) URL worth handing to
// the external capability.
func ValidateURL(s string) bool {
	return urlPattern.MatchString(s)
}

// SanitizeFilename strips path separators and characters invalid on common
// filesystems, and caps the length.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "\x00", "")
	for _, ch := range `<>:"|?*` {
		name = strings.ReplaceAll(name, string(ch), "_")
	}
	if len(name) > 200 {
		name = name[:200]
	}
	name = strings.Trim(strings.TrimSpace(name), ".")
	if name == "" {
		return "download"
	}
	return name
}

// DuplicateKey derives a deterministic deduplication key for a resolved
// video: platform video id when available, else the normalized title, else
// the URL. Pure function so queuing policy (add-all / skip / cancel) can be
// decided before submission.
func DuplicateKey(meta VideoMetadata) string {
	if meta.Platform != "" && meta.ID != "" {
		return strings.ToLower(meta.Platform) + ":" + meta.ID
	}
	if title := strings.TrimSpace(strings.ToLower(meta.Title)); title != "" {
		return "title:" + title
	}
	return "url:" + meta.URL
}

// FormatSize renders a byte count as a human readable size.
func FormatSize(n int64) string {
	if n <= 0 {
		return "Unknown"
	}
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f PB", size)
}

// FormatDuration renders seconds as H:MM:SS or M:SS.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "Unknown"
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
