// Package ytdlp drives the external yt-dlp tool: metadata extraction with
// playlist flattening, and downloads with live progress parsed from the
// subprocess output.
package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dammysspp/YT-SP/internal/models"
)

// Client invokes yt-dlp as a subprocess.
type Client struct {
	exePath string
}

// New creates a client using the given yt-dlp executable, or "yt-dlp" from
// PATH when empty.
func New(exePath string) *Client {
	if exePath == "" {
		exePath = "yt-dlp"
	}
	return &Client{exePath: exePath}
}

// FetchMetadata extracts metadata for a single video or a whole playlist.
// Playlists are listed with --flat-playlist, which is fast for large lists;
// full extraction for each child happens at download time.
func (c *Client) FetchMetadata(ctx context.Context, url string) (*models.MediaInfo, error) {
	// --dump-single-json outputs the whole result as one JSON object.
	out, err := c.run(ctx, "--dump-single-json", "--flat-playlist", "--no-warnings", url)
	if err != nil {
		return nil, err
	}
	info, err := parseInfoJSON(out)
	if err != nil {
		return nil, err
	}

	if info.isPlaylist() {
		uploader := orUnknown(info.Uploader, "Unknown")
		title := orUnknown(info.Title, "Unknown Playlist")
		videos := make([]models.VideoMetadata, 0, len(info.Entries))
		for i := range info.Entries {
			videos = append(videos, videoFromFlatEntry(&info.Entries[i], i+1, title, uploader))
		}
		if len(videos) == 0 {
			return nil, fmt.Errorf("playlist is empty")
		}
		return &models.MediaInfo{
			IsPlaylist:       true,
			PlaylistTitle:    title,
			PlaylistUploader: uploader,
			PlaylistURL:      url,
			Videos:           videos,
		}, nil
	}

	// Single video: redo the extraction without flattening so formats and
	// resolutions are available.
	out, err = c.run(ctx, "--dump-single-json", "--no-warnings", url)
	if err != nil {
		return nil, err
	}
	info, err = parseInfoJSON(out)
	if err != nil {
		return nil, err
	}
	if len(info.Entries) > 0 {
		info = &info.Entries[0]
	}
	meta := videoFromInfo(info, url)
	return &models.MediaInfo{Video: &meta}, nil
}

// Download fetches one URL with the job's options, reporting progress through
// onProgress. It blocks until the subprocess exits and returns the final
// filename. Cancelling ctx kills the subprocess; the returned error then
// satisfies errors.Is(err, ctx.Err()).
func (c *Client) Download(ctx context.Context, url string, opts models.JobOptions, onProgress func(models.ProgressUpdate)) (string, error) {
	dir := opts.DownloadDir
	if opts.CreateSubfolder {
		sub := "Video"
		if opts.AudioOnly {
			sub = "Audio"
		}
		dir = filepath.Join(dir, sub)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	template := filepath.Join(dir, "%(title)s.%(ext)s")
	if opts.OutputFilename != "" {
		template = filepath.Join(dir, models.SanitizeFilename(opts.OutputFilename)+".%(ext)s")
	}

	// --newline forces progress onto separate lines for parsing. The --print
	// line surfaces the media duration before the transfer starts;
	// --no-simulate keeps the download itself running.
	args := []string{
		"-o", template, "--newline", "--no-warnings",
		"--no-simulate", "--print", "before_dl:duration=%(duration)s",
		"-f", formatSelector(opts),
	}
	if opts.AudioOnly {
		bitrate := opts.AudioBitrate
		if bitrate == "" {
			bitrate = "192"
		}
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", bitrate+"K")
	} else if opts.Format != "" {
		args = append(args, "--merge-output-format", opts.Format)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, c.exePath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start yt-dlp: %w", err)
	}

	var stderrOut strings.Builder
	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			stderrOut.WriteString(sc.Text())
			stderrOut.WriteString("\n")
		}
	}()

	var (
		destination string
		title       string
		duration    float64
		converting  bool
	)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()

		if d, ok := parseDurationPrint(line); ok {
			duration = d
			continue
		}
		if m := reDest.FindStringSubmatch(line); m != nil {
			destination = strings.TrimSpace(m[1])
			title = titleFromPath(destination)
			continue
		}
		if m := reMerge.FindStringSubmatch(line); m != nil {
			destination = strings.TrimSpace(m[1])
			converting = true
			if onProgress != nil {
				onProgress(models.ProgressUpdate{Phase: "converting", Percent: 100, DurationSeconds: duration, Title: title, Filename: filepath.Base(destination)})
			}
			continue
		}
		if m := reAudio.FindStringSubmatch(line); m != nil {
			destination = strings.TrimSpace(m[1])
			converting = true
			if onProgress != nil {
				onProgress(models.ProgressUpdate{Phase: "converting", Percent: 100, DurationSeconds: duration, Title: title, Filename: filepath.Base(destination)})
			}
			continue
		}

		if update, ok := parseProgressLine(line); ok {
			update.Phase = "downloading"
			if converting {
				update.Phase = "converting"
			}
			update.DurationSeconds = duration
			update.Title = title
			if destination != "" {
				update.Filename = filepath.Base(destination)
			}
			if onProgress != nil {
				onProgress(update)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("download interrupted: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderrOut.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("yt-dlp failed: %s", tail(msg, 500))
	}

	if destination == "" {
		return "", fmt.Errorf("yt-dlp produced no output file")
	}
	return filepath.Base(finalName(destination, opts)), nil
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.exePath, args...)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("yt-dlp: %s", tail(strings.TrimSpace(string(ee.Stderr)), 500))
		}
		return nil, fmt.Errorf("execute yt-dlp: %w", err)
	}
	return out, nil
}

// finalName adjusts the last observed destination for post-processing: audio
// extraction rewrites the extension to mp3, remuxing to the target container.
func finalName(path string, opts models.JobOptions) string {
	if opts.AudioOnly {
		return strings.TrimSuffix(path, filepath.Ext(path)) + ".mp3"
	}
	if opts.Format != "" {
		return strings.TrimSuffix(path, filepath.Ext(path)) + "." + opts.Format
	}
	return path
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
