package ytdlp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dammysspp/YT-SP/internal/models"
)

var (
	reProgress = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%(?:\s+of\s+~?\s*([^\s]+))?(?:\s+at\s+([^\s]+))?(?:\s+ETA\s+([0-9:]+))?`)
	reDest     = regexp.MustCompile(`\[download\]\s+Destination:\s+(.+)`)
	reMerge    = regexp.MustCompile(`\[Merger\]\s+Merging formats into\s+"(.+)"`)
	reAudio    = regexp.MustCompile(`\[ExtractAudio\]\s+Destination:\s+(.+)`)
	reSize     = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?i?B)`)
)

var defaultResolutions = []string{"2160p", "1440p", "1080p", "720p", "480p", "360p"}

// rawInfo mirrors the fields we use from yt-dlp's --dump-single-json output.
type rawInfo struct {
	Type        string      `json:"_type"`
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Duration    float64     `json:"duration"`
	Thumbnail   string      `json:"thumbnail"`
	Uploader    string      `json:"uploader"`
	Channel     string      `json:"channel"`
	UploadDate  string      `json:"upload_date"`
	ViewCount   int64       `json:"view_count"`
	Extractor   string      `json:"extractor"`
	WebpageURL  string      `json:"webpage_url"`
	URL         string      `json:"url"`
	Formats     []rawFormat `json:"formats"`
	Entries     []rawInfo   `json:"entries"`
}

type rawFormat struct {
	FormatID string `json:"format_id"`
	Ext      string `json:"ext"`
	Height   int    `json:"height"`
	Vcodec   string `json:"vcodec"`
	Acodec   string `json:"acodec"`
}

func parseInfoJSON(data []byte) (*rawInfo, error) {
	var info rawInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	return &info, nil
}

func (ri *rawInfo) isPlaylist() bool {
	return ri.Type == "playlist" || len(ri.Entries) > 0
}

// videoFromInfo builds the API-facing metadata from a fully extracted video.
func videoFromInfo(info *rawInfo, sourceURL string) models.VideoMetadata {
	url := info.WebpageURL
	if url == "" {
		url = info.URL
	}
	if url == "" {
		url = sourceURL
	}

	desc := truncateRunes(info.Description, 500)

	return models.VideoMetadata{
		Success:                true,
		URL:                    url,
		ID:                     info.ID,
		Title:                  orUnknown(info.Title, "Unknown Title"),
		Description:            desc,
		Duration:               info.Duration,
		DurationString:         models.FormatDuration(info.Duration),
		Thumbnail:              info.Thumbnail,
		Uploader:               orUnknown(info.Uploader, "Unknown"),
		UploadDate:             info.UploadDate,
		ViewCount:              info.ViewCount,
		Platform:               platformName(info.Extractor),
		Resolutions:            resolutionsFromFormats(info.Formats),
		AvailableContainers:    []string{"mp4", "mkv", "webm"},
		AvailableAudioBitrates: []string{"128", "192", "320"},
	}
}

// videoFromFlatEntry builds child metadata from a flat playlist entry. Flat
// extraction carries no formats, so the resolution list is the generic one;
// real format selection happens at download time.
func videoFromFlatEntry(entry *rawInfo, index int, playlistTitle, playlistUploader string) models.VideoMetadata {
	url := entry.URL
	if url == "" {
		url = entry.WebpageURL
	}
	if url == "" && entry.ID != "" {
		url = "https://www.youtube.com/watch?v=" + entry.ID
	}

	uploader := entry.Uploader
	if uploader == "" {
		uploader = entry.Channel
	}
	if uploader == "" {
		uploader = playlistUploader
	}

	return models.VideoMetadata{
		Success:                true,
		URL:                    url,
		ID:                     entry.ID,
		Title:                  orUnknown(entry.Title, fmt.Sprintf("Video %d", index)),
		Duration:               entry.Duration,
		DurationString:         models.FormatDuration(entry.Duration),
		Thumbnail:              entry.Thumbnail,
		Uploader:               uploader,
		Platform:               platformName(entry.Extractor),
		Resolutions:            defaultResolutions,
		AvailableContainers:    []string{"mp4", "mkv", "webm"},
		AvailableAudioBitrates: []string{"128", "192", "320"},
		PlaylistIndex:          index,
		PlaylistTitle:          playlistTitle,
	}
}

func resolutionsFromFormats(formats []rawFormat) []string {
	seen := make(map[int]bool)
	heights := make([]int, 0, len(formats))
	for _, f := range formats {
		if f.Vcodec == "" || f.Vcodec == "none" || f.Height == 0 {
			continue
		}
		if !seen[f.Height] {
			seen[f.Height] = true
			heights = append(heights, f.Height)
		}
	}
	if len(heights) == 0 {
		return []string{"1080p", "720p", "480p", "360p"}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))
	out := make([]string, len(heights))
	for i, h := range heights {
		out[i] = fmt.Sprintf("%dp", h)
	}
	return out
}

// platformName turns a yt-dlp extractor name like "youtube:tab" into a
// display platform like "Youtube".
func platformName(extractor string) string {
	if extractor == "" {
		return "Unknown"
	}
	name := strings.SplitN(extractor, ":", 2)[0]
	if name == "" {
		return "Unknown"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// formatSelector builds the yt-dlp -f expression for the requested options.
func formatSelector(opts models.JobOptions) string {
	if opts.AudioOnly {
		return "bestaudio/best"
	}
	height := strings.TrimSuffix(opts.Resolution, "p")
	if opts.Resolution != "" && opts.Resolution != "best" && isDigits(height) {
		return fmt.Sprintf("bestvideo[height<=%s]+bestaudio/best[height<=%s]/best", height, height)
	}
	return "bestvideo+bestaudio/best"
}

// parseProgressLine decodes one "[download]  45.0% of 10.00MiB at 2.50MiB/s
// ETA 00:05" line; ok is false for any other line.
func parseProgressLine(line string) (update models.ProgressUpdate, ok bool) {
	m := reProgress.FindStringSubmatch(line)
	if m == nil {
		return update, false
	}
	update.Percent, _ = strconv.ParseFloat(m[1], 64)
	if m[2] != "" {
		update.TotalBytes = parseSize(m[2])
		update.DownloadedBytes = int64(update.Percent / 100 * float64(update.TotalBytes))
	}
	if m[3] != "" {
		update.Speed = float64(parseSize(strings.TrimSuffix(m[3], "/s")))
	}
	if m[4] != "" {
		update.ETASeconds = parseClock(m[4])
	}
	return update, true
}

// parseSize converts yt-dlp size strings like "10.00MiB" or "512KB" to bytes.
func parseSize(s string) int64 {
	m := reSize.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	value, _ := strconv.ParseFloat(m[1], 64)
	mult := float64(1)
	switch strings.ToUpper(m[2][:1]) {
	case "K":
		mult = 1 << 10
	case "M":
		mult = 1 << 20
	case "G":
		mult = 1 << 30
	case "T":
		mult = 1 << 40
	}
	return int64(value * mult)
}

// parseClock converts "mm:ss" or "hh:mm:ss" to seconds.
func parseClock(s string) int {
	parts := strings.Split(s, ":")
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// truncateRunes caps s at n characters, never splitting a multi-byte rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// parseDurationPrint decodes the "duration=<seconds>" line emitted by the
// --print before_dl template. yt-dlp prints "NA" when the extractor has no
// duration; that reads as not-a-duration here.
func parseDurationPrint(line string) (float64, bool) {
	rest, ok := strings.CutPrefix(line, "duration=")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
