package ytdlp

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dammysspp/YT-SP/internal/models"
)

func TestParseProgressLine(t *testing.T) {
	gib := float64(1024 * 1024 * 1024)
	tests := []struct {
		line    string
		ok      bool
		percent float64
		total   int64
		speed   float64
		eta     int
	}{
		{
			line:    "[download]  45.0% of 10.00MiB at  2.50MiB/s ETA 00:05",
			ok:      true,
			percent: 45,
			total:   10 * 1024 * 1024,
			speed:   2.5 * 1024 * 1024,
			eta:     5,
		},
		{
			line:    "[download] 100% of 512.00KiB in 00:03",
			ok:      true,
			percent: 100,
			total:   512 * 1024,
		},
		{
			line:    "[download]   0.1% of ~ 1.20GiB at  500.00KiB/s ETA 41:52",
			ok:      true,
			percent: 0.1,
			total:   int64(1.2 * gib),
			speed:   500 * 1024,
			eta:     41*60 + 52,
		},
		{line: "[download] Destination: /tmp/video.mp4", ok: false},
		{line: "[youtube] dQw4w9WgXcQ: Downloading webpage", ok: false},
		{line: "", ok: false},
	}

	for _, test := range tests {
		update, ok := parseProgressLine(test.line)
		if ok != test.ok {
			t.Errorf("parseProgressLine(%q) ok = %v, expected %v", test.line, ok, test.ok)
			continue
		}
		if !ok {
			continue
		}
		if update.Percent != test.percent {
			t.Errorf("%q: percent = %v, expected %v", test.line, update.Percent, test.percent)
		}
		if test.total > 0 && update.TotalBytes != test.total {
			t.Errorf("%q: total = %d, expected %d", test.line, update.TotalBytes, test.total)
		}
		if test.speed > 0 && update.Speed != test.speed {
			t.Errorf("%q: speed = %v, expected %v", test.line, update.Speed, test.speed)
		}
		if update.ETASeconds != test.eta {
			t.Errorf("%q: eta = %d, expected %d", test.line, update.ETASeconds, test.eta)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in       string
		expected int64
	}{
		{"10.00MiB", 10 * 1024 * 1024},
		{"512KiB", 512 * 1024},
		{"1.50GiB", int64(1.5 * 1024 * 1024 * 1024)},
		{"100B", 100},
		{"2.00KB", 2 * 1024},
		{"junk", 0},
		{"", 0},
	}

	for _, test := range tests {
		if got := parseSize(test.in); got != test.expected {
			t.Errorf("parseSize(%q) = %d, expected %d", test.in, got, test.expected)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in       string
		expected int
	}{
		{"00:05", 5},
		{"01:30", 90},
		{"1:01:05", 3665},
		{"bogus", 0},
	}

	for _, test := range tests {
		if got := parseClock(test.in); got != test.expected {
			t.Errorf("parseClock(%q) = %d, expected %d", test.in, got, test.expected)
		}
	}
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		name     string
		opts     models.JobOptions
		expected string
	}{
		{
			name:     "audio only",
			opts:     models.JobOptions{AudioOnly: true, Resolution: "720p"},
			expected: "bestaudio/best",
		},
		{
			name:     "capped resolution",
			opts:     models.JobOptions{Resolution: "720p"},
			expected: "bestvideo[height<=720]+bestaudio/best[height<=720]/best",
		},
		{
			name:     "best",
			opts:     models.JobOptions{Resolution: "best"},
			expected: "bestvideo+bestaudio/best",
		},
		{
			name:     "empty resolution",
			opts:     models.JobOptions{},
			expected: "bestvideo+bestaudio/best",
		},
		{
			name:     "garbage resolution falls back",
			opts:     models.JobOptions{Resolution: "4K"},
			expected: "bestvideo+bestaudio/best",
		},
	}

	for _, test := range tests {
		if got := formatSelector(test.opts); got != test.expected {
			t.Errorf("%s: formatSelector = %q, expected %q", test.name, got, test.expected)
		}
	}
}

func TestPlatformName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"youtube", "Youtube"},
		{"youtube:tab", "Youtube"},
		{"vimeo", "Vimeo"},
		{"", "Unknown"},
	}

	for _, test := range tests {
		if got := platformName(test.in); got != test.expected {
			t.Errorf("platformName(%q) = %q, expected %q", test.in, got, test.expected)
		}
	}
}

func TestParseInfoJSON_SingleVideo(t *testing.T) {
	data := []byte(`{
		"id": "abc123",
		"title": "Test Video",
		"duration": 125,
		"thumbnail": "https://i.ytimg.com/t.jpg",
		"uploader": "Channel",
		"extractor": "youtube",
		"webpage_url": "https://www.youtube.com/watch?v=abc123",
		"formats": [
			{"format_id": "22", "ext": "mp4", "height": 720, "vcodec": "avc1", "acodec": "mp4a"},
			{"format_id": "137", "ext": "mp4", "height": 1080, "vcodec": "avc1", "acodec": "none"},
			{"format_id": "140", "ext": "m4a", "height": 0, "vcodec": "none", "acodec": "mp4a"},
			{"format_id": "18", "ext": "mp4", "height": 720, "vcodec": "avc1", "acodec": "mp4a"}
		]
	}`)

	info, err := parseInfoJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if info.isPlaylist() {
		t.Fatal("single video detected as playlist")
	}

	meta := videoFromInfo(info, "https://original.url")
	if !meta.Success {
		t.Error("metadata not marked successful")
	}
	if meta.ID != "abc123" || meta.Title != "Test Video" {
		t.Errorf("identity fields wrong: %+v", meta)
	}
	if meta.URL != "https://www.youtube.com/watch?v=abc123" {
		t.Errorf("URL = %q, expected webpage_url to win", meta.URL)
	}
	if meta.Platform != "Youtube" {
		t.Errorf("platform = %q", meta.Platform)
	}
	if meta.DurationString != "2:05" {
		t.Errorf("duration string = %q, expected 2:05", meta.DurationString)
	}
	// Heights deduplicated and sorted descending; audio-only format ignored.
	want := []string{"1080p", "720p"}
	if len(meta.Resolutions) != len(want) {
		t.Fatalf("resolutions = %v, expected %v", meta.Resolutions, want)
	}
	for i := range want {
		if meta.Resolutions[i] != want[i] {
			t.Fatalf("resolutions = %v, expected %v", meta.Resolutions, want)
		}
	}
}

func TestParseInfoJSON_Playlist(t *testing.T) {
	data := []byte(`{
		"_type": "playlist",
		"title": "My Mix",
		"uploader": "Curator",
		"extractor": "youtube:tab",
		"entries": [
			{"id": "v1", "title": "First", "duration": 60, "url": "https://www.youtube.com/watch?v=v1"},
			{"id": "v2", "title": "Second", "duration": 90},
			{"id": "v3", "title": "", "duration": 0}
		]
	}`)

	info, err := parseInfoJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if !info.isPlaylist() {
		t.Fatal("playlist not detected")
	}

	first := videoFromFlatEntry(&info.Entries[0], 1, "My Mix", "Curator")
	if first.URL != "https://www.youtube.com/watch?v=v1" {
		t.Errorf("first child URL = %q", first.URL)
	}
	if first.PlaylistIndex != 1 || first.PlaylistTitle != "My Mix" {
		t.Errorf("first child playlist fields: %+v", first)
	}

	second := videoFromFlatEntry(&info.Entries[1], 2, "My Mix", "Curator")
	if second.URL != "https://www.youtube.com/watch?v=v2" {
		t.Errorf("id-only child URL = %q, expected constructed watch URL", second.URL)
	}
	if second.Uploader != "Curator" {
		t.Errorf("uploader fallback = %q, expected playlist uploader", second.Uploader)
	}

	third := videoFromFlatEntry(&info.Entries[2], 3, "My Mix", "Curator")
	if third.Title != "Video 3" {
		t.Errorf("untitled child title = %q, expected positional fallback", third.Title)
	}
}

func TestVideoFromInfo_TruncatesDescription(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	info := &rawInfo{Title: "T", Description: string(long)}
	meta := videoFromInfo(info, "https://example.com/v")
	if len(meta.Description) != 500 {
		t.Errorf("description length = %d, expected capped at 500", len(meta.Description))
	}
}

func TestVideoFromInfo_TruncatesDescriptionOnRuneBoundary(t *testing.T) {
	// 3-byte runes: the 500-character cap must not land mid-rune.
	info := &rawInfo{Title: "T", Description: strings.Repeat("文", 600)}
	meta := videoFromInfo(info, "https://example.com/v")

	if got := utf8.RuneCountInString(meta.Description); got != 500 {
		t.Errorf("description runes = %d, expected 500", got)
	}
	if !utf8.ValidString(meta.Description) {
		t.Error("truncated description is not valid UTF-8")
	}
}

func TestParseDurationPrint(t *testing.T) {
	tests := []struct {
		line     string
		expected float64
		ok       bool
	}{
		{"duration=213", 213, true},
		{"duration=83.5", 83.5, true},
		{"duration=NA", 0, false},
		{"duration=", 0, false},
		{"[download]  45.0% of 10.00MiB", 0, false},
		{"Destination: duration=5", 0, false},
	}

	for _, test := range tests {
		got, ok := parseDurationPrint(test.line)
		if ok != test.ok || got != test.expected {
			t.Errorf("parseDurationPrint(%q) = (%v, %v), expected (%v, %v)",
				test.line, got, ok, test.expected, test.ok)
		}
	}
}

func TestFinalName(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		opts     models.JobOptions
		expected string
	}{
		{"audio rewrites to mp3", "/d/song.webm", models.JobOptions{AudioOnly: true}, "/d/song.mp3"},
		{"remux to container", "/d/video.webm", models.JobOptions{Format: "mkv"}, "/d/video.mkv"},
		{"no container keeps path", "/d/video.webm", models.JobOptions{}, "/d/video.webm"},
	}

	for _, test := range tests {
		if got := finalName(test.path, test.opts); got != test.expected {
			t.Errorf("%s: finalName = %q, expected %q", test.name, got, test.expected)
		}
	}
}
