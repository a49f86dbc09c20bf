// Package resolver turns user-supplied URLs into video metadata, expanding
// playlists into ordered child descriptors.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dammysspp/YT-SP/internal/models"
)

// ErrInvalidURL marks a slot whose input never reached the capability.
var ErrInvalidURL = errors.New("invalid url")

// MetadataFetcher is the slice of the external capability the resolver needs.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, url string) (*models.MediaInfo, error)
}

// Resolver resolves batches of URLs against the external capability.
type Resolver struct {
	fetcher MetadataFetcher
}

// New creates a resolver on top of the given capability.
func New(fetcher MetadataFetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve produces exactly one result per input URL, in input order. Distinct
// URLs are resolved in parallel; a failure in one slot never aborts the
// others. Playlist expansions come back with 1-based child indices and the
// playlist's total count already stamped on every child.
func (r *Resolver) Resolve(ctx context.Context, urls []string) []models.ResolveResult {
	results := make([]models.ResolveResult, len(urls))

	var wg sync.WaitGroup
	for i, raw := range urls {
		url := strings.TrimSpace(raw)
		results[i].URL = url

		if !models.ValidateURL(url) {
			results[i].Err = fmt.Errorf("%w: %q", ErrInvalidURL, url)
			continue
		}

		wg.Add(1)
		go func(slot int, url string) {
			defer wg.Done()
			info, err := r.fetcher.FetchMetadata(ctx, url)
			if err != nil {
				results[slot].Err = err
				return
			}
			if info.IsPlaylist {
				stampPlaylist(info)
			}
			results[slot].Info = info
		}(i, url)
	}
	wg.Wait()

	return results
}

// stampPlaylist normalizes child ordering metadata: 1-based position and the
// playlist title on every child, whatever the capability filled in.
func stampPlaylist(info *models.MediaInfo) {
	total := len(info.Videos)
	for i := range info.Videos {
		info.Videos[i].PlaylistIndex = i + 1
		info.Videos[i].PlaylistCount = total
		if info.Videos[i].PlaylistTitle == "" {
			info.Videos[i].PlaylistTitle = info.PlaylistTitle
		}
	}
}
