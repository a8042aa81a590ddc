package proc

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"

	"github.com/leeineian/kanade/sys"
)

var (
	// ErrNotFound means the input was understood but no playable track
	// could be produced for it.
	ErrNotFound = errors.New("track not found")
	// ErrUnsupported means the input does not match any supported source.
	ErrUnsupported = errors.New("unsupported input")
)

const resolverCacheTTL = 1 * time.Hour

var (
	reHTTPURL        = regexp.MustCompile(`^https?://`)
	reYouTubeVideo   = regexp.MustCompile(`(?:www\.|music\.|m\.)?(?:youtube\.com/watch\?|youtu\.be/)`)
	reYouTubeList    = regexp.MustCompile(`[?&]list=[A-Za-z0-9_-]+`)
	reSpotifyTrack   = regexp.MustCompile(`open\.spotify\.com/(?:intl-[a-z-]+/)?track/([A-Za-z0-9]+)`)
	reSpotifyListing = regexp.MustCompile(`open\.spotify\.com/(?:intl-[a-z-]+/)?(playlist|album)/([A-Za-z0-9]+)`)
)

// Resolver turns user input (a search query or URL) into playable tracks.
// Single inputs resolve eagerly; playlists resolve lazily through a
// TrackStream so enqueueing can start before the whole list is processed.
type Resolver struct {
	catalog     CatalogProvider
	video       VideoProvider
	maxPlaylist int
}

var (
	onceResolver    sync.Once
	defaultResolver *Resolver
)

// GetResolver returns the process-wide resolver.
func GetResolver() *Resolver {
	onceResolver.Do(func() {
		defaultResolver = NewResolver()
	})
	return defaultResolver
}

func NewResolver() *Resolver {
	max := 500
	if sys.GlobalConfig != nil && sys.GlobalConfig.MaxPlaylistTracks > 0 {
		max = sys.GlobalConfig.MaxPlaylistTracks
	}
	return &Resolver{
		catalog:     YTMusicProvider{},
		video:       YtdlpProvider{},
		maxPlaylist: max,
	}
}

// NewResolverWith wires explicit providers, used by tests.
func NewResolverWith(catalog CatalogProvider, video VideoProvider, maxPlaylist int) *Resolver {
	return &Resolver{catalog: catalog, video: video, maxPlaylist: maxPlaylist}
}

// TrackStream yields resolved tracks one at a time. Entries that fail to
// finalize are skipped and counted rather than aborting the whole stream.
type TrackStream struct {
	ctx         context.Context
	pending     []*Track
	finalize    func(context.Context, *Track) (*Track, error)
	requestedBy string

	idx     int
	skipped int
}

// Next returns the next playable track, or false when the stream is done.
func (s *TrackStream) Next() (*Track, bool) {
	for s.idx < len(s.pending) {
		entry := s.pending[s.idx]
		s.idx++

		t := entry
		if s.finalize != nil {
			var err error
			t, err = s.finalize(s.ctx, entry)
			if err != nil {
				s.skipped++
				sys.LogResolver("Skipping %q: %v", entry.Title, err)
				continue
			}
		}
		t.RequestedBy = s.requestedBy
		return t, true
	}
	return nil, false
}

// Total is the number of entries the stream started with.
func (s *TrackStream) Total() int { return len(s.pending) }

// Skipped is the number of entries dropped so far.
func (s *TrackStream) Skipped() int { return s.skipped }

func singleTrackStream(t *Track, requestedBy string) *TrackStream {
	return &TrackStream{pending: []*Track{t}, requestedBy: requestedBy}
}

// Resolve classifies the input and produces a track stream for it.
func (r *Resolver) Resolve(ctx context.Context, input, requestedBy string) (*TrackStream, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrUnsupported
	}

	if !reHTTPURL.MatchString(input) {
		t, err := r.searchCatalog(ctx, input)
		if err != nil {
			return nil, err
		}
		return singleTrackStream(t, requestedBy), nil
	}

	if m := reSpotifyListing.FindStringSubmatch(input); m != nil {
		return r.resolveSpotifyListing(ctx, m[1], m[2], requestedBy)
	}
	if m := reSpotifyTrack.FindStringSubmatch(input); m != nil {
		t, err := r.resolveSpotifyTrack(ctx, m[1])
		if err != nil {
			return nil, err
		}
		return singleTrackStream(t, requestedBy), nil
	}
	if reYouTubeList.MatchString(input) {
		return r.resolvePlaylist(ctx, input, requestedBy)
	}
	if reYouTubeVideo.MatchString(input) {
		t, err := r.resolveVideo(ctx, input)
		if err != nil {
			return nil, err
		}
		return singleTrackStream(t, requestedBy), nil
	}

	// Anything else http(s) gets one shot through the extractor, which
	// understands far more sites than are worth enumerating here.
	t, err := r.resolveVideo(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, input)
	}
	return singleTrackStream(t, requestedBy), nil
}

func (r *Resolver) searchCatalog(ctx context.Context, query string) (*Track, error) {
	key := "q:" + strings.ToLower(query)
	if t := lookupCache(ctx, key); t != nil {
		return t, nil
	}

	t, err := r.catalog.SearchTrack(ctx, query)
	if err != nil {
		// The music catalog misses plenty of non-music content; plain
		// video search picks those up.
		t, err = fallbackVideoSearch(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, query)
		}
	}

	storeCache(ctx, key, t)
	return t, nil
}

func fallbackVideoSearch(ctx context.Context, query string) (*Track, error) {
	c := ytsearch.NewClient(nil)
	r, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		u := "https://www.youtube.com/watch?v=" + v.VideoID
		return &Track{Title: v.Title, PlaybackURL: u, SourceURL: u}, nil
	}
	return nil, ErrNoResults
}

func (r *Resolver) resolveVideo(ctx context.Context, u string) (*Track, error) {
	if t := lookupCache(ctx, u); t != nil {
		return t, nil
	}

	t, err := r.video.Metadata(ctx, u)
	if err != nil {
		return nil, err
	}

	storeCache(ctx, u, t)
	return t, nil
}

// resolveSpotifyTrack scrapes the track's metadata then finds a playable
// counterpart on the video catalog.
func (r *Resolver) resolveSpotifyTrack(ctx context.Context, id string) (*Track, error) {
	key := "spotify:track:" + id
	if t := lookupCache(ctx, key); t != nil {
		return t, nil
	}

	meta, err := SpotifyTrack(ctx, id)
	if err != nil {
		sys.LogResolver("Spotify scrape failed for track %s: %v", id, err)
		return nil, fmt.Errorf("%w: spotify track %s", ErrNotFound, id)
	}

	t, err := r.rematchOnCatalog(ctx, meta)
	if err != nil {
		return nil, err
	}

	storeCache(ctx, key, t)
	return t, nil
}

// rematchOnCatalog searches "{title} {artist}" and grafts the playback URL
// onto the scraped metadata, which stays authoritative for display.
func (r *Resolver) rematchOnCatalog(ctx context.Context, meta *Track) (*Track, error) {
	query := meta.Title
	if meta.Artist != "" {
		query += " " + meta.Artist
	}

	hit, err := r.catalog.SearchTrack(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: no playable match for %q", ErrNotFound, query)
	}

	t := *meta
	t.PlaybackURL = hit.PlaybackURL
	if t.Duration == 0 {
		t.Duration = hit.Duration
	}
	if t.AlbumArtURL == "" {
		t.AlbumArtURL = hit.AlbumArtURL
	}
	return &t, nil
}

func (r *Resolver) resolveSpotifyListing(ctx context.Context, kind, id, requestedBy string) (*TrackStream, error) {
	entries, err := SpotifyPlaylist(ctx, kind, id)
	if err != nil {
		sys.LogResolver("Spotify scrape failed for %s %s: %v", kind, id, err)
		return nil, fmt.Errorf("%w: spotify %s %s", ErrNotFound, kind, id)
	}
	if len(entries) > r.maxPlaylist {
		entries = entries[:r.maxPlaylist]
	}

	return &TrackStream{
		ctx:         ctx,
		pending:     entries,
		requestedBy: requestedBy,
		finalize: func(ctx context.Context, e *Track) (*Track, error) {
			key := "q:" + strings.ToLower(e.Title+" "+e.Artist)
			if t := lookupCache(ctx, key); t != nil {
				return t, nil
			}
			t, err := r.rematchOnCatalog(ctx, e)
			if err != nil {
				return nil, err
			}
			storeCache(ctx, key, t)
			return t, nil
		},
	}, nil
}

func (r *Resolver) resolvePlaylist(ctx context.Context, u, requestedBy string) (*TrackStream, error) {
	entries, err := r.video.PlaylistEntries(ctx, u, r.maxPlaylist)
	if errors.Is(err, ErrNoResults) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
	}
	if err != nil {
		return nil, err
	}

	return &TrackStream{
		ctx:         ctx,
		pending:     entries,
		requestedBy: requestedBy,
	}, nil
}

func lookupCache(ctx context.Context, key string) *Track {
	if sys.DB == nil {
		return nil
	}
	c, err := sys.GetCachedTrack(ctx, key)
	if err != nil || c == nil {
		return nil
	}
	return &Track{
		Title:       c.Title,
		Artist:      c.Artist,
		Duration:    time.Duration(c.DurationMs) * time.Millisecond,
		PlaybackURL: c.PlaybackURL,
		SourceURL:   c.SourceURL,
		AlbumArtURL: c.AlbumArtURL,
	}
}

func storeCache(ctx context.Context, key string, t *Track) {
	if sys.DB == nil {
		return
	}
	err := sys.PutCachedTrack(ctx, key, &sys.CachedTrack{
		Title:       t.Title,
		Artist:      t.Artist,
		DurationMs:  t.Duration.Milliseconds(),
		PlaybackURL: t.PlaybackURL,
		SourceURL:   t.SourceURL,
		AlbumArtURL: t.AlbumArtURL,
	}, resolverCacheTTL)
	if err != nil {
		sys.LogResolver("Cache write failed for %q: %v", key, err)
	}
}

// SearchResult is one autocomplete suggestion.
type SearchResult struct {
	URL   string
	Title string
}

// SearchSuggestions fans out to YouTube Music and YouTube concurrently and
// merges the results under a hard deadline, music hits first.
func SearchSuggestions(query string) []SearchResult {
	ctx, cancel := context.WithTimeout(context.Background(), 2600*time.Millisecond)
	defer cancel()

	resMu := sync.Mutex{}
	var ytm, yt []SearchResult
	seen := make(map[string]bool)
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(query)
		r, _ := s.Next()
		if r == nil {
			return
		}
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			art := ""
			if len(v.Artists) > 0 {
				art = " - " + v.Artists[0].Name
			}
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, SearchResult{URL: "https://music.youtube.com/watch?v=" + v.VideoID, Title: TruncateSuggestion(v.Title+art, 100)})
			}
			resMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, err := c.Search(ctx, query)
		if err != nil {
			return
		}
		for _, v := range r.Results {
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, SearchResult{URL: "https://www.youtube.com/watch?v=" + v.VideoID, Title: TruncateSuggestion(v.Title, 100)})
			}
			resMu.Unlock()
		}
	}()

	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-time.After(2300 * time.Millisecond):
	}

	resMu.Lock()
	defer resMu.Unlock()
	fin := append(append([]SearchResult(nil), ytm...), yt...)
	if len(fin) > 25 {
		fin = fin[:25]
	}
	return fin
}

// TruncateSuggestion shortens s to at most max bytes without splitting a
// multi-byte rune, appending an ellipsis when it cuts.
func TruncateSuggestion(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max-1]
	// Avoid splitting a multi-byte rune at the boundary.
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size > 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}
