package proc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

type fakeCatalog struct {
	track *Track
	err   error
	calls []string
}

func (f *fakeCatalog) SearchTrack(ctx context.Context, query string) (*Track, error) {
	f.calls = append(f.calls, query)
	if f.err != nil {
		return nil, f.err
	}
	t := *f.track
	return &t, nil
}

type fakeVideo struct {
	meta        *Track
	metaErr     error
	entries     []*Track
	entriesErr  error
	lastMaxSeen int
}

func (f *fakeVideo) Metadata(ctx context.Context, url string) (*Track, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	t := *f.meta
	t.PlaybackURL = url
	t.SourceURL = url
	return &t, nil
}

func (f *fakeVideo) PlaylistEntries(ctx context.Context, url string, max int) ([]*Track, error) {
	f.lastMaxSeen = max
	if f.entriesErr != nil {
		return nil, f.entriesErr
	}
	return f.entries, nil
}

func TestResolveFreeTextSearchesCatalog(t *testing.T) {
	cat := &fakeCatalog{track: &Track{Title: "Song", Artist: "Artist", PlaybackURL: "https://www.youtube.com/watch?v=x"}}
	r := NewResolverWith(cat, &fakeVideo{}, 500)

	stream, err := r.Resolve(context.Background(), "never gonna give", "alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if stream.Total() != 1 {
		t.Fatalf("Total = %d, want 1", stream.Total())
	}

	got, ok := stream.Next()
	if !ok {
		t.Fatal("stream empty")
	}
	if got.Title != "Song" || got.RequestedBy != "alice" {
		t.Fatalf("got %+v", got)
	}
	if _, ok := stream.Next(); ok {
		t.Fatal("single track stream yielded twice")
	}
}

func TestResolveVideoURLUsesExtractor(t *testing.T) {
	vid := &fakeVideo{meta: &Track{Title: "Video"}}
	r := NewResolverWith(&fakeCatalog{err: ErrNoResults}, vid, 500)

	stream, err := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "bob")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, _ := stream.Next()
	if got == nil || got.Title != "Video" {
		t.Fatalf("got %+v", got)
	}
}

func TestResolvePlaylistPassesCap(t *testing.T) {
	vid := &fakeVideo{entries: []*Track{
		{Title: "a", PlaybackURL: "u1"},
		{Title: "b", PlaybackURL: "u2"},
	}}
	r := NewResolverWith(&fakeCatalog{err: ErrNoResults}, vid, 7)

	stream, err := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=x&list=PLxyz", "carol")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if vid.lastMaxSeen != 7 {
		t.Fatalf("playlist cap = %d, want 7", vid.lastMaxSeen)
	}

	var titles []string
	for {
		tr, ok := stream.Next()
		if !ok {
			break
		}
		titles = append(titles, tr.Title)
		if tr.RequestedBy != "carol" {
			t.Fatalf("requester lost on %s", tr.Title)
		}
	}
	if len(titles) != 2 || titles[0] != "a" || titles[1] != "b" {
		t.Fatalf("titles = %v", titles)
	}
}

func TestResolveEmptyPlaylistIsNotFound(t *testing.T) {
	vid := &fakeVideo{entriesErr: ErrNoResults}
	r := NewResolverWith(&fakeCatalog{err: ErrNoResults}, vid, 500)

	_, err := r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PLdead", "dan")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestResolveUnknownURLFallsBackToExtractor(t *testing.T) {
	vid := &fakeVideo{meta: &Track{Title: "SoundThing"}}
	r := NewResolverWith(&fakeCatalog{err: ErrNoResults}, vid, 500)

	stream, err := r.Resolve(context.Background(), "https://example.com/audio/123", "eve")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, _ := stream.Next()
	if got == nil || got.Title != "SoundThing" {
		t.Fatalf("got %+v", got)
	}
}

func TestResolveUnknownURLUnsupportedWhenExtractorFails(t *testing.T) {
	vid := &fakeVideo{metaErr: errors.New("no extractor")}
	r := NewResolverWith(&fakeCatalog{err: ErrNoResults}, vid, 500)

	_, err := r.Resolve(context.Background(), "https://example.com/nothing", "eve")
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want unsupported", err)
	}
}

func TestResolveEmptyInputUnsupported(t *testing.T) {
	r := NewResolverWith(&fakeCatalog{}, &fakeVideo{}, 500)
	if _, err := r.Resolve(context.Background(), "   ", "x"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want unsupported", err)
	}
}

func TestTrackStreamSkipsFailedEntries(t *testing.T) {
	pending := []*Track{
		{Title: "good1"},
		{Title: "bad"},
		{Title: "good2"},
	}
	stream := &TrackStream{
		ctx:         context.Background(),
		pending:     pending,
		requestedBy: "frank",
		finalize: func(ctx context.Context, e *Track) (*Track, error) {
			if e.Title == "bad" {
				return nil, fmt.Errorf("%w: bad entry", ErrNotFound)
			}
			return e, nil
		},
	}

	var got []string
	for {
		tr, ok := stream.Next()
		if !ok {
			break
		}
		got = append(got, tr.Title)
	}
	if len(got) != 2 || got[0] != "good1" || got[1] != "good2" {
		t.Fatalf("got %v", got)
	}
	if stream.Skipped() != 1 {
		t.Fatalf("Skipped = %d, want 1", stream.Skipped())
	}
}

func TestInputClassificationPatterns(t *testing.T) {
	cases := []struct {
		input    string
		playlist bool
		spotify  bool
		video    bool
	}{
		{"https://www.youtube.com/watch?v=abc123", false, false, true},
		{"https://youtu.be/abc123", false, false, true},
		{"https://music.youtube.com/watch?v=abc123", false, false, true},
		{"https://www.youtube.com/watch?v=abc&list=PLfoo", true, false, true},
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", false, true, false},
		{"https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC", false, true, false},
	}

	for _, c := range cases {
		if got := reYouTubeList.MatchString(c.input); got != c.playlist {
			t.Errorf("%s: playlist match = %v", c.input, got)
		}
		if got := reSpotifyTrack.MatchString(c.input); got != c.spotify {
			t.Errorf("%s: spotify track match = %v", c.input, got)
		}
		if got := reYouTubeVideo.MatchString(c.input); got != c.video {
			t.Errorf("%s: video match = %v", c.input, got)
		}
	}

	if m := reSpotifyListing.FindStringSubmatch("https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"); m == nil || m[1] != "playlist" {
		t.Errorf("playlist listing not classified: %v", m)
	}
	if m := reSpotifyListing.FindStringSubmatch("https://open.spotify.com/album/6nxDQi0FeEwccEPJeNySoS"); m == nil || m[1] != "album" {
		t.Errorf("album listing not classified: %v", m)
	}
}

func TestTruncateSuggestionRuneBoundary(t *testing.T) {
	if got := TruncateSuggestion("short", 100); got != "short" {
		t.Fatalf("short string changed: %q", got)
	}

	// A multi-byte rune straddling the cut point must be dropped whole,
	// never split into invalid UTF-8.
	s := strings.Repeat("a", 98) + "日本語"
	got := TruncateSuggestion(s, 100)
	if !utf8.ValidString(got) {
		t.Fatalf("result is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("truncated result missing ellipsis: %q", got)
	}
	if strings.ContainsRune(got, '日') {
		t.Fatalf("partial rune survived the cut: %q", got)
	}
}
