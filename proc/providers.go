package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/raitonoberu/ytmusic"
	"golang.org/x/time/rate"
)

var (
	jsOnce       sync.Once
	cachedJSArgs []string

	// Extractor calls shell out to yt-dlp; keep them from stampeding.
	ytdlpLimiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 5)
)

// newYtdlp returns a new yt-dlp command with quiet output and optional proxy
func newYtdlp() (*ytdlp.Command, func()) {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()

	if proxy := os.Getenv("YOUTUBE_PROXY"); proxy != "" {
		cmd.Proxy(proxy)
	}

	return cmd, func() {}
}

// buildYtdlpArgs returns common args for yt-dlp commands
func buildYtdlpArgs() []string {
	jsOnce.Do(func() {
		for _, rt := range []string{"node", "deno", "quickjs"} {
			if path, err := exec.LookPath(rt); err == nil {
				cachedJSArgs = append(cachedJSArgs, "--js-runtimes", rt+":"+path)
				break
			}
		}
	})

	args := append([]string(nil), cachedJSArgs...)
	args = append(args,
		"--no-playlist",
		"--no-check-certificates",
		"--no-warnings",
		"--extractor-args", "youtube:player_client=android,web",
		"--prefer-free-formats",
		"--socket-timeout", "30",
		"--retries", "20",
		"--fragment-retries", "20",
	)
	return args
}

// CatalogProvider searches a music catalog for the best track match.
type CatalogProvider interface {
	SearchTrack(ctx context.Context, query string) (*Track, error)
}

// VideoProvider resolves video URLs into playable tracks and expands
// playlists into their entries.
type VideoProvider interface {
	Metadata(ctx context.Context, url string) (*Track, error)
	PlaylistEntries(ctx context.Context, url string, max int) ([]*Track, error)
}

// YTMusicProvider backs catalog search with YouTube Music.
type YTMusicProvider struct{}

func (YTMusicProvider) SearchTrack(ctx context.Context, query string) (*Track, error) {
	done := make(chan struct{})
	var (
		result *ytmusic.SearchResult
		err    error
	)
	go func() {
		defer close(done)
		s := ytmusic.TrackSearch(query)
		result, err = s.Next()
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	if err != nil {
		return nil, err
	}

	for _, v := range result.Tracks {
		if v.VideoID == "" {
			continue
		}
		t := &Track{
			Title:       v.Title,
			Duration:    time.Duration(v.Duration) * time.Second,
			PlaybackURL: "https://www.youtube.com/watch?v=" + v.VideoID,
			SourceURL:   "https://music.youtube.com/watch?v=" + v.VideoID,
		}
		if len(v.Artists) > 0 {
			t.Artist = v.Artists[0].Name
		}
		if n := len(v.Thumbnails); n > 0 {
			t.AlbumArtURL = v.Thumbnails[n-1].URL
		}
		return t, nil
	}
	return nil, ErrNoResults
}

// ErrNoResults means a search completed but matched nothing.
var ErrNoResults = errors.New("no results")

// YtdlpProvider backs URL resolution with yt-dlp.
type YtdlpProvider struct{}

func (YtdlpProvider) Metadata(ctx context.Context, u string) (*Track, error) {
	if err := ytdlpLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	u = strings.Replace(u, "music.youtube.com", "www.youtube.com", 1)

	cmd, cleanup := newYtdlp()
	defer cleanup()

	args := append(buildYtdlpArgs(), "--skip-download")
	res, err := cmd.
		Print("%(webpage_url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(thumbnail)s").
		IgnoreConfig().
		NoWarnings().
		Run(ctx, append(args, u)...)

	if err != nil {
		if res != nil && strings.Contains(strings.ToLower(res.Stderr), "drm") {
			return nil, fmt.Errorf("DRM: %w", err)
		}
		return nil, err
	}

	for _, l := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 {
			continue
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		t := &Track{
			Title:       ps[1],
			Artist:      ps[2],
			Duration:    d,
			PlaybackURL: ps[0],
			SourceURL:   ps[0],
		}
		if len(ps) >= 5 && ps[4] != "NA" {
			t.AlbumArtURL = ps[4]
		}
		return t, nil
	}
	return nil, errors.New("failed to parse metadata")
}

func (YtdlpProvider) PlaylistEntries(ctx context.Context, u string, max int) ([]*Track, error) {
	if err := ytdlpLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	cmd, cleanup := newYtdlp()
	defer cleanup()

	// Watch URLs carrying a list parameter must expand, so --no-playlist
	// is stripped here.
	args := make([]string, 0, 16)
	for _, a := range buildYtdlpArgs() {
		if a == "--no-playlist" {
			continue
		}
		args = append(args, a)
	}

	// Flat extraction keeps playlist expansion to a single network call.
	res, err := cmd.
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", max)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, append(args, u)...)

	if err != nil {
		return nil, err
	}

	ls := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	ts := make([]*Track, 0, len(ls))
	for _, l := range ls {
		ps := strings.Split(l, "\t")
		if len(ps) < 4 {
			continue
		}
		if ps[0] == "" || ps[0] == "NA" {
			continue
		}
		d, _ := time.ParseDuration(ps[3] + "s")
		ts = append(ts, &Track{
			Title:       ps[1],
			Artist:      ps[2],
			Duration:    d,
			PlaybackURL: ps[0],
			SourceURL:   ps[0],
		})
	}
	if len(ts) == 0 {
		return nil, ErrNoResults
	}
	return ts, nil
}
