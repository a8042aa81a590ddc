package proc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Spotify offers no public metadata API without credentials, but its embed
// pages carry the track data as a JSON blob. Only name, artist, duration
// and cover art are taken; playback is re-searched on the video provider.

const spotifyUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var spotifyHTTP = &http.Client{Timeout: 15 * time.Second}

type spotifyEntity struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Duration int64  `json:"duration"`
	Artists  []struct {
		Name string `json:"name"`
	} `json:"artists"`
	CoverArt struct {
		Sources []struct {
			URL string `json:"url"`
		} `json:"sources"`
	} `json:"coverArt"`
	TrackList []struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
		Duration int64  `json:"duration"`
	} `json:"trackList"`
}

type spotifyEmbedPage struct {
	Props struct {
		PageProps struct {
			State struct {
				Data struct {
					Entity spotifyEntity `json:"entity"`
				} `json:"data"`
			} `json:"state"`
		} `json:"pageProps"`
	} `json:"props"`
}

func fetchSpotifyEntity(ctx context.Context, kind, id string) (*spotifyEntity, error) {
	u := fmt.Sprintf("https://open.spotify.com/embed/%s/%s", kind, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", spotifyUserAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := spotifyHTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify embed returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	return parseSpotifyEmbed(body)
}

func parseSpotifyEmbed(body []byte) (*spotifyEntity, error) {
	const marker = `<script id="__NEXT_DATA__" type="application/json">`
	s := string(body)
	i := strings.Index(s, marker)
	if i < 0 {
		return nil, errors.New("embed payload not found")
	}
	s = s[i+len(marker):]
	j := strings.Index(s, "</script>")
	if j < 0 {
		return nil, errors.New("embed payload truncated")
	}

	var page spotifyEmbedPage
	if err := json.Unmarshal([]byte(s[:j]), &page); err != nil {
		return nil, err
	}
	return &page.Props.PageProps.State.Data.Entity, nil
}

// SpotifyTrack scrapes a single track's metadata. The returned Track has
// no PlaybackURL; the caller re-searches the catalog to find one.
func SpotifyTrack(ctx context.Context, id string) (*Track, error) {
	e, err := fetchSpotifyEntity(ctx, "track", id)
	if err != nil {
		return nil, err
	}

	name := e.Name
	if name == "" {
		name = e.Title
	}
	if name == "" {
		return nil, ErrNoResults
	}

	t := &Track{
		Title:     name,
		Duration:  time.Duration(e.Duration) * time.Millisecond,
		SourceURL: "https://open.spotify.com/track/" + id,
	}
	if len(e.Artists) > 0 {
		t.Artist = e.Artists[0].Name
	}
	if n := len(e.CoverArt.Sources); n > 0 {
		t.AlbumArtURL = e.CoverArt.Sources[n-1].URL
	}
	return t, nil
}

// SpotifyPlaylist scrapes a playlist or album's track list. Entries carry
// title and artist only; each is re-searched on the catalog downstream.
func SpotifyPlaylist(ctx context.Context, kind, id string) ([]*Track, error) {
	e, err := fetchSpotifyEntity(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if len(e.TrackList) == 0 {
		return nil, ErrNoResults
	}

	ts := make([]*Track, 0, len(e.TrackList))
	for _, item := range e.TrackList {
		if item.Title == "" {
			continue
		}
		ts = append(ts, &Track{
			Title:     item.Title,
			Artist:    item.Subtitle,
			Duration:  time.Duration(item.Duration) * time.Millisecond,
			SourceURL: "https://open.spotify.com/" + kind + "/" + id,
		})
	}
	if len(ts) == 0 {
		return nil, ErrNoResults
	}
	return ts, nil
}
