package proc

import (
	"testing"
)

const spotifyTrackPage = `<!DOCTYPE html><html><head></head><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"state":{"data":{"entity":{"name":"Test Song","duration":215000,"artists":[{"name":"Test Artist"}],"coverArt":{"sources":[{"url":"https://i.scdn.co/image/small"},{"url":"https://i.scdn.co/image/large"}]}}}}}}}</script>
</body></html>`

const spotifyPlaylistPage = `<!DOCTYPE html><html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"state":{"data":{"entity":{"name":"Mix","trackList":[{"title":"One","subtitle":"Artist A","duration":180000},{"title":"Two","subtitle":"Artist B","duration":200000},{"title":"","subtitle":"ghost","duration":1000}]}}}}}}</script>
</body></html>`

func TestParseSpotifyEmbedTrack(t *testing.T) {
	e, err := parseSpotifyEmbed([]byte(spotifyTrackPage))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Name != "Test Song" {
		t.Fatalf("name = %q", e.Name)
	}
	if len(e.Artists) != 1 || e.Artists[0].Name != "Test Artist" {
		t.Fatalf("artists = %+v", e.Artists)
	}
	if e.Duration != 215000 {
		t.Fatalf("duration = %d", e.Duration)
	}
	if n := len(e.CoverArt.Sources); n != 2 || e.CoverArt.Sources[n-1].URL != "https://i.scdn.co/image/large" {
		t.Fatalf("cover art = %+v", e.CoverArt.Sources)
	}
}

func TestParseSpotifyEmbedPlaylist(t *testing.T) {
	e, err := parseSpotifyEmbed([]byte(spotifyPlaylistPage))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(e.TrackList) != 3 {
		t.Fatalf("trackList len = %d", len(e.TrackList))
	}
	if e.TrackList[0].Title != "One" || e.TrackList[0].Subtitle != "Artist A" {
		t.Fatalf("first entry = %+v", e.TrackList[0])
	}
}

func TestParseSpotifyEmbedMissingPayload(t *testing.T) {
	if _, err := parseSpotifyEmbed([]byte("<html><body>nothing here</body></html>")); err == nil {
		t.Fatal("expected error for page without payload")
	}
}
