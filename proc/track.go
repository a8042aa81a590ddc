package proc

import (
	"fmt"
	"time"
)

// Track is a resolved, playable entry. Fields are set by the resolver and
// never mutated afterward, except RequestedBy which is stamped exactly once
// at enqueue time.
type Track struct {
	Title       string
	Artist      string
	Duration    time.Duration
	AlbumArtURL string

	// PlaybackURL is the resolved, directly streamable reference. It is the
	// only field the streaming path reads. Validity is time-limited.
	PlaybackURL string

	// SourceURL is the original user-facing reference, which may differ from
	// PlaybackURL (catalog tracks resolve playback through a different
	// provider than their metadata).
	SourceURL string

	RequestedBy string
}

// DurationString renders MM:SS, or H:MM:SS past the hour mark.
func (t *Track) DurationString() string {
	total := int(t.Duration / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func (t *Track) Display() string {
	if t.Artist != "" {
		return t.Title + " · " + t.Artist
	}
	return t.Title
}
