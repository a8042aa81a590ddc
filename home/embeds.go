package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"

	"github.com/leeineian/kanade/proc"
)

const (
	colorPlaying = 0x5865F2
	colorQueued  = 0x57F287
)

func nowPlayingEmbed(t *proc.Track) discord.Embed {
	return trackEmbed("🎶 Now Playing", colorPlaying, t)
}

func addedEmbed(t *proc.Track, position int) discord.Embed {
	e := trackEmbed(fmt.Sprintf("✅ Added to queue (#%d)", position), colorQueued, t)
	return e
}

func trackEmbed(title string, color int, t *proc.Track) discord.Embed {
	b := discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(fmt.Sprintf("[%s](%s)", t.Display(), t.SourceURL)).
		SetColor(color)

	if t.Duration > 0 {
		b.AddField("Duration", t.DurationString(), true)
	}
	if t.RequestedBy != "" {
		b.AddField("Requested by", t.RequestedBy, true)
	}
	if t.AlbumArtURL != "" {
		b.SetThumbnail(t.AlbumArtURL)
	}
	return b.Build()
}

func queueEmbed(current *proc.Track, pending []*proc.Track, shuffle bool) discord.Embed {
	b := discord.NewEmbedBuilder().
		SetTitle("Queue").
		SetColor(colorPlaying)

	desc := ""
	if current != nil {
		desc += fmt.Sprintf("▶️ **Now Playing:** [%s](%s) `%s`\n\n", current.Display(), current.SourceURL, current.DurationString())
	}

	if len(pending) == 0 {
		desc += "_The queue is empty._"
	} else {
		for i, t := range pending {
			if i >= 10 {
				desc += fmt.Sprintf("\n*...and %d more*", len(pending)-10)
				break
			}
			desc += fmt.Sprintf("`%d.` [%s](%s) `%s`\n", i+1, t.Display(), t.SourceURL, t.DurationString())
		}
	}
	if shuffle {
		desc += "\n\n🔀 **Shuffle:** Enabled"
	}

	b.SetDescription(desc)
	return b.Build()
}
