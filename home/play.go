package home

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/kanade/proc"
	"github.com/leeineian/kanade/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "play",
		Description: "Play a track, playlist or search result",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:         "query",
				Description:  "Song name or URL (YouTube, YouTube Music, Spotify)",
				Required:     true,
				Autocomplete: true,
			},
		},
	}, handlePlay)

	sys.RegisterAutocompleteHandler("play", handlePlayAutocomplete)
}

func handlePlay(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	query, _ := data.OptString("query")

	if event.GuildID() == nil {
		reply(event, "This command only works in a server.", true)
		return
	}
	guildID := *event.GuildID()

	vs, ok := event.Client().Caches.VoiceState(guildID, event.User().ID)
	if !ok || vs.ChannelID == nil {
		reply(event, sys.ErrNotInVoiceChannel, true)
		return
	}
	channelID := *vs.ChannelID

	sys.LogVoice("User %s (%s) requested playback: %s", event.User().Username, event.User().ID, query)
	_ = event.DeferCreateMessage(false)

	client := event.Client()
	appID := event.ApplicationID()
	token := event.Token()
	requester := event.User().Mention()

	sys.SafeGo(func() {
		ctx, cancel := context.WithTimeout(sys.AppContext, 10*time.Minute)
		defer cancel()

		reg := proc.GetSessionRegistry()

		// Join and resolve race each other; both must land before playback.
		joinErr := make(chan error, 1)
		go func() {
			_, _, err := reg.Join(ctx, client, guildID, channelID)
			joinErr <- err
		}()

		stream, err := proc.GetResolver().Resolve(ctx, query, requester)
		if err != nil {
			respondUpdate(event, appID, token, resolveErrorMessage(err))
			return
		}

		first, ok := stream.Next()
		if !ok {
			respondUpdate(event, appID, token, sys.ErrTrackNotFound)
			return
		}

		if err := <-joinErr; err != nil {
			respondUpdate(event, appID, token, fmt.Sprintf(sys.ErrPlaybackStartFail, err))
			return
		}

		player, queue, ok := reg.Get(guildID)
		if !ok {
			respondUpdate(event, appID, token, fmt.Sprintf(sys.ErrPlaybackStartFail, "session lost"))
			return
		}

		wasIdle := player.State() == proc.StateIdle
		pos := queue.Add(first) + 1
		if wasIdle {
			if err := player.PlayNext(); err != nil {
				respondUpdate(event, appID, token, fmt.Sprintf(sys.ErrPlaybackStartFail, err))
				return
			}
		}

		// The queued track may have failed to start and been skipped, so
		// the announcement reflects what is actually playing.
		if wasIdle {
			if now := player.Current(); now != nil {
				_, _ = client.Rest.UpdateInteractionResponse(appID, token, discord.MessageUpdate{
					Embeds: &[]discord.Embed{nowPlayingEmbed(now)},
				})
			} else {
				respondUpdate(event, appID, token, fmt.Sprintf(sys.ErrPlaybackStartFail, "stream did not start"))
			}
		} else {
			_, _ = client.Rest.UpdateInteractionResponse(appID, token, discord.MessageUpdate{
				Embeds: &[]discord.Embed{addedEmbed(first, pos)},
			})
		}

		if stream.Total() > 1 {
			added := 1
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				t, ok := stream.Next()
				if !ok {
					break
				}
				queue.Add(t)
				added++

				// Playback can run dry faster than slow entries resolve.
				if player.State() == proc.StateIdle && !player.Stopped() {
					_ = player.PlayNext()
				}
			}

			_, _ = client.Rest.CreateFollowupMessage(appID, token, discord.MessageCreate{
				Content: fmt.Sprintf(sys.MsgPlaylistLoaded, added, stream.Skipped()),
			})
		}
	})
}

func respondUpdate(event *events.ApplicationCommandInteractionCreate, appID snowflake.ID, token, content string) {
	_, _ = event.Client().Rest.UpdateInteractionResponse(appID, token, discord.MessageUpdate{Content: strPtr(content)})
}

func resolveErrorMessage(err error) string {
	switch {
	case errors.Is(err, proc.ErrUnsupported):
		return sys.ErrInputNotSupported
	case errors.Is(err, proc.ErrNotFound):
		return sys.ErrTrackNotFound
	default:
		return fmt.Sprintf(sys.ErrPlaybackStartFail, err)
	}
}

func handlePlayAutocomplete(event *events.AutocompleteInteractionCreate) {
	f := event.Data.Focused()
	if f.Name != "query" {
		return
	}
	q := f.String()
	if q == "" || strings.Contains(q, "http") {
		_ = event.AutocompleteResult(nil)
		return
	}

	rs := proc.SearchSuggestions(q)
	var cs []discord.AutocompleteChoice
	for i, r := range rs {
		if i >= 25 {
			break
		}
		n := proc.TruncateSuggestion(r.Title, 100)
		v := r.URL
		if len(v) > 100 {
			v = proc.TruncateSuggestion(r.Title, 100)
		}
		cs = append(cs, discord.AutocompleteChoiceString{Name: n, Value: v})
	}
	_ = event.AutocompleteResult(cs)
}
