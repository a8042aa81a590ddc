package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/kanade/proc"
	"github.com/leeineian/kanade/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "pause",
		Description: "Pause playback",
	}, handlePause)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "resume",
		Description: "Resume paused playback",
	}, handleResume)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "skip",
		Description: "Skip the current track",
	}, handleSkip)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "stop",
		Description: "Stop playback, clear the queue and leave",
	}, handleStop)
}

// sessionFor resolves the caller's guild session, replying with an
// ephemeral error when there is nothing to control.
func sessionFor(event *events.ApplicationCommandInteractionCreate) (*proc.PlaybackController, *proc.TrackQueue, bool) {
	if event.GuildID() == nil {
		reply(event, "This command only works in a server.", true)
		return nil, nil, false
	}
	player, queue, ok := proc.GetSessionRegistry().Get(*event.GuildID())
	if !ok {
		reply(event, sys.ErrNothingPlaying, true)
		return nil, nil, false
	}
	return player, queue, true
}

func reply(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	msg := discord.MessageCreate{Content: content}
	if ephemeral {
		msg.Flags = discord.MessageFlagEphemeral
	}
	_ = event.CreateMessage(msg)
}

func strPtr(s string) *string {
	return &s
}

func handlePause(event *events.ApplicationCommandInteractionCreate) {
	player, _, ok := sessionFor(event)
	if !ok {
		return
	}
	switch player.State() {
	case proc.StatePaused:
		reply(event, sys.ErrAlreadyPaused, true)
	case proc.StateIdle:
		reply(event, sys.ErrNothingPlaying, true)
	default:
		player.Pause()
		reply(event, sys.MsgPlaybackPaused, false)
	}
}

func handleResume(event *events.ApplicationCommandInteractionCreate) {
	player, _, ok := sessionFor(event)
	if !ok {
		return
	}
	if player.State() != proc.StatePaused {
		reply(event, sys.ErrNotPaused, true)
		return
	}
	player.Resume()
	reply(event, sys.MsgPlaybackResumed, false)
}

func handleSkip(event *events.ApplicationCommandInteractionCreate) {
	player, _, ok := sessionFor(event)
	if !ok {
		return
	}
	if !player.Skip() {
		reply(event, sys.ErrNothingPlaying, true)
		return
	}
	sys.LogVoice("User %s (%s) skipped playback in guild %s", event.User().Username, event.User().ID, *event.GuildID())
	reply(event, sys.MsgPlaybackSkipped, false)
}

func handleStop(event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		reply(event, "This command only works in a server.", true)
		return
	}
	if !proc.GetSessionRegistry().Leave(*event.GuildID()) {
		reply(event, sys.ErrNothingPlaying, true)
		return
	}
	sys.LogVoice("User %s (%s) stopped playback in guild %s", event.User().Username, event.User().ID, *event.GuildID())
	reply(event, sys.MsgPlaybackStopped, false)
}
