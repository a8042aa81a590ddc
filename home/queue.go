package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/kanade/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "queue",
		Description: "Show the current queue",
	}, handleQueue)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "clear",
		Description: "Clear all queued tracks",
	}, handleClear)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "shuffle",
		Description: "Toggle fair shuffle for the queue",
	}, handleShuffle)
}

func handleQueue(event *events.ApplicationCommandInteractionCreate) {
	player, queue, ok := sessionFor(event)
	if !ok {
		return
	}

	_ = event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{queueEmbed(player.Current(), queue.List(), queue.Shuffle())},
		Flags:  discord.MessageFlagEphemeral,
	})
}

func handleClear(event *events.ApplicationCommandInteractionCreate) {
	_, queue, ok := sessionFor(event)
	if !ok {
		return
	}
	if queue.Len() == 0 {
		reply(event, sys.ErrQueueEmpty, true)
		return
	}
	queue.Clear()
	reply(event, sys.MsgQueueCleared, false)
}

func handleShuffle(event *events.ApplicationCommandInteractionCreate) {
	_, queue, ok := sessionFor(event)
	if !ok {
		return
	}
	if queue.ToggleShuffle() {
		reply(event, sys.MsgShuffleEnabled, false)
	} else {
		reply(event, sys.MsgShuffleDisabled, false)
	}
}
