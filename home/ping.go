package home

import (
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/kanade/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "ping",
		Description: "Check bot latency",
	}, handlePing)

	sys.RegisterComponentHandler("ping_refresh", handlePingRefresh)
}

func pingContent(emoji string, latency int64) string {
	return fmt.Sprintf("%s Pong! **Latency:** %dms", emoji, latency)
}

func handlePing(event *events.ApplicationCommandInteractionCreate) {
	latency := time.Since(snowflake.ID(event.ID()).Time()).Milliseconds()

	_ = event.CreateMessage(discord.MessageCreate{
		Content: pingContent("🏓", latency),
		Flags:   discord.MessageFlagEphemeral,
		Components: []discord.LayoutComponent{
			discord.NewActionRow(discord.NewSecondaryButton("🔄 Refresh", "ping_refresh")),
		},
	})
}

func handlePingRefresh(event *events.ComponentInteractionCreate) {
	latency := time.Since(snowflake.ID(event.ID()).Time()).Milliseconds()

	_ = event.UpdateMessage(discord.MessageUpdate{
		Content: strPtr(pingContent("🔁", latency)),
	})
}
