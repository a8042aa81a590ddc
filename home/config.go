package home

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"

	"github.com/leeineian/kanade/sys"
)

const (
	idleTimeoutKey = "idle_timeout_secs"
	idleTimeoutMin = 30
	idleTimeoutMax = 3600
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "config",
		Description:              "Bot configuration (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "idle-timeout",
				Description: "Show or set how long the bot stays in an idle voice channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "seconds",
						Description: "New timeout in seconds (30-3600)",
						Required:    false,
					},
				},
			},
		},
	}, handleConfig)
}

func handleConfig(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if *data.SubCommandName != "idle-timeout" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	secs, ok := data.OptInt("seconds")
	if !ok {
		current := int(sys.GlobalConfig.IdleTimeout.Seconds())
		if v, err := sys.GetBotConfig(ctx, idleTimeoutKey); err == nil && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				current = n
			}
		}
		reply(event, fmt.Sprintf(sys.MsgConfigIdleCurrent, current), true)
		return
	}

	// Writes are owner-gated when OWNER_IDS is configured; reads above
	// stay open to guild admins.
	if len(sys.GlobalConfig.OwnerIDs) > 0 && !sys.GlobalConfig.IsOwner(event.User().ID.String()) {
		reply(event, sys.ErrOwnerOnly, true)
		return
	}

	if secs < idleTimeoutMin || secs > idleTimeoutMax {
		reply(event, sys.MsgConfigIdleRange, true)
		return
	}

	if err := sys.SetBotConfig(ctx, idleTimeoutKey, strconv.Itoa(secs)); err != nil {
		reply(event, "Failed to save setting: "+err.Error(), true)
		return
	}

	sys.LogVoice("User %s (%s) set idle timeout to %ds in guild %s", event.User().Username, event.User().ID, secs, *event.GuildID())
	reply(event, fmt.Sprintf(sys.MsgConfigIdleUpdated, secs), false)
}
