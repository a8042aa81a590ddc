package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/kanade/sys"
)

var (
	Sessions     *SessionRegistry
	onceSessions sync.Once
)

// SessionRegistry owns one playback controller and one track queue per
// guild, created together on demand and destroyed together on stop or idle
// timeout.
type SessionRegistry struct {
	mu      sync.Mutex
	players map[snowflake.ID]*PlaybackController
	queues  map[snowflake.ID]*TrackQueue
}

func GetSessionRegistry() *SessionRegistry {
	onceSessions.Do(func() {
		Sessions = &SessionRegistry{
			players: make(map[snowflake.ID]*PlaybackController),
			queues:  make(map[snowflake.ID]*TrackQueue),
		}
	})
	return Sessions
}

// Get returns the session for a guild, if one exists.
func (r *SessionRegistry) Get(guildID snowflake.ID) (*PlaybackController, *TrackQueue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[guildID]
	if !ok {
		return nil, nil, false
	}
	return p, r.queues[guildID], true
}

// GetOrCreate returns the guild's session, creating the controller/queue
// pair together when absent.
func (r *SessionRegistry) GetOrCreate(client *bot.Client, guildID snowflake.ID) (*PlaybackController, *TrackQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[guildID]; ok {
		return p, r.queues[guildID]
	}

	idle := 120 * time.Second
	if sys.GlobalConfig != nil {
		idle = sys.GlobalConfig.IdleTimeout
	}
	if v, err := sys.GetBotConfig(context.Background(), "idle_timeout_secs"); err == nil && v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			idle = d
		}
	}

	queue := NewTrackQueue()
	transport := NewVoiceTransport(client, guildID)
	player := NewPlaybackController(guildID, queue, transport, idle)
	player.SetOnDisconnect(func() {
		r.remove(guildID)
	})

	r.players[guildID] = player
	r.queues[guildID] = queue
	sys.LogVoice("Created session for guild %s (idle timeout %v)", guildID, idle)
	return player, queue
}

func (r *SessionRegistry) remove(guildID snowflake.ID) {
	r.mu.Lock()
	_, ok := r.players[guildID]
	delete(r.players, guildID)
	delete(r.queues, guildID)
	r.mu.Unlock()
	if ok {
		sys.LogVoice("Destroyed session for guild %s", guildID)
	}
}

// Join ensures a session exists and its transport is connected to the given
// voice channel.
func (r *SessionRegistry) Join(ctx context.Context, client *bot.Client, guildID, channelID snowflake.ID) (*PlaybackController, *TrackQueue, error) {
	player, queue := r.GetOrCreate(client, guildID)
	if err := player.transport.Connect(ctx, channelID); err != nil {
		return nil, nil, err
	}
	return player, queue, nil
}

// Leave stops the guild's session, if any. Stop deregisters it through the
// disconnect hook.
func (r *SessionRegistry) Leave(guildID snowflake.ID) bool {
	r.mu.Lock()
	p, ok := r.players[guildID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	p.Stop()
	return true
}

// Shutdown stops every active session.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	players := make([]*PlaybackController, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p *PlaybackController) {
			defer wg.Done()
			p.Stop()
		}(p)
	}
	wg.Wait()
}

func init() {
	sys.RegisterDaemon(sys.LogVoice, func(ctx context.Context) (bool, func(), func()) {
		reg := GetSessionRegistry()
		run := func() {
			<-ctx.Done()
		}
		return true, run, reg.Shutdown
	})
}
