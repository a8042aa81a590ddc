package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/kanade/sys"
)

type PlayerState int

const (
	StateIdle PlayerState = iota
	StatePlaying
	StatePaused
)

func (s PlayerState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// SourceFactory builds a FrameSource for a track. The default spawns the
// external decode pipeline; tests inject fakes.
type SourceFactory func(ctx context.Context, t *Track) (FrameSource, error)

// PlaybackController is the per-session state machine. All transitions are
// serialized through its mutex; the transport's completion callback is
// marshalled back through the same mutex before touching any state.
type PlaybackController struct {
	mu sync.Mutex

	guildID   snowflake.ID
	queue     *TrackQueue
	transport Transport
	newSource SourceFactory

	state   PlayerState
	source  FrameSource
	current *Track

	idleTimeout time.Duration
	idleTimer   *time.Timer
	idleGen     uint64
	played      bool
	stopped     bool

	onDisconnect func()
	onTrackStart func(*Track)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewPlaybackController(guildID snowflake.ID, queue *TrackQueue, transport Transport, idleTimeout time.Duration) *PlaybackController {
	ctx, cancel := context.WithCancel(context.Background())
	p := &PlaybackController{
		guildID:     guildID,
		queue:       queue,
		transport:   transport,
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	p.newSource = func(ctx context.Context, t *Track) (FrameSource, error) {
		return NewStreamSource(ctx, t.PlaybackURL)
	}
	return p
}

// SetSourceFactory replaces the decode pipeline factory. Call before playback.
func (p *PlaybackController) SetSourceFactory(f SourceFactory) {
	p.mu.Lock()
	p.newSource = f
	p.mu.Unlock()
}

// SetOnDisconnect registers the hook the owning registry uses to deregister
// the session.
func (p *PlaybackController) SetOnDisconnect(f func()) {
	p.mu.Lock()
	p.onDisconnect = f
	p.mu.Unlock()
}

// SetOnTrackStart registers the track-start callback. It is invoked off the
// control path.
func (p *PlaybackController) SetOnTrackStart(f func(*Track)) {
	p.mu.Lock()
	p.onTrackStart = f
	p.mu.Unlock()
}

// PlayNext advances the queue: pops the next track, spins up its source and
// hands it to the transport. An empty queue transitions to Idle and arms the
// idle timer. Tracks whose stream fails to start are logged and skipped.
func (p *PlaybackController) PlayNext() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playNextLocked()
}

func (p *PlaybackController) playNextLocked() error {
	if p.stopped {
		return nil
	}
	// A live source owns the transport until its completion clears it;
	// starting another here would displace the stream without cleanup.
	if p.source != nil {
		return nil
	}
	p.cancelIdleLocked()

	for {
		t := p.queue.Next()
		if t == nil {
			p.state = StateIdle
			p.current = nil
			p.armIdleLocked()
			return nil
		}

		src, err := p.newSource(p.ctx, t)
		if err == nil {
			err = src.WaitReady(p.ctx)
			if err != nil {
				src.Cleanup()
			}
		}
		if err != nil {
			sys.LogVoice("Could not play track %s: %v", t.PlaybackURL, err)
			continue
		}

		if err := p.transport.Play(src, p.completion(src)); err != nil {
			src.Cleanup()
			sys.LogVoice("Transport refused track %s: %v", t.PlaybackURL, err)
			continue
		}

		p.source = src
		p.current = t
		p.state = StatePlaying
		p.played = true

		if p.onTrackStart != nil {
			cb := p.onTrackStart
			track := t
			go cb(track)
		}
		return nil
	}
}

// completion builds the exactly-once completion callback for one Play call.
// It runs on the transport's goroutine, so it re-enters through the mutex
// and ignores stale invocations from a source that has already been
// replaced or stopped.
func (p *PlaybackController) completion(src FrameSource) func(error) {
	return func(err error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.source != src {
			return
		}
		src.Cleanup()
		p.source = nil
		p.current = nil

		if err != nil {
			sys.LogVoice("Stream for guild %s ended with error: %v", p.guildID, err)
		}
		if p.stopped {
			return
		}
		_ = p.playNextLocked()
	}
}

// Pause succeeds only while Playing.
func (p *PlaybackController) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return false
	}
	p.transport.Pause()
	p.state = StatePaused
	return true
}

// Resume succeeds only while Paused.
func (p *PlaybackController) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePaused {
		return false
	}
	p.transport.Resume()
	p.state = StatePlaying
	return true
}

// Skip forces the current stream to stop, which drives the same completion
// path as a natural end. No-op when idle.
func (p *PlaybackController) Skip() bool {
	p.mu.Lock()
	if p.stopped || p.state == StateIdle {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	// Outside the lock: the transport delivers completion on its own
	// goroutine and that callback takes the mutex.
	p.transport.Stop()
	return true
}

// Stop is terminal: it cancels the idle timer, clears the queue, tears down
// the current source, disconnects the transport and fires the disconnect
// hook. The controller is not reusable afterward.
func (p *PlaybackController) Stop() {
	p.cancel()

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancelIdleLocked()
	p.queue.Clear()
	p.queue.resetCurrent()
	src := p.source
	p.source = nil
	p.current = nil
	p.state = StateIdle
	onDisc := p.onDisconnect
	p.mu.Unlock()

	if src != nil {
		src.Cleanup()
	}
	p.transport.Stop()
	p.transport.Disconnect(context.Background())
	if onDisc != nil {
		onDisc()
	}
}

func (p *PlaybackController) State() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PlaybackController) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *PlaybackController) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// armIdleLocked arms exactly one timer for the configured idle duration.
// Requires at least one played track, so a freshly created session is not
// torn down before its first play.
func (p *PlaybackController) armIdleLocked() {
	if !p.played || p.stopped {
		return
	}
	p.cancelIdleLocked()
	p.idleGen++
	gen := p.idleGen
	p.idleTimer = time.AfterFunc(p.idleTimeout, func() { p.idleExpired(gen) })
}

func (p *PlaybackController) cancelIdleLocked() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
}

// idleExpired runs on the timer goroutine. The generation check makes the
// arm/cancel pair race-free: a timer that fires after a newer arm, or after
// any transition out of Idle, is a stale no-op.
func (p *PlaybackController) idleExpired(gen uint64) {
	p.mu.Lock()
	if p.stopped || gen != p.idleGen || p.state != StateIdle {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	sys.LogVoice("Guild %s idle for %v, disconnecting", p.guildID, p.idleTimeout)
	p.Stop()
}
