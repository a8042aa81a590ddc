package proc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type fakeSource struct {
	mu       sync.Mutex
	readyErr error
	cleanups int
}

func (f *fakeSource) ReadFrame(timeout time.Duration) ([]byte, bool) {
	return SilenceFrame, true
}

func (f *fakeSource) WaitReady(ctx context.Context) error {
	return f.readyErr
}

func (f *fakeSource) Cleanup() {
	f.mu.Lock()
	f.cleanups++
	f.mu.Unlock()
}

func (f *fakeSource) cleanupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanups
}

type fakeTransport struct {
	mu          sync.Mutex
	playing     bool
	paused      bool
	connected   bool
	onComplete  func(error)
	plays       int
	stops       int
	disconnects int
	playErr     error
}

func (t *fakeTransport) Connect(ctx context.Context, _ snowflake.ID) error {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Play(src FrameSource, onComplete func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playErr != nil {
		return t.playErr
	}
	t.playing = true
	t.onComplete = onComplete
	t.plays++
	return nil
}

func (t *fakeTransport) Pause()  { t.mu.Lock(); t.paused = true; t.mu.Unlock() }
func (t *fakeTransport) Resume() { t.mu.Lock(); t.paused = false; t.mu.Unlock() }

func (t *fakeTransport) Stop() {
	t.mu.Lock()
	cb := t.onComplete
	t.onComplete = nil
	t.playing = false
	t.stops++
	t.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func (t *fakeTransport) Disconnect(ctx context.Context) {
	t.mu.Lock()
	t.disconnects++
	t.connected = false
	t.mu.Unlock()
}

func (t *fakeTransport) IsConnected() bool { t.mu.Lock(); defer t.mu.Unlock(); return t.connected }
func (t *fakeTransport) IsPlaying() bool   { t.mu.Lock(); defer t.mu.Unlock(); return t.playing }
func (t *fakeTransport) IsPaused() bool    { t.mu.Lock(); defer t.mu.Unlock(); return t.paused }

// complete fires the stored completion callback like a naturally ending
// stream would.
func (t *fakeTransport) complete() {
	t.mu.Lock()
	cb := t.onComplete
	t.onComplete = nil
	t.playing = false
	t.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func newTestController(idle time.Duration) (*PlaybackController, *TrackQueue, *fakeTransport) {
	q := NewTrackQueue()
	tr := &fakeTransport{}
	p := NewPlaybackController(1, q, tr, idle)
	p.SetSourceFactory(func(ctx context.Context, t *Track) (FrameSource, error) {
		return &fakeSource{}, nil
	})
	return p, q, tr
}

func TestPlayNextStartsQueuedTrack(t *testing.T) {
	p, q, tr := newTestController(time.Hour)
	track := testTrack("song", "alice")
	q.Add(track)

	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	if p.State() != StatePlaying {
		t.Fatalf("state = %v, want playing", p.State())
	}
	if p.Current() != track {
		t.Fatal("Current is not the queued track")
	}
	if tr.plays != 1 {
		t.Fatalf("transport plays = %d, want 1", tr.plays)
	}
}

func TestCompletionAdvancesQueue(t *testing.T) {
	p, q, tr := newTestController(time.Hour)
	q.Add(testTrack("one", "alice"))
	q.Add(testTrack("two", "bob"))

	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	tr.complete()

	if cur := p.Current(); cur == nil || cur.Title != "two" {
		t.Fatalf("Current = %v, want two", cur)
	}
	tr.complete()

	if p.State() != StateIdle {
		t.Fatalf("state = %v after queue drained, want idle", p.State())
	}
	if p.Current() != nil {
		t.Fatal("Current should be nil when idle")
	}
}

func TestStreamStartFailureSkipsTrack(t *testing.T) {
	p, q, _ := newTestController(time.Hour)
	bad := testTrack("broken", "alice")
	good := testTrack("fine", "bob")
	q.Add(bad)
	q.Add(good)

	badSrc := &fakeSource{readyErr: errors.New("no audio")}
	p.SetSourceFactory(func(ctx context.Context, tk *Track) (FrameSource, error) {
		if tk == bad {
			return badSrc, nil
		}
		return &fakeSource{}, nil
	})

	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	if cur := p.Current(); cur != good {
		t.Fatalf("Current = %v, want the good track", cur)
	}
	if badSrc.cleanupCount() != 1 {
		t.Fatalf("failed source cleanups = %d, want 1", badSrc.cleanupCount())
	}
}

func TestPlayNextWhilePlayingKeepsCurrentStream(t *testing.T) {
	p, q, tr := newTestController(time.Hour)
	var sources []*fakeSource
	p.SetSourceFactory(func(ctx context.Context, tk *Track) (FrameSource, error) {
		s := &fakeSource{}
		sources = append(sources, s)
		return s, nil
	})

	one := testTrack("one", "alice")
	q.Add(one)
	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	q.Add(testTrack("two", "bob"))

	// A second PlayNext racing in while a stream is live must not
	// displace it.
	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext while playing: %v", err)
	}
	if cur := p.Current(); cur != one {
		t.Fatalf("Current = %v, want the live track", cur)
	}
	if tr.plays != 1 {
		t.Fatalf("transport plays = %d, want 1", tr.plays)
	}
	if sources[0].cleanupCount() != 0 {
		t.Fatal("live source cleaned up mid-play")
	}

	// Natural completion still advances to the queued track.
	tr.complete()
	if cur := p.Current(); cur == nil || cur.Title != "two" {
		t.Fatalf("Current = %v after completion, want two", cur)
	}
	if sources[0].cleanupCount() != 1 {
		t.Fatalf("finished source cleanups = %d, want 1", sources[0].cleanupCount())
	}
}

func TestPauseResumeStateGates(t *testing.T) {
	p, q, tr := newTestController(time.Hour)

	if p.Pause() {
		t.Fatal("Pause on idle controller should fail")
	}
	if p.Resume() {
		t.Fatal("Resume on idle controller should fail")
	}

	q.Add(testTrack("song", "alice"))
	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}

	if !p.Pause() {
		t.Fatal("Pause while playing should succeed")
	}
	if p.Pause() {
		t.Fatal("double Pause should fail")
	}
	if !tr.IsPaused() {
		t.Fatal("transport not paused")
	}
	if !p.Resume() {
		t.Fatal("Resume while paused should succeed")
	}
	if p.State() != StatePlaying {
		t.Fatalf("state = %v after resume", p.State())
	}
}

func TestSkipAdvancesAndIdleSkipFails(t *testing.T) {
	p, q, _ := newTestController(time.Hour)
	if p.Skip() {
		t.Fatal("Skip with nothing playing should fail")
	}

	q.Add(testTrack("one", "alice"))
	q.Add(testTrack("two", "bob"))
	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}

	if !p.Skip() {
		t.Fatal("Skip while playing should succeed")
	}
	if cur := p.Current(); cur == nil || cur.Title != "two" {
		t.Fatalf("Current = %v after skip, want two", cur)
	}
}

func TestStopIsTerminal(t *testing.T) {
	p, q, tr := newTestController(time.Hour)
	q.Add(testTrack("one", "alice"))
	q.Add(testTrack("two", "bob"))
	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}

	disconnected := false
	p.SetOnDisconnect(func() { disconnected = true })

	p.Stop()

	if !p.Stopped() {
		t.Fatal("Stopped = false after Stop")
	}
	if q.Len() != 0 {
		t.Fatalf("queue Len = %d after Stop", q.Len())
	}
	if q.Current() != nil {
		t.Fatal("queue current should reset on Stop")
	}
	if tr.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", tr.disconnects)
	}
	if !disconnected {
		t.Fatal("disconnect hook not fired")
	}

	// Terminal: further transitions are no-ops.
	q.Add(testTrack("late", "alice"))
	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext after Stop: %v", err)
	}
	if p.State() != StateIdle {
		t.Fatal("stopped controller must not start playback")
	}
}

func TestIdleTimeoutDisconnects(t *testing.T) {
	p, q, tr := newTestController(50 * time.Millisecond)
	q.Add(testTrack("song", "alice"))
	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	tr.complete() // queue empty, goes idle, timer armed

	deadline := time.After(2 * time.Second)
	for !p.Stopped() {
		select {
		case <-deadline:
			t.Fatal("idle controller never disconnected")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if tr.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", tr.disconnects)
	}
}

func TestFreshControllerHasNoIdleTimer(t *testing.T) {
	p, _, tr := newTestController(30 * time.Millisecond)

	// Never played: the idle timer must not arm just from creation.
	if err := p.PlayNext(); err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	if p.Stopped() {
		t.Fatal("controller with no playback history was torn down")
	}
	if tr.disconnects != 0 {
		t.Fatalf("disconnects = %d, want 0", tr.disconnects)
	}
}
