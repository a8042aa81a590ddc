package proc

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/kanade/sys"
)

var (
	// OpusSilence is the canonical Opus silence frame.
	OpusSilence     = []byte{0xf8, 0xff, 0xfe}
	SilenceDuration = 1 * time.Second
)

// VoiceTransport delivers PCM frame sources to a Discord voice connection.
// PCM is piped through an ffmpeg Opus encoder whose Ogg output is parsed
// into packets for disgo's frame provider pull.
type VoiceTransport struct {
	client  *bot.Client
	guildID snowflake.ID
	conn    voice.Conn

	mu        sync.Mutex
	connected bool
	stream    *opusStream

	pauseMu   sync.RWMutex
	pauseChan chan struct{}
	paused    bool
}

func NewVoiceTransport(client *bot.Client, guildID snowflake.ID) *VoiceTransport {
	t := &VoiceTransport{
		client:    client,
		guildID:   guildID,
		conn:      client.VoiceManager.CreateConn(guildID),
		pauseChan: make(chan struct{}),
	}
	// Closed channel means not paused.
	close(t.pauseChan)
	return t
}

// Connect opens the voice gateway connection with retries, mirroring how
// flaky voice endpoints behave in practice.
func (t *VoiceTransport) Connect(ctx context.Context, channelID snowflake.ID) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	sys.LogVoice("Joining channel %s in guild %s", channelID, t.guildID)

	var lastErr error
	for i := range 5 {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 1000 * time.Millisecond
			sys.LogVoice("Retrying voice connection in %v (Attempt %d/5)", backoff, i+1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := t.conn.Open(ctx, channelID, false, false); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}

	if lastErr != nil {
		sys.LogVoice("Failed to connect to voice in guild %s after 5 attempts: %v", t.guildID, lastErr)
		t.conn.Close(ctx)
		return lastErr
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Play starts consuming the source. onComplete fires exactly once: natural
// end, Stop, or encoder error.
func (t *VoiceTransport) Play(src FrameSource, onComplete func(error)) error {
	t.mu.Lock()
	old := t.stream
	t.mu.Unlock()
	if old != nil {
		old.stop()
	}

	// A new stream always starts unpaused, even right after a skip that
	// happened mid-pause.
	t.Resume()

	st, err := newOpusStream(t, src, onComplete)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.stream = st
	t.mu.Unlock()

	t.trySetOpusFrameProvider(st)
	t.trySetSpeaking(voice.SpeakingFlagMicrophone)
	return nil
}

func (t *VoiceTransport) Pause() {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	if !t.paused {
		t.pauseChan = make(chan struct{})
		t.paused = true
	}
}

func (t *VoiceTransport) Resume() {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	if t.paused {
		close(t.pauseChan)
		t.paused = false
	}
}

// Stop ends the current stream, driving its completion path.
func (t *VoiceTransport) Stop() {
	t.mu.Lock()
	st := t.stream
	t.mu.Unlock()
	if st != nil {
		st.stop()
	}
}

func (t *VoiceTransport) Disconnect(ctx context.Context) {
	t.Stop()
	t.mu.Lock()
	connected := t.connected
	t.connected = false
	t.mu.Unlock()
	if connected {
		t.conn.Close(ctx)
		sys.LogVoice("Left voice in guild %s", t.guildID)
	}
}

func (t *VoiceTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *VoiceTransport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stream != nil && !t.stream.finished()
}

func (t *VoiceTransport) IsPaused() bool {
	t.pauseMu.RLock()
	defer t.pauseMu.RUnlock()
	return t.paused
}

// clearStream detaches a finished stream if it is still the active one.
func (t *VoiceTransport) clearStream(st *opusStream) {
	t.mu.Lock()
	active := t.stream == st
	if active {
		t.stream = nil
	}
	t.mu.Unlock()
	if active {
		t.trySetOpusFrameProvider(nil)
		t.trySetSpeaking(0)
	}
}

// The voice gateway can drop mid-call; these guard against disgo panics on
// a dead connection.
func (t *VoiceTransport) trySetOpusFrameProvider(provider voice.OpusFrameProvider) {
	defer func() { _ = recover() }()
	t.conn.SetOpusFrameProvider(provider)
}

func (t *VoiceTransport) trySetSpeaking(flags voice.SpeakingFlags) {
	defer func() { _ = recover() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = t.conn.SetSpeaking(ctx, flags)
}

// opusStream is one Play call: a writer goroutine feeding PCM into the
// encoder, a reader goroutine parsing encoded Ogg pages into Opus packets,
// and the provider pull consumed by disgo every 20ms.
type opusStream struct {
	transport  *VoiceTransport
	src        FrameSource
	onComplete func(error)

	encoder *exec.Cmd
	ctx     context.Context
	cancel  context.CancelFunc

	frames chan []byte

	done     chan struct{}
	doneOnce sync.Once

	draining      bool
	silenceFrames int
}

func newOpusStream(t *VoiceTransport, src FrameSource, onComplete func(error)) (*opusStream, error) {
	ctx, cancel := context.WithCancel(context.Background())

	enc := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", "48000", "-ac", "2",
		"-i", "pipe:0",
		"-c:a", "libopus", "-b:a", "128k", "-vbr", "on", "-frame_duration", "20",
		"-f", "ogg",
		"pipe:1",
	)

	stdin, err := enc.StdinPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stdout, err := enc.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := enc.Start(); err != nil {
		cancel()
		return nil, err
	}

	st := &opusStream{
		transport:  t,
		src:        src,
		onComplete: onComplete,
		encoder:    enc,
		ctx:        ctx,
		cancel:     cancel,
		frames:     make(chan []byte, 100),
		done:       make(chan struct{}),
	}

	go st.writePCM(stdin)
	go st.readPackets(stdout)

	return st, nil
}

func (st *opusStream) writePCM(w io.WriteCloser) {
	defer w.Close()
	for {
		select {
		case <-st.ctx.Done():
			return
		default:
		}

		frame, ok := st.src.ReadFrame(DefaultPopTimeout)
		if !ok {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
	}
}

// readPackets walks Ogg pages from the encoder output and pushes complete
// Opus packets. A nil push is the end-of-stream sentinel for the provider.
func (st *opusStream) readPackets(r io.Reader) {
	defer func() {
		go st.encoder.Wait()
	}()

	br := bufio.NewReaderSize(r, 16384)
	var packet []byte
	for {
		var hdr [27]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			st.push(nil)
			return
		}
		if !bytes.Equal(hdr[0:4], []byte("OggS")) {
			sys.LogVoice("Encoder output lost Ogg sync in guild %s", st.transport.guildID)
			st.push(nil)
			return
		}

		segCount := int(hdr[26])
		segTable := make([]byte, segCount)
		if _, err := io.ReadFull(br, segTable); err != nil {
			st.push(nil)
			return
		}

		for _, lacing := range segTable {
			n := int(lacing)
			seg := make([]byte, n)
			if _, err := io.ReadFull(br, seg); err != nil {
				st.push(nil)
				return
			}
			packet = append(packet, seg...)
			if n < 255 {
				if !isOpusHeaderPacket(packet) {
					if !st.push(packet) {
						return
					}
				}
				packet = nil
			}
		}
	}
}

func isOpusHeaderPacket(p []byte) bool {
	return bytes.HasPrefix(p, []byte("OpusHead")) || bytes.HasPrefix(p, []byte("OpusTags"))
}

func (st *opusStream) push(f []byte) bool {
	select {
	case st.frames <- f:
		return true
	case <-st.ctx.Done():
		return false
	}
}

// ProvideOpusFrame is disgo's 20ms pull. It honors pause by blocking on the
// pause channel, plays a short silence tail after the last packet, and
// substitutes silence on underrun so the voice gateway never starves.
func (st *opusStream) ProvideOpusFrame() ([]byte, error) {
	st.transport.pauseMu.RLock()
	pauseChan := st.transport.pauseChan
	st.transport.pauseMu.RUnlock()

	select {
	case <-pauseChan:
	case <-st.ctx.Done():
		st.finish(nil)
		return nil, io.EOF
	}

	if st.draining {
		target := int(SilenceDuration.Milliseconds() / 20)
		if st.silenceFrames < target {
			st.silenceFrames++
			return OpusSilence, nil
		}
		st.finish(nil)
		return nil, io.EOF
	}

	select {
	case f := <-st.frames:
		if f == nil {
			st.draining = true
			return OpusSilence, nil
		}
		return f, nil
	case <-st.ctx.Done():
		st.finish(nil)
		return nil, io.EOF
	case <-time.After(500 * time.Millisecond):
		return OpusSilence, nil
	}
}

// Close implements voice.OpusFrameProvider.
func (st *opusStream) Close() {
	st.stop()
}

func (st *opusStream) stop() {
	st.cancel()
	if st.encoder.Process != nil {
		_ = st.encoder.Process.Kill()
	}
	st.finish(nil)
}

func (st *opusStream) finished() bool {
	select {
	case <-st.done:
		return true
	default:
		return false
	}
}

func (st *opusStream) finish(err error) {
	st.doneOnce.Do(func() {
		close(st.done)
		st.cancel()
		st.transport.clearStream(st)
		if st.onComplete != nil {
			go st.onComplete(err)
		}
	})
}
