package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/leeineian/kanade/sys"
)

var ErrStreamStart = errors.New("stream start failure")

const (
	// firstReadWait bounds how long the first consumer read waits for the
	// prebuffer to fill.
	firstReadWait = 10 * time.Second

	producerJoinWait = 2 * time.Second
)

// FrameSource is what the playback path consumes. StreamSource implements it
// against the external decode pipeline; tests substitute fakes.
type FrameSource interface {
	ReadFrame(timeout time.Duration) ([]byte, bool)
	WaitReady(ctx context.Context) error
	Cleanup()
}

// StreamSource owns one fetcher/transcoder process pair for the lifetime of
// a single track and a producer goroutine that fills a FrameBuffer from the
// transcoder's PCM output.
type StreamSource struct {
	url string
	buf *FrameBuffer

	fetch     *exec.Cmd
	transcode *exec.Cmd
	cancel    context.CancelFunc

	prebuffer int
	ready     chan struct{}
	readyOnce sync.Once
	startErr  error
	startMu   sync.Mutex

	producerDone chan struct{}
	cleanupOnce  sync.Once
}

// NewStreamSource spawns the decode pipeline eagerly: yt-dlp streams raw
// media to stdout, piped straight into ffmpeg which emits 48kHz 16-bit
// stereo PCM. Spawn failure is a stream-start failure.
func NewStreamSource(ctx context.Context, playbackURL string) (*StreamSource, error) {
	cfg := sys.GlobalConfig
	bufSecs, preSecs := 5, 2
	if cfg != nil {
		bufSecs, preSecs = cfg.BufferSeconds, cfg.PrebufferSeconds
	}

	ctx, cancel := context.WithCancel(ctx)

	s := &StreamSource{
		url:          playbackURL,
		buf:          NewFrameBuffer(bufSecs * FramesPerSecond),
		cancel:       cancel,
		prebuffer:    preSecs * FramesPerSecond,
		ready:        make(chan struct{}),
		producerDone: make(chan struct{}),
	}

	ytCmd, ytCleanup := newYtdlp()
	defer ytCleanup()

	fetch := ytCmd.
		Format("bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckCertificates().
		BuildCommand(ctx, append(buildYtdlpArgs(), playbackURL)...)
	fetch.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	fetch.WaitDelay = 0

	transcode := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le", "-ar", "48000", "-ac", "2",
		"pipe:1",
	)

	// The transcoder reads the fetcher's stdout directly, not buffered
	// through this process.
	pr, pw, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrStreamStart, err)
	}
	fetch.Stdout = pw
	transcode.Stdin = pr

	out, err := transcode.StdoutPipe()
	if err != nil {
		cancel()
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: %v", ErrStreamStart, err)
	}

	if err := fetch.Start(); err != nil {
		cancel()
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: fetcher: %v", ErrStreamStart, err)
	}
	if err := transcode.Start(); err != nil {
		_ = fetch.Process.Kill()
		go fetch.Wait()
		cancel()
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: transcoder: %v", ErrStreamStart, err)
	}

	// Parent copies of the pipe ends are no longer needed.
	pr.Close()
	pw.Close()

	s.fetch = fetch
	s.transcode = transcode

	go s.produce(out)
	go func() {
		<-s.producerDone
		_ = transcode.Wait()
		_ = fetch.Wait()
	}()

	return s, nil
}

// newStreamSourceFromReader builds a source over an arbitrary PCM reader.
// The production path goes through NewStreamSource; this exists for tests.
func newStreamSourceFromReader(r io.Reader, capacity, prebuffer int) *StreamSource {
	s := &StreamSource{
		buf:          NewFrameBuffer(capacity),
		cancel:       func() {},
		prebuffer:    prebuffer,
		ready:        make(chan struct{}),
		producerDone: make(chan struct{}),
	}
	go s.produce(r)
	return s
}

func (s *StreamSource) produce(r io.Reader) {
	defer close(s.producerDone)
	defer s.buf.MarkEndOfStream()
	defer s.signalReady()

	frames := 0
	for {
		frame := make([]byte, FrameSize)
		n, err := io.ReadFull(r, frame)
		if n < FrameSize {
			if frames == 0 && n == 0 {
				s.setStartErr(fmt.Errorf("%w: no audio data from pipeline (%s)", ErrStreamStart, s.url))
			}
			if n > 0 {
				// Short tail chunk, already zero-padded by allocation.
				s.buf.Push(frame[:FrameSize])
				frames++
			}
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
				sys.LogVoice("Pipeline read ended: %v (%s)", err, s.url)
			}
			return
		}

		if !s.buf.Push(frame) && s.buf.EndOfStream() {
			// Cleanup marked end-of-stream under us.
			return
		}
		frames++
		if frames >= s.prebuffer {
			s.signalReady()
		}
	}
}

func (s *StreamSource) setStartErr(err error) {
	s.startMu.Lock()
	if s.startErr == nil {
		s.startErr = err
	}
	s.startMu.Unlock()
}

func (s *StreamSource) signalReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// WaitReady blocks until the prebuffer threshold is reached, the stream ends,
// or the bounded first-read wait elapses. It surfaces the stream-start error
// when the pipeline produced no audio at all.
func (s *StreamSource) WaitReady(ctx context.Context) error {
	timer := time.NewTimer(firstReadWait)
	defer timer.Stop()
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: prebuffer timeout (%s)", ErrStreamStart, s.url)
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()
	return s.startErr
}

// ReadFrame returns one frame, a silence frame on underrun, or (nil, false)
// once the stream has drained.
func (s *StreamSource) ReadFrame(timeout time.Duration) ([]byte, bool) {
	return s.buf.Pop(timeout)
}

// Cleanup forcibly terminates both pipeline processes and joins the producer
// with a bounded wait. Safe to call multiple times and from any goroutine.
func (s *StreamSource) Cleanup() {
	s.cleanupOnce.Do(func() {
		s.cancel()
		if s.fetch != nil && s.fetch.Process != nil {
			_ = s.fetch.Process.Kill()
		}
		if s.transcode != nil && s.transcode.Process != nil {
			_ = s.transcode.Process.Kill()
		}
		s.buf.MarkEndOfStream()

		timer := time.NewTimer(producerJoinWait)
		defer timer.Stop()
		select {
		case <-s.producerDone:
		case <-timer.C:
			sys.LogVoice("Producer join timed out for %s", s.url)
		}
	})
}
