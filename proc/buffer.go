package proc

import (
	"sync"
	"time"
)

const (
	// FrameSize is 20ms of 48kHz 16-bit stereo PCM.
	FrameSize = 3840

	FramesPerSecond = 50

	DefaultPushTimeout = 1 * time.Second
	DefaultPopTimeout  = 500 * time.Millisecond
)

// SilenceFrame is the underrun frame Pop hands out while the producer is
// behind. Shared; callers must not write into it.
var SilenceFrame = make([]byte, FrameSize)

// FrameBuffer is a bounded, thread-safe ring of PCM frames bridging the
// producer goroutine (decode pipeline reader) and the transport's pull path.
// The pull path must return within a few milliseconds every 20ms, so every
// wait in here is time-bounded.
type FrameBuffer struct {
	frames      chan []byte
	eof         chan struct{}
	eofOnce     sync.Once
	pushTimeout time.Duration
}

func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = 5 * FramesPerSecond
	}
	return &FrameBuffer{
		frames:      make(chan []byte, capacity),
		eof:         make(chan struct{}),
		pushTimeout: DefaultPushTimeout,
	}
}

// Push enqueues a frame, waiting up to the push timeout when the buffer is
// full. A full buffer past the timeout drops the frame rather than stalling
// the producer. Returns false when the frame was dropped.
func (b *FrameBuffer) Push(frame []byte) bool {
	select {
	case b.frames <- frame:
		return true
	case <-b.eof:
		return false
	default:
	}

	timer := time.NewTimer(b.pushTimeout)
	defer timer.Stop()
	select {
	case b.frames <- frame:
		return true
	case <-b.eof:
		return false
	case <-timer.C:
		return false
	}
}

// Pop returns the next frame. On underrun (empty, stream still live) it
// returns a silence frame after the timeout instead of blocking the consumer.
// Once end-of-stream is marked and the buffer has drained it returns
// (nil, false), the explicit stream-end result.
func (b *FrameBuffer) Pop(timeout time.Duration) ([]byte, bool) {
	// Buffered frames win over the end-of-stream flag.
	select {
	case f := <-b.frames:
		return f, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-b.frames:
		return f, true
	case <-b.eof:
		select {
		case f := <-b.frames:
			return f, true
		default:
			return nil, false
		}
	case <-timer.C:
		return SilenceFrame, true
	}
}

// MarkEndOfStream is idempotent and unblocks any waiting consumer.
func (b *FrameBuffer) MarkEndOfStream() {
	b.eofOnce.Do(func() {
		close(b.eof)
	})
}

// EndOfStream reports whether end-of-stream has been marked.
func (b *FrameBuffer) EndOfStream() bool {
	select {
	case <-b.eof:
		return true
	default:
		return false
	}
}

// Len reports the number of buffered frames.
func (b *FrameBuffer) Len() int {
	return len(b.frames)
}
