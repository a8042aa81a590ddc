package proc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// neverReader blocks until its stop func is called.
func neverReader() (io.Reader, func()) {
	pr, pw := io.Pipe()
	return pr, func() { _ = pw.Close() }
}

func pcmInput(frames ...byte) *bytes.Reader {
	var buf bytes.Buffer
	for _, b := range frames {
		buf.Write(bytes.Repeat([]byte{b}, FrameSize))
	}
	return bytes.NewReader(buf.Bytes())
}

func TestStreamSourceDeliversFrames(t *testing.T) {
	src := newStreamSourceFromReader(pcmInput(1, 2, 3), 10, 1)
	defer src.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := src.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	for i := byte(1); i <= 3; i++ {
		f, ok := src.ReadFrame(time.Second)
		if !ok {
			t.Fatalf("frame %d: stream ended early", i)
		}
		if f[0] != i || f[FrameSize-1] != i {
			t.Fatalf("frame %d: wrong payload %d", i, f[0])
		}
	}

	// Producer marks end of stream after the last full frame.
	deadline := time.After(2 * time.Second)
	for {
		f, ok := src.ReadFrame(50 * time.Millisecond)
		if !ok {
			return
		}
		if !bytes.Equal(f, SilenceFrame) {
			t.Fatalf("unexpected frame after input drained: %d", f[0])
		}
		select {
		case <-deadline:
			t.Fatal("stream never signalled end")
		default:
		}
	}
}

func TestStreamSourceZeroPadsShortTail(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(bytes.Repeat([]byte{7}, FrameSize))
	buf.Write(bytes.Repeat([]byte{9}, 100))

	src := newStreamSourceFromReader(bytes.NewReader(buf.Bytes()), 10, 1)
	defer src.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := src.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	f, ok := src.ReadFrame(time.Second)
	if !ok || f[0] != 7 {
		t.Fatalf("first frame wrong: (%v, %v)", f[0], ok)
	}

	f, ok = src.ReadFrame(time.Second)
	if !ok {
		t.Fatal("tail frame missing")
	}
	if f[0] != 9 || f[99] != 9 {
		t.Fatal("tail data missing from padded frame")
	}
	if f[100] != 0 || f[FrameSize-1] != 0 {
		t.Fatal("tail frame not zero padded")
	}
}

func TestStreamSourceEmptyInputIsStartFailure(t *testing.T) {
	src := newStreamSourceFromReader(bytes.NewReader(nil), 10, 1)
	defer src.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := src.WaitReady(ctx)
	if !errors.Is(err, ErrStreamStart) {
		t.Fatalf("WaitReady = %v, want stream start failure", err)
	}
}

func TestStreamSourcePrebufferReadiness(t *testing.T) {
	// Prebuffer of 2 with only 1 full frame: readiness comes from the
	// producer finishing, not the threshold.
	src := newStreamSourceFromReader(pcmInput(1), 10, 2)
	defer src.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := src.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}

	if f, ok := src.ReadFrame(time.Second); !ok || f[0] != 1 {
		t.Fatalf("frame lost: (%v, %v)", f, ok)
	}
}

func TestStreamSourceCleanupIdempotent(t *testing.T) {
	src := newStreamSourceFromReader(pcmInput(1, 2), 10, 1)
	src.Cleanup()
	src.Cleanup()

	// After cleanup the stream reads as ended once drained.
	deadline := time.After(2 * time.Second)
	for {
		_, ok := src.ReadFrame(20 * time.Millisecond)
		if !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("cleaned source never ended")
		default:
		}
	}
}

func TestStreamSourceWaitReadyHonorsContext(t *testing.T) {
	// A reader that never produces: WaitReady should give up with the
	// caller's context rather than hang.
	r, stop := neverReader()
	src := newStreamSourceFromReader(r, 10, 1)
	defer src.Cleanup()
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := src.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitReady = %v, want deadline exceeded", err)
	}
}
