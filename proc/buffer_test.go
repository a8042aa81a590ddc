package proc

import (
	"bytes"
	"testing"
	"time"
)

func frameWithByte(b byte) []byte {
	f := make([]byte, FrameSize)
	for i := range f {
		f[i] = b
	}
	return f
}

func TestFrameBufferPushPopOrder(t *testing.T) {
	buf := NewFrameBuffer(4)

	for i := byte(1); i <= 3; i++ {
		if !buf.Push(frameWithByte(i)) {
			t.Fatalf("push %d failed", i)
		}
	}
	if buf.Len() != 3 {
		t.Fatalf("Len = %d, want 3", buf.Len())
	}

	for i := byte(1); i <= 3; i++ {
		f, ok := buf.Pop(time.Second)
		if !ok {
			t.Fatalf("pop %d: unexpected end of stream", i)
		}
		if f[0] != i {
			t.Fatalf("pop %d: got frame %d", i, f[0])
		}
	}
}

func TestFrameBufferUnderrunReturnsSilence(t *testing.T) {
	buf := NewFrameBuffer(4)

	f, ok := buf.Pop(20 * time.Millisecond)
	if !ok {
		t.Fatal("underrun reported end of stream")
	}
	if !bytes.Equal(f, SilenceFrame) {
		t.Fatal("underrun frame is not silence")
	}
}

func TestFrameBufferDropsWhenFull(t *testing.T) {
	buf := NewFrameBuffer(1)
	buf.pushTimeout = 20 * time.Millisecond

	if !buf.Push(frameWithByte(1)) {
		t.Fatal("first push failed")
	}
	if buf.Push(frameWithByte(2)) {
		t.Fatal("push into full buffer should drop after timeout")
	}

	// The original frame is intact.
	f, ok := buf.Pop(time.Second)
	if !ok || f[0] != 1 {
		t.Fatalf("got (%v, %v), want frame 1", f, ok)
	}
}

func TestFrameBufferEndOfStreamDrainsFirst(t *testing.T) {
	buf := NewFrameBuffer(4)
	buf.Push(frameWithByte(1))
	buf.Push(frameWithByte(2))
	buf.MarkEndOfStream()

	for i := byte(1); i <= 2; i++ {
		f, ok := buf.Pop(time.Second)
		if !ok {
			t.Fatalf("frame %d lost to early end of stream", i)
		}
		if f[0] != i {
			t.Fatalf("frame %d: got %d", i, f[0])
		}
	}

	if f, ok := buf.Pop(time.Second); ok {
		t.Fatalf("drained buffer returned frame %v", f[0])
	}
}

func TestFrameBufferMarkEndOfStreamIdempotent(t *testing.T) {
	buf := NewFrameBuffer(1)
	buf.MarkEndOfStream()
	buf.MarkEndOfStream()

	if !buf.EndOfStream() {
		t.Fatal("EndOfStream = false after mark")
	}
	if buf.Push(frameWithByte(1)) {
		t.Fatal("push after end of stream should fail")
	}
}
