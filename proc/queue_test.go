package proc

import (
	"fmt"
	"testing"
)

func testTrack(title, requester string) *Track {
	return &Track{Title: title, RequestedBy: requester, PlaybackURL: "https://example.invalid/" + title}
}

func TestQueueFIFO(t *testing.T) {
	q := NewTrackQueue()

	if pos := q.Add(testTrack("a", "u1")); pos != 0 {
		t.Fatalf("first Add position = %d, want 0", pos)
	}
	if pos := q.Add(testTrack("b", "u1")); pos != 1 {
		t.Fatalf("second Add position = %d, want 1", pos)
	}

	for _, want := range []string{"a", "b"} {
		got := q.Next()
		if got == nil || got.Title != want {
			t.Fatalf("Next = %v, want %s", got, want)
		}
		if q.Current() != got {
			t.Fatal("Current does not track Next")
		}
	}

	if q.Next() != nil {
		t.Fatal("empty queue should return nil")
	}
	if q.Current() != nil {
		t.Fatal("Current should reset on empty queue")
	}
}

func TestQueueClearKeepsCurrent(t *testing.T) {
	q := NewTrackQueue()
	q.Add(testTrack("a", "u1"))
	q.Add(testTrack("b", "u1"))

	cur := q.Next()
	q.Clear()

	if q.Len() != 0 {
		t.Fatalf("Len = %d after Clear", q.Len())
	}
	if q.Current() != cur {
		t.Fatal("Clear must not touch the playing track")
	}
}

func TestQueueFairShuffleAvoidsRepeatRequester(t *testing.T) {
	// With one pending track from another requester, fair shuffle must
	// always prefer it over the previous requester's tracks.
	for i := range 25 {
		q := NewTrackQueue()
		q.SetShuffle(true)
		q.Add(testTrack("first", "alice"))
		q.Next()

		q.Add(testTrack("alice-again", "alice"))
		q.Add(testTrack("bob-turn", "bob"))

		got := q.Next()
		if got.RequestedBy != "bob" {
			t.Fatalf("round %d: picked %s from %s, want bob's track", i, got.Title, got.RequestedBy)
		}
	}
}

func TestQueueFairShuffleFallsBackToUniform(t *testing.T) {
	q := NewTrackQueue()
	q.SetShuffle(true)
	q.Add(testTrack("first", "alice"))
	q.Next()

	for i := range 5 {
		q.Add(testTrack(fmt.Sprintf("t%d", i), "alice"))
	}

	// All pending tracks share the previous requester; Next must still
	// produce something.
	if q.Next() == nil {
		t.Fatal("fallback pick returned nil")
	}
	if q.Len() != 4 {
		t.Fatalf("Len = %d, want 4", q.Len())
	}
}

func TestQueueToggleShuffle(t *testing.T) {
	q := NewTrackQueue()
	if q.Shuffle() {
		t.Fatal("shuffle should start disabled")
	}
	if !q.ToggleShuffle() {
		t.Fatal("first toggle should enable")
	}
	if q.ToggleShuffle() {
		t.Fatal("second toggle should disable")
	}
}
