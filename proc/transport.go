package proc

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// Transport is the voice delivery collaborator. The disgo implementation
// lives in voiceconn.go; the playback controller only sees this surface.
//
// Play consumes the given source until it drains or Stop is called, and
// invokes onComplete exactly once per call: on natural end, explicit stop,
// or error.
type Transport interface {
	Connect(ctx context.Context, channelID snowflake.ID) error
	Play(src FrameSource, onComplete func(error)) error
	Pause()
	Resume()
	Stop()
	Disconnect(ctx context.Context)
	IsConnected() bool
	IsPlaying() bool
	IsPaused() bool
}
