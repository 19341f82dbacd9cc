// Package speech adapts a continuous audio-to-text engine behind a small
// capture contract: one start produces a stream of partial updates ending
// in exactly one final or one error event.
package speech

import (
	"context"
	"errors"
)

// ErrCanceled marks an expected, user-initiated capture teardown. It is
// never surfaced to the user as a failure.
var ErrCanceled = errors.New("speech capture canceled")

// Listener receives capture events. OnPartial may fire any number of
// times; afterwards exactly one of OnFinal or OnError fires.
type Listener struct {
	OnPartial func(text string)
	OnFinal   func(text string)
	OnError   func(err error)
}

// Recognizer is a restartable capture source. Only one capture is active
// per instance; starting again supersedes the previous capture. Stop
// finalizes an active capture with the last known text and is a no-op
// while inactive.
type Recognizer interface {
	Start(ctx context.Context, listener Listener) error
	Stop()
}
