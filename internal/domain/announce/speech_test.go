package announce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformtesting "feelink-client-go/internal/platform/testing"
)

// fakeSynth records synthesized texts. It can gate the first call to
// keep later announcements parked in the queue.
type fakeSynth struct {
	mu      sync.Mutex
	texts   []string
	err     error
	release chan struct{}
	gated   bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	gate := !f.gated && f.release != nil
	f.gated = f.gated || gate
	f.mu.Unlock()

	if gate {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.texts = append(f.texts, text)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// not a decodable MP3; the announcer skips pacing
	return []byte("audio"), nil
}

func (f *fakeSynth) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newTestAnnouncer(t *testing.T, synth *fakeSynth) *SpeechAnnouncer {
	t.Helper()
	a := newSpeechAnnouncer(synth, SpeechConfig{}, platformtesting.SetupTestLogger(t))
	t.Cleanup(a.Close)
	return a
}

func TestAnnouncementsSpeakInOrder(t *testing.T) {
	synth := &fakeSynth{}
	a := newTestAnnouncer(t, synth)

	a.Announce("first", PriorityRoutine)
	a.Announce("second", PriorityRoutine)

	require.Eventually(t, func() bool {
		return len(synth.spoken()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, synth.spoken())
}

func TestEmptyTextIsDropped(t *testing.T) {
	synth := &fakeSynth{}
	a := newTestAnnouncer(t, synth)

	a.Announce("", PriorityScreenChanged)
	a.Announce("real", PriorityRoutine)

	require.Eventually(t, func() bool {
		return len(synth.spoken()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"real"}, synth.spoken())
}

func TestScreenChangeShedsQueuedRoutineSpeech(t *testing.T) {
	synth := &fakeSynth{release: make(chan struct{})}
	a := newTestAnnouncer(t, synth)

	// The first announcement parks inside the synthesizer; the rest
	// stack up in the queue.
	a.Announce("busy", PriorityRoutine)
	require.Eventually(t, func() bool {
		synth.mu.Lock()
		defer synth.mu.Unlock()
		return synth.gated
	}, time.Second, 5*time.Millisecond)

	a.Announce("stale one", PriorityRoutine)
	a.Announce("stale two", PriorityRoutine)
	a.Announce("new screen", PriorityScreenChanged)
	close(synth.release)

	require.Eventually(t, func() bool {
		return len(synth.spoken()) == 2
	}, time.Second, 5*time.Millisecond)

	// queued routine entries were shed; only the in-flight one and the
	// screen change spoke
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"busy", "new screen"}, synth.spoken())
}

func TestSynthesisFailureIsSwallowed(t *testing.T) {
	synth := &fakeSynth{err: errors.New("tts unavailable"), release: make(chan struct{})}
	a := newTestAnnouncer(t, synth)

	// Park the routine item inside the synthesizer first, so the screen
	// change cannot shed it from the queue.
	a.Announce("doomed", PriorityRoutine)
	require.Eventually(t, func() bool {
		synth.mu.Lock()
		defer synth.mu.Unlock()
		return synth.gated
	}, time.Second, 5*time.Millisecond)

	a.Announce("also doomed", PriorityScreenChanged)
	close(synth.release)

	// both attempts ran; neither failure escaped
	require.Eventually(t, func() bool {
		return len(synth.spoken()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"doomed", "also doomed"}, synth.spoken())
}

func TestCloseAbandonsQueue(t *testing.T) {
	synth := &fakeSynth{release: make(chan struct{})}
	a := newSpeechAnnouncer(synth, SpeechConfig{}, platformtesting.SetupTestLogger(t))

	a.Announce("parked", PriorityRoutine)
	a.Announce("never spoken", PriorityRoutine)

	done := make(chan struct{})
	go func() {
		a.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return while synthesis was blocked")
	}
}

func TestFixedPhraseHelpers(t *testing.T) {
	synth := &fakeSynth{}
	a := newTestAnnouncer(t, synth)

	AnnounceAnalysisResult(a, "로그인 화면")
	AnnounceRecordingState(a, true)
	AnnounceReplyFailure(a)

	require.Eventually(t, func() bool {
		return len(synth.spoken()) == 3
	}, time.Second, 5*time.Millisecond)

	spoken := synth.spoken()
	assert.Equal(t, "분석되었습니다. 로그인 화면", spoken[0])
	assert.Equal(t, "음성 인식을 시작합니다. 질문해 주세요.", spoken[1])
	assert.Equal(t, "응답을 가져오지 못했습니다. 다시 시도해 주세요.", spoken[2])
}
