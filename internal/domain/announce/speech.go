package announce

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"feelink-client-go/internal/platform/logging"
)

const queueCapacity = 16

// Synthesizer turns text into MP3 audio. The production implementation
// speaks through Edge TTS; tests substitute a double.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type edgeSynthesizer struct {
	voice string
}

func (s edgeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	communicate, err := edge_tts.NewCommunicate(text, edge_tts.SetVoice(s.voice))
	if err != nil {
		return nil, fmt.Errorf("create edge tts communicator: %w", err)
	}

	audio, err := communicate.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge tts synthesis: %w", err)
	}
	return audio, nil
}

type announcement struct {
	text     string
	priority Priority
}

// SpeechConfig configures the speech announcer.
type SpeechConfig struct {
	Voice     string
	OutputDir string
	KeepFiles bool
}

// SpeechAnnouncer synthesizes announcements on a single worker so spoken
// output never overlaps. Enqueueing never blocks; when the queue is full
// the oldest routine entries are shed first.
type SpeechAnnouncer struct {
	synth     Synthesizer
	logger    *logging.Logger
	outputDir string
	keepFiles bool

	mu     sync.Mutex
	queue  []announcement
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSpeechAnnouncer(cfg SpeechConfig, logger *logging.Logger) *SpeechAnnouncer {
	return newSpeechAnnouncer(edgeSynthesizer{voice: cfg.Voice}, cfg, logger)
}

func newSpeechAnnouncer(synth Synthesizer, cfg SpeechConfig, logger *logging.Logger) *SpeechAnnouncer {
	ctx, cancel := context.WithCancel(context.Background())
	a := &SpeechAnnouncer{
		synth:     synth,
		logger:    logger,
		outputDir: cfg.OutputDir,
		keepFiles: cfg.KeepFiles,
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go a.worker()
	return a
}

// Announce queues the text for speech. A screen-change announcement jumps
// ahead of queued routine speech.
func (a *SpeechAnnouncer) Announce(text string, priority Priority) {
	if text == "" {
		return
	}

	a.mu.Lock()
	if priority == PriorityScreenChanged {
		// New content on screen supersedes whatever routine speech is
		// still queued.
		kept := a.queue[:0]
		for _, item := range a.queue {
			if item.priority == PriorityScreenChanged {
				kept = append(kept, item)
			}
		}
		a.queue = kept
	}
	if len(a.queue) >= queueCapacity {
		a.logger.WarnTag("TTS", "announcement queue full, dropping %q", text)
		a.mu.Unlock()
		return
	}
	a.queue = append(a.queue, announcement{text: text, priority: priority})
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Close stops the worker. Queued announcements are abandoned.
func (a *SpeechAnnouncer) Close() {
	a.cancel()
	<-a.done
}

func (a *SpeechAnnouncer) worker() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.wake:
		}
		for {
			item, ok := a.pop()
			if !ok {
				break
			}
			a.speak(item)
			if a.ctx.Err() != nil {
				return
			}
		}
	}
}

func (a *SpeechAnnouncer) pop() (announcement, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return announcement{}, false
	}
	item := a.queue[0]
	a.queue = a.queue[1:]
	return item, true
}

func (a *SpeechAnnouncer) speak(item announcement) {
	audio, err := a.synth.Synthesize(a.ctx, item.text)
	if err != nil {
		a.logger.ErrorTag("TTS", "synthesis failed (%s): %v", item.priority, err)
		return
	}

	duration := a.probeDuration(audio)
	a.logger.InfoTag("TTS", "speaking %q (%s, %.1fs)", item.text, item.priority, duration.Seconds())

	if a.keepFiles && a.outputDir != "" {
		a.persist(audio)
	}

	// Pace the queue by playback length so announcements do not overlap.
	if duration > 0 {
		select {
		case <-time.After(duration):
		case <-a.ctx.Done():
		}
	}
}

// probeDuration decodes the MP3 header to derive playback length. A
// failure is not fatal; the announcement is simply not paced.
func (a *SpeechAnnouncer) probeDuration(audio []byte) time.Duration {
	decoder, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		a.logger.DebugTag("TTS", "duration probe failed: %v", err)
		return 0
	}
	samples := decoder.Length() / 4
	if decoder.SampleRate() <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(decoder.SampleRate())
}

func (a *SpeechAnnouncer) persist(audio []byte) {
	if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
		a.logger.DebugTag("TTS", "create output dir failed: %v", err)
		return
	}
	name := fmt.Sprintf("announce-%d.mp3", time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(a.outputDir, name), audio, 0o644); err != nil {
		a.logger.DebugTag("TTS", "save audio failed: %v", err)
	}
}
