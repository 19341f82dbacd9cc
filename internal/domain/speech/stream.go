package speech

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	platformerrors "feelink-client-go/internal/platform/errors"
	"feelink-client-go/internal/platform/logging"
)

const defaultSilenceTimeout = 1500 * time.Millisecond

// Config describes the streaming transcription endpoint.
type Config struct {
	WSURL          string
	Language       string
	SampleRate     int
	SilenceTimeout time.Duration
}

// frame is the wire shape of one message from the transcription server.
type frame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// startRequest opens a transcription stream.
type startRequest struct {
	Type       string `json:"type"`
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
}

// StreamRecognizer feeds audio to a websocket transcription endpoint and
// relays partial and final results. Silence after the last partial forces
// an implicit final carrying the last known text.
type StreamRecognizer struct {
	cfg    Config
	logger *logging.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	gen      uint64
	active   bool
	finished bool
	conn     *websocket.Conn
	listener Listener
	lastText string
	silence  *time.Timer
}

func NewStreamRecognizer(cfg Config, logger *logging.Logger) *StreamRecognizer {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	return &StreamRecognizer{
		cfg:    cfg,
		logger: logger,
		dialer: websocket.DefaultDialer,
	}
}

// Start opens the stream and begins relaying events to the listener. An
// already-active capture is torn down first without emitting events.
func (r *StreamRecognizer) Start(ctx context.Context, listener Listener) error {
	const op = "start_capture"

	if r.cfg.WSURL == "" {
		return platformerrors.New(platformerrors.KindConfig, op, "transcription ws_url is not configured")
	}

	r.mu.Lock()
	if r.active {
		r.teardownLocked()
	}
	r.mu.Unlock()

	conn, _, err := r.dialer.DialContext(ctx, r.cfg.WSURL, nil)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, op, "dial transcription endpoint", err)
	}

	req := startRequest{Type: "start", Language: r.cfg.Language, SampleRate: r.cfg.SampleRate}
	payload, err := sonic.Marshal(req)
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, payload)
	}
	if err != nil {
		_ = conn.Close()
		return platformerrors.Wrap(platformerrors.KindTransport, op, "open transcription stream", err)
	}

	r.mu.Lock()
	r.gen++
	r.active = true
	r.finished = false
	r.conn = conn
	r.listener = listener
	r.lastText = ""
	r.mu.Unlock()

	r.logger.InfoTag("ASR", "capture started (%s)", r.cfg.Language)
	go r.readLoop(conn)
	return nil
}

// Feed pushes raw audio to the active stream. Data arriving while
// inactive is dropped.
func (r *StreamRecognizer) Feed(pcm []byte) {
	r.mu.Lock()
	conn := r.conn
	active := r.active
	r.mu.Unlock()
	if !active || conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		r.logger.DebugTag("ASR", "audio write failed: %v", err)
	}
}

// Stop finalizes the active capture with the last known text. Calling it
// while inactive is a no-op.
func (r *StreamRecognizer) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	text := r.lastText
	listener := r.finishLocked()
	r.mu.Unlock()

	if listener.OnFinal != nil {
		listener.OnFinal(text)
	}
}

func (r *StreamRecognizer) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.fail(conn, platformerrors.Wrap(platformerrors.KindCapture, "read_capture", "transcription stream closed", err))
			return
		}

		var f frame
		if err := sonic.Unmarshal(data, &f); err != nil {
			r.logger.DebugTag("ASR", "undecodable frame dropped: %v", err)
			continue
		}

		switch f.Type {
		case "partial":
			r.handlePartial(conn, f.Text)
		case "final":
			r.finalize(conn, f.Text)
			return
		case "error":
			r.fail(conn, platformerrors.New(platformerrors.KindCapture, "read_capture", f.Message))
			return
		default:
			r.logger.DebugTag("ASR", "unknown frame type %q ignored", f.Type)
		}
	}
}

func (r *StreamRecognizer) handlePartial(conn *websocket.Conn, text string) {
	r.mu.Lock()
	if !r.active || r.finished || r.conn != conn {
		r.mu.Unlock()
		return
	}
	r.lastText = text
	listener := r.listener
	if r.silence != nil {
		r.silence.Stop()
	}
	gen := r.gen
	r.silence = time.AfterFunc(r.cfg.SilenceTimeout, func() { r.onSilence(gen) })
	r.mu.Unlock()

	if listener.OnPartial != nil {
		listener.OnPartial(text)
	}
}

// onSilence fires when no partial arrived within the silence window.
func (r *StreamRecognizer) onSilence(gen uint64) {
	r.mu.Lock()
	if !r.active || r.finished || r.gen != gen {
		r.mu.Unlock()
		return
	}
	text := r.lastText
	listener := r.finishLocked()
	r.mu.Unlock()

	r.logger.InfoTag("ASR", "silence detected, capture finalized")
	if listener.OnFinal != nil {
		listener.OnFinal(text)
	}
}

func (r *StreamRecognizer) finalize(conn *websocket.Conn, text string) {
	r.mu.Lock()
	if !r.active || r.finished || r.conn != conn {
		r.mu.Unlock()
		return
	}
	if text == "" {
		text = r.lastText
	}
	listener := r.finishLocked()
	r.mu.Unlock()

	if listener.OnFinal != nil {
		listener.OnFinal(text)
	}
}

func (r *StreamRecognizer) fail(conn *websocket.Conn, err error) {
	r.mu.Lock()
	if !r.active || r.finished || r.conn != conn {
		r.mu.Unlock()
		return
	}
	listener := r.finishLocked()
	r.mu.Unlock()

	if listener.OnError != nil {
		listener.OnError(err)
	}
}

// finishLocked marks the capture terminal and tears the stream down. The
// caller holds the mutex and delivers the terminal event after unlocking.
func (r *StreamRecognizer) finishLocked() Listener {
	listener := r.listener
	r.finished = true
	r.teardownLocked()
	return listener
}

// teardownLocked releases the connection and timer without emitting events.
func (r *StreamRecognizer) teardownLocked() {
	if r.silence != nil {
		r.silence.Stop()
		r.silence = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	r.active = false
	r.listener = Listener{}
}
