package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"feelink-client-go/internal/domain/announce"
	"feelink-client-go/internal/domain/eventbus"
	"feelink-client-go/internal/domain/speech"
	"feelink-client-go/internal/platform/logging"
)

const defaultReplyTimeout = 15 * time.Second

// Gateway is the backend surface the session drives. Implemented by
// internal/gateway.Client; replaced by doubles in tests.
type Gateway interface {
	ContinueChat(ctx context.Context, message, conversationID string) (*ChatResponse, error)
	SendChatTurn(ctx context.Context, message, analysisID string, image []byte) (*ChatResponse, error)
	FetchAnalysis(ctx context.Context, analysisID string) (*AnalysisResult, error)
}

// SessionConfig carries the injected collaborators for one session.
type SessionConfig struct {
	Ident        Ident
	Gateway      Gateway
	Recognizer   speech.Recognizer
	Announcer    announce.Announcer
	Bus          *eventbus.Bus
	Logger       *logging.Logger
	ReplyTimeout time.Duration
}

type eventKind int

const (
	evStartListen eventKind = iota
	evStopListen
	evCancelListen
	evPartial
	evFinal
	evCaptureErr
	evDispatch
	evReplyOK
	evReplyErr
	evOpenAnalysis
	evAnalysisOK
	evAnalysisErr
	evShowResult
	evSync
	evClose
)

type event struct {
	kind   eventKind
	gen    uint64
	turn   uint64
	text   string
	id     string
	err    error
	resp   *ChatResponse
	result *AnalysisResult
	done   chan struct{}
}

type pendingTurn struct {
	text string
	turn uint64
}

// Session is the core conversation state machine. All transitions happen
// on a single event loop; public methods only submit events, so callers
// never interleave writes to the state.
type Session struct {
	ident        Ident
	gateway      Gateway
	recognizer   speech.Recognizer
	announcer    announce.Announcer
	bus          *eventbus.Bus
	logger       *logging.Logger
	replyTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	done   chan struct{}

	// loop-owned; never touched outside the run goroutine
	captureGen uint64
	turn       uint64
	pending    *pendingTurn

	// published snapshot for readers
	mu           sync.RWMutex
	state        State
	lastResponse *ChatResponse
	result       *AnalysisResult

	closeOnce sync.Once
}

// NewSession builds a session in Idle state and starts its event loop.
func NewSession(cfg *SessionConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ident:        cfg.Ident,
		gateway:      cfg.Gateway,
		recognizer:   cfg.Recognizer,
		announcer:    cfg.Announcer,
		bus:          cfg.Bus,
		logger:       cfg.Logger,
		replyTimeout: cfg.ReplyTimeout,
		ctx:          ctx,
		cancel:       cancel,
		events:       make(chan event, 64),
		done:         make(chan struct{}),
		state:        StateIdle,
	}
	if s.replyTimeout <= 0 {
		s.replyTimeout = defaultReplyTimeout
	}
	go s.run()
	return s
}

// Ident returns the identity the session was opened with. It never
// changes for the session's lifetime.
func (s *Session) Ident() Ident {
	return s.ident
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastResponse returns the most recent completed chat turn, if any.
func (s *Session) LastResponse() *ChatResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastResponse
}

// Result returns the displayed analysis, if the session is Displaying.
func (s *Session) Result() *AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// StartListening requests a voice turn. A no-op while already Listening.
func (s *Session) StartListening() {
	s.enqueue(event{kind: evStartListen})
}

// StopListening finalizes the current capture and sends the captured text.
func (s *Session) StopListening() {
	s.enqueue(event{kind: evStopListen})
}

// CancelListening aborts the current capture without a backend call.
// Cancel wins over a concurrently delivered finalize.
func (s *Session) CancelListening() {
	s.enqueue(event{kind: evCancelListen})
}

// OpenAnalysis fetches a stored analysis and enters Displaying on success.
func (s *Session) OpenAnalysis(id string) {
	s.enqueue(event{kind: evOpenAnalysis, id: id})
}

// ShowResult enters Displaying with an already-constructed result.
func (s *Session) ShowResult(result *AnalysisResult) {
	s.enqueue(event{kind: evShowResult, result: result})
}

// Sync blocks until every previously submitted event has been applied.
func (s *Session) Sync() {
	done := make(chan struct{})
	select {
	case s.events <- event{kind: evSync, done: done}:
	case <-s.done:
		return
	}
	select {
	case <-done:
	case <-s.done:
	}
}

// Close destroys the session: capture stops, pending work is dropped and
// the loop exits. In-flight gateway calls resolve into a closed loop and
// are discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		select {
		case s.events <- event{kind: evClose}:
			<-s.done
		case <-s.done:
		}
		s.cancel()
	})
}

func (s *Session) enqueue(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	default:
		s.logger.WarnTag("Session", "event queue full, %d dropped", ev.kind)
	}
}

func (s *Session) run() {
	defer close(s.done)
	for ev := range s.events {
		if s.handle(ev) {
			return
		}
	}
}

// handle applies one event. Returns true when the loop should exit.
func (s *Session) handle(ev event) bool {
	switch ev.kind {
	case evStartListen:
		s.handleStartListen()
	case evStopListen:
		s.handleStopListen()
	case evCancelListen:
		s.handleCancelListen()
	case evPartial:
		s.handlePartial(ev)
	case evFinal:
		s.handleFinal(ev)
	case evCaptureErr:
		s.handleCaptureErr(ev)
	case evDispatch:
		s.handleDispatch()
	case evReplyOK:
		s.handleReplyOK(ev)
	case evReplyErr:
		s.handleReplyErr(ev)
	case evOpenAnalysis:
		s.handleOpenAnalysis(ev)
	case evAnalysisOK:
		s.handleAnalysisOK(ev)
	case evAnalysisErr:
		s.handleAnalysisErr(ev)
	case evShowResult:
		s.handleShowResult(ev)
	case evSync:
		close(ev.done)
	case evClose:
		s.captureGen++
		s.turn++
		s.pending = nil
		s.recognizer.Stop()
		return true
	}
	return false
}

func (s *Session) handleStartListen() {
	switch s.stateNow() {
	case StateListening:
		s.logger.DebugTag("Session", "already listening, start ignored")
		return
	case StateAwaitingReply:
		s.logger.WarnTag("Session", "voice turn rejected while awaiting reply")
		return
	}

	s.captureGen++
	gen := s.captureGen
	if err := s.recognizer.Start(s.ctx, s.captureListener(gen)); err != nil {
		s.logger.ErrorTag("Session", "capture start failed: %v", err)
		announce.AnnounceCaptureFailure(s.announcer)
		return
	}
	s.setState(StateListening)
	announce.AnnounceRecordingState(s.announcer, true)
}

func (s *Session) handleStopListen() {
	if s.stateNow() != StateListening {
		return
	}
	announce.AnnounceRecordingState(s.announcer, false)
	// The recognizer finalizes with the last known text; the final event
	// flows back through the normal capture path.
	s.recognizer.Stop()
}

func (s *Session) handleCancelListen() {
	switch s.stateNow() {
	case StateListening:
		s.captureGen++
		s.recognizer.Stop()
		s.setState(StateIdle)
		s.logger.InfoTag("Session", "capture canceled")
	case StateAwaitingReply:
		// A finalize already ran but its backend call has not been
		// issued yet: retract it. Cancel wins.
		if s.pending != nil {
			s.pending = nil
			s.turn++
			s.setState(StateIdle)
			s.logger.InfoTag("Session", "pending turn retracted by cancel")
		}
	}
}

func (s *Session) captureListener(gen uint64) speech.Listener {
	return speech.Listener{
		OnPartial: func(text string) {
			s.enqueue(event{kind: evPartial, gen: gen, text: text})
		},
		OnFinal: func(text string) {
			s.enqueue(event{kind: evFinal, gen: gen, text: text})
		},
		OnError: func(err error) {
			s.enqueue(event{kind: evCaptureErr, gen: gen, err: err})
		},
	}
}

func (s *Session) handlePartial(ev event) {
	if ev.gen != s.captureGen || s.stateNow() != StateListening {
		return
	}
	s.bus.Publish(eventbus.TopicPartialText, s.ident.Value, ev.text)
}

func (s *Session) handleFinal(ev event) {
	if ev.gen != s.captureGen || s.stateNow() != StateListening {
		s.logger.DebugTag("Session", "stale capture final dropped")
		return
	}
	s.captureGen++

	if ev.text == "" {
		s.logger.InfoTag("Session", "empty transcript, no turn issued")
		s.setState(StateIdle)
		return
	}

	s.turn++
	s.pending = &pendingTurn{text: ev.text, turn: s.turn}
	s.setState(StateAwaitingReply)
	// Dispatch through the queue so a cancel delivered in the same tick
	// still retracts the turn before any request is issued.
	s.enqueue(event{kind: evDispatch})
}

func (s *Session) handleCaptureErr(ev event) {
	if ev.gen != s.captureGen || s.stateNow() != StateListening {
		return
	}
	s.captureGen++
	s.recognizer.Stop()
	s.setState(StateIdle)

	if errors.Is(ev.err, speech.ErrCanceled) {
		return
	}
	s.logger.ErrorTag("Session", "capture failed: %v", ev.err)
	announce.AnnounceCaptureFailure(s.announcer)
}

func (s *Session) handleDispatch() {
	if s.pending == nil {
		return
	}
	p := *s.pending
	s.pending = nil
	go s.performTurn(p.text, p.turn)
}

func (s *Session) performTurn(text string, turn uint64) {
	ctx, cancel := context.WithTimeout(s.ctx, s.replyTimeout)
	defer cancel()

	var (
		resp *ChatResponse
		err  error
	)
	switch s.ident.Kind {
	case KindConversation:
		resp, err = s.gateway.ContinueChat(ctx, text, s.ident.Value)
	default:
		resp, err = s.gateway.SendChatTurn(ctx, text, s.ident.Value, nil)
	}

	if err != nil {
		s.enqueue(event{kind: evReplyErr, turn: turn, err: err})
		return
	}
	s.enqueue(event{kind: evReplyOK, turn: turn, resp: resp})
}

func (s *Session) handleReplyOK(ev event) {
	if ev.turn != s.turn || s.stateNow() != StateAwaitingReply {
		s.logger.DebugTag("Session", "stale reply dropped (turn %d)", ev.turn)
		return
	}
	s.mu.Lock()
	s.lastResponse = ev.resp
	s.mu.Unlock()
	s.setState(StateIdle)

	announce.AnnounceChatResponse(s.announcer, ev.resp.Message)
	s.bus.Publish(eventbus.TopicChatResponse, s.ident.Value, ev.resp)
}

func (s *Session) handleReplyErr(ev event) {
	if ev.turn != s.turn || s.stateNow() != StateAwaitingReply {
		s.logger.DebugTag("Session", "stale reply error dropped (turn %d)", ev.turn)
		return
	}
	s.setState(StateIdle)
	s.logger.ErrorTag("Session", "chat turn failed: %v", ev.err)
	announce.AnnounceReplyFailure(s.announcer)
}

func (s *Session) handleOpenAnalysis(ev event) {
	if s.stateNow() != StateIdle {
		s.logger.WarnTag("Session", "open analysis rejected in state %s", s.stateNow())
		return
	}
	s.turn++
	turn := s.turn
	id := ev.id
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.replyTimeout)
		defer cancel()
		result, err := s.gateway.FetchAnalysis(ctx, id)
		if err != nil {
			s.enqueue(event{kind: evAnalysisErr, turn: turn, err: err})
			return
		}
		s.enqueue(event{kind: evAnalysisOK, turn: turn, result: result})
	}()
}

func (s *Session) handleAnalysisOK(ev event) {
	if ev.turn != s.turn || s.stateNow() != StateIdle {
		s.logger.DebugTag("Session", "stale analysis result dropped (turn %d)", ev.turn)
		return
	}
	s.mu.Lock()
	s.result = ev.result
	s.mu.Unlock()
	s.setState(StateDisplaying)

	announce.AnnounceAnalysisResult(s.announcer, ev.result.Summary)
	s.bus.Publish(eventbus.TopicAnalysisResult, s.ident.Value, ev.result)
}

func (s *Session) handleAnalysisErr(ev event) {
	if ev.turn != s.turn || s.stateNow() != StateIdle {
		return
	}
	s.logger.ErrorTag("Session", "analysis load failed: %v", ev.err)
	announce.AnnounceLoadFailure(s.announcer)
}

func (s *Session) handleShowResult(ev event) {
	switch s.stateNow() {
	case StateIdle, StateDisplaying:
	default:
		s.logger.WarnTag("Session", "show result rejected in state %s", s.stateNow())
		return
	}
	s.mu.Lock()
	s.result = ev.result
	s.mu.Unlock()
	s.setState(StateDisplaying)

	announce.AnnounceAnalysisResult(s.announcer, ev.result.Summary)
	s.bus.Publish(eventbus.TopicAnalysisResult, s.ident.Value, ev.result)
}

// stateNow reads the snapshot from inside the loop. The loop is the
// only writer, so this is only a consistency convenience.
func (s *Session) stateNow() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.logger.DebugTag("Session", "%s -> %s", prev, next)
		s.bus.Publish(eventbus.TopicSessionState, s.ident.Value, string(next))
	}
}
