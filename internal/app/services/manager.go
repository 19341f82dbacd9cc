// Package services hosts the application layer: long-lived components
// that tie the domain packages to transports and the presentation side.
package services

import (
	"sync"
	"time"

	"feelink-client-go/internal/domain/announce"
	"feelink-client-go/internal/domain/conversation"
	"feelink-client-go/internal/domain/eventbus"
	"feelink-client-go/internal/domain/speech"
	"feelink-client-go/internal/platform/logging"
)

// RecognizerFactory produces a fresh capture instance per session.
type RecognizerFactory func() speech.Recognizer

// ManagerConfig wires a ConversationManager.
type ManagerConfig struct {
	Gateway      conversation.Gateway
	Recognizers  RecognizerFactory
	Announcer    announce.Announcer
	Bus          *eventbus.Bus
	Logger       *logging.Logger
	ReplyTimeout time.Duration
}

// ConversationManager owns the active conversation session. At most one
// session is live; opening a new one closes the previous, matching the
// single-conversation-view model of the client.
type ConversationManager struct {
	gateway      conversation.Gateway
	recognizers  RecognizerFactory
	announcer    announce.Announcer
	bus          *eventbus.Bus
	logger       *logging.Logger
	replyTimeout time.Duration

	mu     sync.Mutex
	active *conversation.Session
}

func NewConversationManager(cfg ManagerConfig) *ConversationManager {
	announcer := cfg.Announcer
	if announcer == nil {
		announcer = announce.Nop{}
	}
	return &ConversationManager{
		gateway:      cfg.Gateway,
		recognizers:  cfg.Recognizers,
		announcer:    announcer,
		bus:          cfg.Bus,
		logger:       cfg.Logger,
		replyTimeout: cfg.ReplyTimeout,
	}
}

// Active returns the current session, or nil when none is open.
func (m *ConversationManager) Active() *conversation.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// OpenConversation opens a live session bound to a conversation id.
// Reopening the same conversation reuses the existing session.
func (m *ConversationManager) OpenConversation(conversationID string) error {
	m.openSession(conversation.ConversationIdent(conversationID))
	return nil
}

// OpenAnalysis opens a session bound to an analysis id and starts the
// fetch for its stored result.
func (m *ConversationManager) OpenAnalysis(analysisID string) error {
	session := m.openSession(conversation.AnalysisIdent(analysisID))
	session.OpenAnalysis(analysisID)
	return nil
}

// ShowResult opens a session bound to an analysis id and displays a
// result the caller already holds, without a backend round-trip.
func (m *ConversationManager) ShowResult(analysisID string, result *conversation.AnalysisResult) error {
	session := m.openSession(conversation.AnalysisIdent(analysisID))
	session.ShowResult(result)
	return nil
}

// Close tears down the active session, if any.
func (m *ConversationManager) Close() {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.mu.Unlock()

	if active != nil {
		active.Close()
	}
}

func (m *ConversationManager) openSession(ident conversation.Ident) *conversation.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if m.active.Ident() == ident {
			return m.active
		}
		m.active.Close()
	}

	m.logger.InfoTag("Session", "opening session for %s %s", ident.Kind, ident.Value)
	m.active = conversation.NewSession(&conversation.SessionConfig{
		Ident:        ident,
		Gateway:      m.gateway,
		Recognizer:   m.recognizers(),
		Announcer:    m.announcer,
		Bus:          m.bus,
		Logger:       m.logger,
		ReplyTimeout: m.replyTimeout,
	})
	return m.active
}
