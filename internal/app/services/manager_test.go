package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feelink-client-go/internal/domain/conversation"
	"feelink-client-go/internal/domain/eventbus"
	"feelink-client-go/internal/domain/speech"
	platformtesting "feelink-client-go/internal/platform/testing"
)

type idleRecognizer struct{}

func (idleRecognizer) Start(ctx context.Context, l speech.Listener) error { return nil }
func (idleRecognizer) Stop()                                              {}

type fakeGateway struct {
	fetched []string
	result  *conversation.AnalysisResult
}

func (g *fakeGateway) ContinueChat(ctx context.Context, message, conversationID string) (*conversation.ChatResponse, error) {
	return &conversation.ChatResponse{Message: "ok", ConversationID: conversationID}, nil
}

func (g *fakeGateway) SendChatTurn(ctx context.Context, message, analysisID string, image []byte) (*conversation.ChatResponse, error) {
	return &conversation.ChatResponse{Message: "ok", AnalysisID: analysisID}, nil
}

func (g *fakeGateway) FetchAnalysis(ctx context.Context, analysisID string) (*conversation.AnalysisResult, error) {
	g.fetched = append(g.fetched, analysisID)
	return g.result, nil
}

func newTestManager(t *testing.T, gateway *fakeGateway) *ConversationManager {
	t.Helper()

	manager := NewConversationManager(ManagerConfig{
		Gateway:     gateway,
		Recognizers: func() speech.Recognizer { return idleRecognizer{} },
		Bus:         eventbus.New(),
		Logger:      platformtesting.SetupTestLogger(t),
	})
	t.Cleanup(manager.Close)
	return manager
}

func TestOpenConversationBindsIdent(t *testing.T) {
	manager := newTestManager(t, &fakeGateway{})

	require.NoError(t, manager.OpenConversation("conv-12345"))
	session := manager.Active()
	require.NotNil(t, session)
	assert.Equal(t, conversation.ConversationIdent("conv-12345"), session.Ident())
	assert.Equal(t, conversation.StateIdle, session.State())
}

func TestReopeningSameConversationReusesSession(t *testing.T) {
	manager := newTestManager(t, &fakeGateway{})

	require.NoError(t, manager.OpenConversation("conv-12345"))
	first := manager.Active()
	require.NoError(t, manager.OpenConversation("conv-12345"))
	assert.Same(t, first, manager.Active())
}

func TestOpeningDifferentConversationReplacesSession(t *testing.T) {
	manager := newTestManager(t, &fakeGateway{})

	require.NoError(t, manager.OpenConversation("conv-12345"))
	first := manager.Active()
	require.NoError(t, manager.OpenConversation("conv-67890"))
	second := manager.Active()

	assert.NotSame(t, first, second)
	assert.Equal(t, conversation.ConversationIdent("conv-67890"), second.Ident())
}

func TestOpenAnalysisFetchesStoredResult(t *testing.T) {
	gateway := &fakeGateway{result: &conversation.AnalysisResult{
		ID:         "an-7",
		Timestamp:  time.Now(),
		Summary:    "a settings screen",
		Confidence: 0.9,
	}}
	manager := newTestManager(t, gateway)

	require.NoError(t, manager.OpenAnalysis("an-7"))
	session := manager.Active()
	require.NotNil(t, session)

	require.Eventually(t, func() bool {
		return session.State() == conversation.StateDisplaying
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"an-7"}, gateway.fetched)
	require.NotNil(t, session.Result())
	assert.Equal(t, "an-7", session.Result().ID)
}

func TestShowResultSkipsBackend(t *testing.T) {
	gateway := &fakeGateway{}
	manager := newTestManager(t, gateway)

	result := &conversation.AnalysisResult{ID: "a1", Summary: "질문: what is this?", Confidence: 1.0}
	require.NoError(t, manager.ShowResult("a1", result))

	session := manager.Active()
	require.NotNil(t, session)
	session.Sync()

	assert.Equal(t, conversation.StateDisplaying, session.State())
	assert.Empty(t, gateway.fetched)
	require.NotNil(t, session.Result())
	assert.Equal(t, "a1", session.Result().ID)
}
