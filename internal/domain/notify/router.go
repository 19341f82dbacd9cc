package notify

import (
	"context"
	"time"

	"feelink-client-go/internal/domain/announce"
	"feelink-client-go/internal/domain/conversation"
	"feelink-client-go/internal/platform/logging"
)

const defaultReplyTimeout = 10 * time.Second

// Sessions is the session-manager surface the router drives.
type Sessions interface {
	OpenConversation(conversationID string) error
	OpenAnalysis(analysisID string) error
	ShowResult(analysisID string, result *conversation.AnalysisResult) error
}

// ChatGateway is the single backend operation the router calls
// directly: pushing a typed reply into an existing conversation.
type ChatGateway interface {
	ContinueChat(ctx context.Context, message, conversationID string) (*conversation.ChatResponse, error)
}

// RouterConfig wires a Router.
type RouterConfig struct {
	Sessions     Sessions
	Gateway      ChatGateway
	Announcer    announce.Announcer
	Logger       *logging.Logger
	ReplyTimeout time.Duration
}

// Router turns classified intents into session actions. It holds no
// state of its own; every dispatch is independent.
type Router struct {
	sessions     Sessions
	gateway      ChatGateway
	announcer    announce.Announcer
	logger       *logging.Logger
	replyTimeout time.Duration
}

func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.ReplyTimeout
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	announcer := cfg.Announcer
	if announcer == nil {
		announcer = announce.Nop{}
	}
	return &Router{
		sessions:     cfg.Sessions,
		gateway:      cfg.Gateway,
		announcer:    announcer,
		logger:       cfg.Logger,
		replyTimeout: timeout,
	}
}

// HandleRaw decodes, classifies and dispatches one notification body.
func (r *Router) HandleRaw(ctx context.Context, raw []byte) error {
	payload, err := DecodePayload(raw)
	if err != nil {
		r.logger.WarnTag("Router", "dropping undecodable payload: %v", err)
		return err
	}
	return r.Dispatch(ctx, Classify(payload))
}

// Dispatch executes one intent.
func (r *Router) Dispatch(ctx context.Context, intent Intent) error {
	r.logger.InfoTag("Router", "dispatching %s", intent.Kind)

	switch intent.Kind {
	case IntentReply:
		return r.dispatchReply(ctx, intent)
	case IntentOpenConversation:
		return r.sessions.OpenConversation(intent.ConversationID)
	case IntentShowLegacyResult:
		return r.sessions.ShowResult(intent.AnalysisID, intent.Result)
	case IntentOpenAnalysis:
		return r.sessions.OpenAnalysis(intent.AnalysisID)
	default:
		r.logger.DebugTag("Router", "no recognized fields, payload discarded")
		return nil
	}
}

// dispatchReply forwards typed reply text into the conversation, speaks
// the answer, then opens the session so the follow-up turn is live.
func (r *Router) dispatchReply(ctx context.Context, intent Intent) error {
	replyCtx, cancel := context.WithTimeout(ctx, r.replyTimeout)
	defer cancel()

	resp, err := r.gateway.ContinueChat(replyCtx, intent.ReplyText, intent.ConversationID)
	if err != nil {
		r.logger.WarnTag("Router", "reply to %s failed: %v", intent.ConversationID, err)
		announce.AnnounceReplyFailure(r.announcer)
		return err
	}

	announce.AnnounceChatResponse(r.announcer, resp.Message)
	return r.sessions.OpenConversation(intent.ConversationID)
}
