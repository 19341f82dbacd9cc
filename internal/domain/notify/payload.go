// Package notify classifies inbound push payloads and dispatches them
// to conversation sessions. Classification is a single decode into a
// tagged intent; dispatch never probes optional fields twice.
package notify

import (
	"time"

	"github.com/bytedance/sonic"

	"feelink-client-go/internal/domain/conversation"
	platformerrors "feelink-client-go/internal/platform/errors"
)

// ReplyActionIdentifier marks a notification action carrying free reply
// text typed by the user.
const ReplyActionIdentifier = "FEELINK_REPLY"

// minIdentifierLength rejects junk reply targets (empty strings,
// sentinel values) before free text is sent to the backend. It applies
// to the reply rule only; opening a conversation takes any id.
const minIdentifierLength = 5

// Payload is the raw push body. Fields are optional; which ones are
// present decides the intent.
type Payload struct {
	ActionIdentifier string `json:"action_identifier,omitempty"`
	UserText         string `json:"user_text,omitempty"`
	Title            string `json:"title,omitempty"`
	Body             string `json:"body,omitempty"`
	ConversationID   string `json:"conversation_id,omitempty"`
	AnalysisID       string `json:"analysisId,omitempty"`
	ImageURL         string `json:"imageUrl,omitempty"`
	Question         string `json:"question,omitempty"`
	AppName          string `json:"app_name,omitempty"`
}

// IntentKind tags the classification outcome.
type IntentKind int

const (
	// IntentDiscard means no recognized fields were present.
	IntentDiscard IntentKind = iota
	// IntentReply carries free reply text into an existing conversation.
	IntentReply
	// IntentOpenConversation opens a live session bound to a conversation id.
	IntentOpenConversation
	// IntentShowLegacyResult displays a result assembled from the payload
	// itself, without a backend round-trip.
	IntentShowLegacyResult
	// IntentOpenAnalysis fetches and displays a stored analysis.
	IntentOpenAnalysis
)

func (k IntentKind) String() string {
	switch k {
	case IntentReply:
		return "reply"
	case IntentOpenConversation:
		return "open_conversation"
	case IntentShowLegacyResult:
		return "show_legacy_result"
	case IntentOpenAnalysis:
		return "open_analysis"
	default:
		return "discard"
	}
}

// Intent is the classified form of a payload. Exactly the fields the
// kind needs are populated.
type Intent struct {
	Kind           IntentKind
	ReplyText      string
	ConversationID string
	AnalysisID     string
	Result         *conversation.AnalysisResult
}

// DecodePayload parses a raw notification body.
func DecodePayload(raw []byte) (*Payload, error) {
	const op = "decode_payload"

	var payload Payload
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindDecode, op, "malformed notification body", err)
	}
	return &payload, nil
}

// Classify maps a payload to exactly one intent. Rules are ordered;
// the first match wins and later rules are never consulted.
func Classify(payload *Payload) Intent {
	if payload.ActionIdentifier == ReplyActionIdentifier &&
		payload.UserText != "" &&
		usableIdentifier(payload.ConversationID) {
		return Intent{
			Kind:           IntentReply,
			ReplyText:      payload.UserText,
			ConversationID: payload.ConversationID,
		}
	}

	if payload.ConversationID != "" {
		return Intent{
			Kind:           IntentOpenConversation,
			ConversationID: payload.ConversationID,
		}
	}

	if payload.ImageURL != "" && payload.Question != "" && payload.AnalysisID != "" {
		return Intent{
			Kind:       IntentShowLegacyResult,
			AnalysisID: payload.AnalysisID,
			Result:     syntheticResult(payload),
		}
	}

	if payload.AnalysisID != "" {
		return Intent{
			Kind:       IntentOpenAnalysis,
			AnalysisID: payload.AnalysisID,
		}
	}

	return Intent{Kind: IntentDiscard}
}

func usableIdentifier(id string) bool {
	return len(id) > minIdentifierLength
}

// syntheticResult builds a displayable result from a legacy payload
// that carries the analysis inline instead of referencing a stored one.
func syntheticResult(payload *Payload) *conversation.AnalysisResult {
	appName := payload.AppName
	if appName == "" {
		appName = "푸시 분석 요청"
	}
	return &conversation.AnalysisResult{
		ID:            payload.AnalysisID,
		Timestamp:     time.Now(),
		Summary:       "질문: " + payload.Question,
		Objects:       []conversation.DetectedObject{},
		Confidence:    1.0,
		ScreenshotURL: payload.ImageURL,
		AppName:       appName,
	}
}
