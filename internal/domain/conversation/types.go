// Package conversation holds the session state machine that ties push
// routing, voice capture and backend chat turns into one flow.
package conversation

import (
	"time"
)

// IdentKind distinguishes the two backend identifier domains. The kind is
// carried explicitly; it is never inferred from the string's shape.
type IdentKind string

const (
	KindConversation IdentKind = "conversation"
	KindAnalysis     IdentKind = "analysis"
)

// Ident names either a server-side chat thread or a stored analysis.
type Ident struct {
	Kind  IdentKind
	Value string
}

func ConversationIdent(id string) Ident {
	return Ident{Kind: KindConversation, Value: id}
}

func AnalysisIdent(id string) Ident {
	return Ident{Kind: KindAnalysis, Value: id}
}

func (i Ident) IsZero() bool {
	return i.Value == ""
}

// BoundingBox locates a detected object within the source image.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectedObject is one recognized item in an analysis. Equality is
// structural; the value carries no identity of its own.
type DetectedObject struct {
	Name       string       `json:"name"`
	Confidence float64      `json:"confidence"`
	Position   *BoundingBox `json:"position,omitempty"`
}

// AnalysisResult is an immutable snapshot of one completed analysis.
type AnalysisResult struct {
	ID            string           `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	Summary       string           `json:"summary"`
	Objects       []DetectedObject `json:"objects"`
	Text          string           `json:"text,omitempty"`
	Confidence    float64          `json:"confidence"`
	ScreenshotURL string           `json:"screenshot_url,omitempty"`
	AppName       string           `json:"app_name,omitempty"`
}

// ChatResponse is the backend's reply to one chat turn.
type ChatResponse struct {
	Message        string     `json:"answer"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	AnalysisID     string     `json:"analysis_id,omitempty"`
	ConversationID string     `json:"conversation_id"`
}

// State is the session's exclusive mode. Only the session itself
// transitions it.
type State string

const (
	StateIdle          State = "idle"
	StateListening     State = "listening"
	StateAwaitingReply State = "awaiting_reply"
	StateDisplaying    State = "displaying"
)
