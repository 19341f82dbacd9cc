// Package announce renders text to the user out-of-band through a speech
// channel. Delivery is fire-and-forget: nothing here ever blocks or fails
// the conversation flow.
package announce

// Priority distinguishes routine announcements from screen-change ones.
// Screen-change announcements signal that new content became visible and
// may preempt queued routine speech.
type Priority int

const (
	PriorityRoutine Priority = iota
	PriorityScreenChanged
)

func (p Priority) String() string {
	if p == PriorityScreenChanged {
		return "screen_changed"
	}
	return "routine"
}

// Announcer renders one text fragment. Implementations log failures and
// never report them to the caller.
type Announcer interface {
	Announce(text string, priority Priority)
}

// Fixed phrases mirrored from the product's accessibility copy.
const (
	phraseAnalysisDone     = "분석되었습니다. "
	phraseRecordingStarted = "음성 인식을 시작합니다. 질문해 주세요."
	phraseRecordingStopped = "음성 인식이 완료되었습니다."
	phraseReplyFailed      = "응답을 가져오지 못했습니다. 다시 시도해 주세요."
	phraseCaptureFailed    = "음성 인식에 실패했습니다. 다시 시도해 주세요."
	phraseLoadFailed       = "분석 결과를 불러오지 못했습니다."
)

// AnnounceAnalysisResult speaks a completed analysis with the fixed prefix.
func AnnounceAnalysisResult(a Announcer, content string) {
	a.Announce(phraseAnalysisDone+content, PriorityScreenChanged)
}

// AnnounceChatResponse speaks a chatbot reply.
func AnnounceChatResponse(a Announcer, content string) {
	a.Announce(content, PriorityRoutine)
}

// AnnounceRecordingState speaks the capture start/stop transition.
func AnnounceRecordingState(a Announcer, recording bool) {
	if recording {
		a.Announce(phraseRecordingStarted, PriorityScreenChanged)
		return
	}
	a.Announce(phraseRecordingStopped, PriorityScreenChanged)
}

func AnnounceReplyFailure(a Announcer) {
	a.Announce(phraseReplyFailed, PriorityRoutine)
}

func AnnounceCaptureFailure(a Announcer) {
	a.Announce(phraseCaptureFailed, PriorityRoutine)
}

func AnnounceLoadFailure(a Announcer) {
	a.Announce(phraseLoadFailed, PriorityRoutine)
}

// Nop discards every announcement. Used when speech output is disabled.
type Nop struct{}

func (Nop) Announce(string, Priority) {}
