package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

// moduleColors maps known module tags to their terminal colors.
var moduleColors = map[string]string{
	"[Gateway]": "\x1b[94m",
	"[Session]": "\x1b[96m",
	"[Push]":    "\x1b[95m",
	"[Router]":  "\x1b[97m",
	"[ASR]":     "\x1b[35m",
	"[TTS]":     "\x1b[95m",
	"[Device]":  "\x1b[92m",
	"[Storage]": "\x1b[90m",
}

// textHandler renders colored single-line log records.
type textHandler struct {
	writer io.Writer
	level  slog.Level
	mu     sync.Mutex
}

func newTextHandler(w io.Writer, level slog.Level) *textHandler {
	return &textHandler{writer: w, level: level}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeStr := r.Time.Format("2006-01-02 15:04:05.000")

	var levelColor string
	switch r.Level {
	case slog.LevelDebug:
		levelColor = colorDebug
	case slog.LevelInfo:
		levelColor = colorInfo
	case slog.LevelWarn:
		levelColor = colorWarn
	case slog.LevelError:
		levelColor = colorError
	default:
		levelColor = colorReset
	}

	msg := r.Message
	for tag, color := range moduleColors {
		if strings.HasPrefix(msg, tag) {
			msg = color + tag + colorReset + msg[len(tag):]
			break
		}
	}

	line := fmt.Sprintf("%s%s%s %s[%s]%s %s\n",
		colorTime, timeStr, colorReset,
		levelColor, r.Level.String(), colorReset,
		msg)
	_, err := io.WriteString(h.writer, line)
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *textHandler) WithGroup(_ string) slog.Handler {
	return h
}
