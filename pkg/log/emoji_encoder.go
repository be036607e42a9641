package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var emojiMap = map[string]string{
	"startup":      "🚀",
	"request":      "🌐",
	"slow_request": "🐌",
	"dependency":   "🔗",
	"breaker":      "🧯",
	"event":        "📨",
	"database":     "💾",
	"cache":        "📦",
	"scheduler":    "⏰",
	"success":      "✅",
}

func statusEmoji(status int64) string {
	switch {
	case status >= 500:
		return "🔴"
	case status >= 400:
		return "🟠"
	case status >= 300:
		return "🟡"
	default:
		return "🟢"
	}
}

func levelEmoji(level zapcore.Level) string {
	switch {
	case level >= zapcore.ErrorLevel:
		return "❌"
	case level == zapcore.WarnLevel:
		return "⚠️"
	case level == zapcore.DebugLevel:
		return "🐛"
	default:
		return "ℹ️"
	}
}

// EmojiConsoleEncoder is a console encoder that prefixes the message with an
// emoji chosen from the HTTP status, the "type" field, or the level.
type EmojiConsoleEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder returns a console encoder for cfg.
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// EncodeEntry implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	entry.Message = pickEmoji(entry.Level, fields) + " " + entry.Message
	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: enc.Encoder.Clone()}
}

func pickEmoji(level zapcore.Level, fields []zapcore.Field) string {
	var logType string
	var status int64
	for _, f := range fields {
		switch {
		case f.Key == "type" && f.Type == zapcore.StringType:
			logType = f.String
		case f.Key == "status" && (f.Type == zapcore.Int64Type || f.Type == zapcore.Int32Type):
			status = f.Integer
		}
	}

	if status > 0 {
		return statusEmoji(status)
	}
	if e, ok := emojiMap[logType]; ok {
		return e
	}
	return levelEmoji(level)
}
