package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the NM and SS roles.
// Use these keys consistently so log lines aggregate cleanly regardless of
// which role emitted them.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyOp     = "op"     // wire op name: CREATE, READ, WRITE_BEGIN, ...
	KeyStatus = "status" // numeric status code from pkg/wire
	KeyMsg    = "status_msg"

	KeyFile   = "file"
	KeyFolder = "folder"
	KeyUser   = "user"
	KeySSID   = "ss_id"

	KeySentenceIdx = "sentence_idx"
	KeyWordIndex   = "word_index"
	KeyTag         = "tag"

	KeyRemoteAddr = "remote_addr"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Op returns a slog.Attr for the wire op name.
func Op(op string) slog.Attr {
	return slog.String(KeyOp, op)
}

// Status returns a slog.Attr for the numeric status code.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for the human-readable status message.
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyMsg, msg)
}

// File returns a slog.Attr for a file path.
func File(f string) slog.Attr {
	return slog.String(KeyFile, f)
}

// Folder returns a slog.Attr for a folder path.
func Folder(f string) slog.Attr {
	return slog.String(KeyFolder, f)
}

// User returns a slog.Attr for a claimed username.
func User(u string) slog.Attr {
	return slog.String(KeyUser, u)
}

// SSID returns a slog.Attr for a storage-server node id.
func SSID(id string) slog.Attr {
	return slog.String(KeySSID, id)
}

// SentenceIdx returns a slog.Attr for a sentence index.
func SentenceIdx(i int) slog.Attr {
	return slog.Int(KeySentenceIdx, i)
}

// WordIndex returns a slog.Attr for a word index within a sentence.
func WordIndex(i int) slog.Attr {
	return slog.Int(KeyWordIndex, i)
}

// Tag returns a slog.Attr for a checkpoint tag.
func Tag(t string) slog.Attr {
	return slog.String(KeyTag, t)
}

// RemoteAddr returns a slog.Attr for a connection's remote address.
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
