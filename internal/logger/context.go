package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context attached to the
// context.Context passed through a single NM or SS request.
type LogContext struct {
	TraceID    string    // OpenTelemetry trace ID
	SpanID     string    // OpenTelemetry span ID
	Op         string    // wire op name: CREATE, READ, WRITE_BEGIN, ...
	RemoteAddr string    // connection remote address
	User       string    // claimed username
	StartTime  time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(remoteAddr string) *LogContext {
	return &LogContext{
		RemoteAddr: remoteAddr,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:    lc.TraceID,
		SpanID:     lc.SpanID,
		Op:         lc.Op,
		RemoteAddr: lc.RemoteAddr,
		User:       lc.User,
		StartTime:  lc.StartTime,
	}
}

// WithOp returns a copy with the op set.
func (lc *LogContext) WithOp(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Op = op
	}
	return clone
}

// WithUser returns a copy with the claimed username set.
func (lc *LogContext) WithUser(user string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.User = user
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
