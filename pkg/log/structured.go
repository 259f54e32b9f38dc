package log

import (
	"context"
	"time"

	"github.com/cropdesk/cropdesk/pkg/requestid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StructuredLogger logs operations as a sequence of steps ending in a
// success or an error, all carrying the same operation fields.
type StructuredLogger struct {
	name   string
	level  zapcore.Level
	fields []any
}

// NewDebugLogger logs steps and successes at debug level.
func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.DebugLevel}
}

// NewInfoLogger logs steps and successes at info level.
func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.InfoLevel}
}

// WithContext attaches the request id found in ctx.
func (l *StructuredLogger) WithContext(ctx context.Context) *StructuredLogger {
	out := &StructuredLogger{name: l.name, level: l.level, fields: append([]any{}, l.fields...)}
	if id := requestid.FromContext(ctx); id != "" {
		out.fields = append(out.fields, "request_id", id)
	}
	return out
}

func (l *StructuredLogger) Operation(name string) *OperationBuilder {
	return &OperationBuilder{logger: l, name: name, fields: append([]any{}, l.fields...)}
}

type OperationBuilder struct {
	logger *StructuredLogger
	name   string
	fields []any
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *OperationBuilder) WithStringPtr(key string, value *string) *OperationBuilder {
	if value != nil {
		b.fields = append(b.fields, key, *value)
	}
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, key, value)
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	return &OperationTracer{
		log:    zap.S().Named(b.logger.name).With(append([]any{"operation", b.name}, b.fields...)...),
		level:  b.logger.level,
		start:  time.Now(),
		fields: b.fields,
	}
}

type OperationTracer struct {
	log    *zap.SugaredLogger
	level  zapcore.Level
	start  time.Time
	fields []any
}

func (t *OperationTracer) Step(name string) *Event {
	return &Event{tracer: t, level: t.level, msg: "step", fields: []any{"step", name}}
}

func (t *OperationTracer) Success() *Event {
	return &Event{tracer: t, level: t.level, msg: "success", fields: []any{"duration", time.Since(t.start)}}
}

// Warn reports a failure that does not end the operation.
func (t *OperationTracer) Warn(err error) *Event {
	return &Event{tracer: t, level: zapcore.WarnLevel, msg: "warning", fields: []any{"error", err}}
}

func (t *OperationTracer) Error(err error) *Event {
	return &Event{tracer: t, level: zapcore.ErrorLevel, msg: "error", fields: []any{"error", err, "duration", time.Since(t.start)}}
}

type Event struct {
	tracer *OperationTracer
	level  zapcore.Level
	msg    string
	fields []any
}

func (e *Event) WithString(key, value string) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) WithInt(key string, value int) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) WithBool(key string, value bool) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) WithParam(key string, value any) *Event {
	e.fields = append(e.fields, key, value)
	return e
}

func (e *Event) Log() {
	switch e.level {
	case zapcore.ErrorLevel:
		e.tracer.log.Errorw(e.msg, e.fields...)
	case zapcore.WarnLevel:
		e.tracer.log.Warnw(e.msg, e.fields...)
	case zapcore.InfoLevel:
		e.tracer.log.Infow(e.msg, e.fields...)
	default:
		e.tracer.log.Debugw(e.msg, e.fields...)
	}
}
