package logger

import "github.com/arloliu/seqtx/types"

// fieldLogger prepends fixed key/value pairs to every message.
type fieldLogger struct {
	base   types.Logger
	fields []any
}

var _ types.Logger = (*fieldLogger)(nil)

// With returns a logger that adds keysAndValues to every message logged through l.
//
// Processors use it to tag their output with the job and processor ids.
// Nesting With calls accumulates fields in order.
//
// Parameters:
//   - l: Base logger; nil yields a NopLogger
//   - keysAndValues: Fixed fields
//
// Returns:
//   - types.Logger: Scoped logger
func With(l types.Logger, keysAndValues ...any) types.Logger {
	if l == nil {
		return NewNop()
	}
	if len(keysAndValues) == 0 {
		return l
	}

	if fl, ok := l.(*fieldLogger); ok {
		merged := make([]any, 0, len(fl.fields)+len(keysAndValues))
		merged = append(merged, fl.fields...)
		merged = append(merged, keysAndValues...)

		return &fieldLogger{base: fl.base, fields: merged}
	}

	return &fieldLogger{base: l, fields: append([]any(nil), keysAndValues...)}
}

func (f *fieldLogger) join(kv []any) []any {
	out := make([]any, 0, len(f.fields)+len(kv))
	out = append(out, f.fields...)

	return append(out, kv...)
}

func (f *fieldLogger) Debug(msg string, keysAndValues ...any) {
	f.base.Debug(msg, f.join(keysAndValues)...)
}

func (f *fieldLogger) Info(msg string, keysAndValues ...any) {
	f.base.Info(msg, f.join(keysAndValues)...)
}

func (f *fieldLogger) Warn(msg string, keysAndValues ...any) {
	f.base.Warn(msg, f.join(keysAndValues)...)
}

func (f *fieldLogger) Error(msg string, keysAndValues ...any) {
	f.base.Error(msg, f.join(keysAndValues)...)
}
