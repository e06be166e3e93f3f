package trace

import "context"

// Recorder receives API sub-call records. CollectorTrace satisfies it; the
// coordinator installs one into the context of each collector invocation so
// transport code can record calls without threading trace types through
// every signature.
type Recorder interface {
	RecordCall(APICall)
}

type recorderKeyType struct{}

var recorderKey recorderKeyType

// WithRecorder returns a context carrying the recorder.
func WithRecorder(ctx context.Context, rec Recorder) context.Context {
	return context.WithValue(ctx, recorderKey, rec)
}

// RecorderFrom extracts the recorder, or nil when absent.
func RecorderFrom(ctx context.Context) Recorder {
	rec, _ := ctx.Value(recorderKey).(Recorder)
	return rec
}

// Record appends the call to the context's recorder, if any. A missing
// recorder is not an error: tracing must never block collection.
func Record(ctx context.Context, call APICall) {
	if rec := RecorderFrom(ctx); rec != nil {
		rec.RecordCall(call)
	}
}
