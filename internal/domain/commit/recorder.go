package commit

import (
	"fmt"

	"go.uber.org/zap"
)

// Recorder collects the ordered diagnostic log of one commit request. It is
// request-scoped and passed explicitly through the call chain, never shared
// across requests. Every line is mirrored to the structured logger; the
// collected lines are echoed in the HTTP response only when the caller
// explicitly asked for debug output. The write credential must never be
// recorded in full.
type Recorder struct {
	lg    *zap.Logger
	lines []string
}

// NewRecorder creates a Recorder mirroring to lg. A nil lg disables
// mirroring but still collects lines.
func NewRecorder(lg *zap.Logger) *Recorder {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Recorder{lg: lg}
}

// Logf appends a formatted line. Safe to call on a nil Recorder, which
// discards the line.
func (r *Recorder) Logf(format string, args ...any) {
	if r == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	r.lines = append(r.lines, line)
	r.lg.Debug(line)
}

// Lines returns the collected lines in order.
func (r *Recorder) Lines() []string {
	if r == nil {
		return nil
	}
	return r.lines
}
