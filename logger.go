package dnstraverse

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// logContext is an elapsed-time line logger, the same shape as the
// teacher's query.logf: timestamped by milliseconds since the run started,
// indented by Referral depth, writing nothing when the writer is nil.
type logContext struct {
	writer io.Writer
	runID  uuid.UUID
	start  time.Time
}

func newLogContext(w io.Writer) logContext {
	return logContext{writer: w, runID: uuid.New(), start: time.Now()}
}

func (l *logContext) logf(depth int, format string, args ...any) {
	if l == nil || l.writer == nil {
		return
	}
	elapsed := time.Since(l.start).Milliseconds()
	indent := strings.Repeat("  ", depth)
	_, _ = fmt.Fprintf(l.writer, "[%6dms] [%s] %s%s\n", elapsed, l.runID.String()[:8], indent, fmt.Sprintf(format, args...))
}

func (l *logContext) logReferral(r *Referral, stage string) {
	if l == nil || l.writer == nil {
		return
	}
	l.logf(r.Depth, "refid=%s stage=%s server=%s query=%s bailiwick=%s state=%s", r.RefID, stage, r.ServerName, r.Query, r.Bailiwick, r.State)
}
