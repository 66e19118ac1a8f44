// Package history defines the audit sink for executed query attempts.
// Writes are best-effort by design: the orchestrator discards the sink's
// error so a history outage never fails a user-visible query.
package history

import (
	"context"
	"time"
)

// PreviewRowLimit caps how many result rows are serialized into a history
// record.
const PreviewRowLimit = 50

type Entry struct {
	ID         string
	Question   string
	SQL        string
	RowPreview []byte
	ExecutedAt time.Time
}

type Sink interface {
	Record(ctx context.Context, entry Entry) error
}
