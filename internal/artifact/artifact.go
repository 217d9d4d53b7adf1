// Package artifact persists per-stage output artifacts, addressable by
// (job, stage) and stable for the job's lifetime so interrupted runs can
// resume without re-paying for completed stages.
package artifact

import (
	"context"
	"fmt"
)

// Store reads and writes stage output artifacts. Put returns the reference
// recorded on the StageResult; Get and Exists take that reference back.
type Store interface {
	Put(ctx context.Context, jobID, stageID string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
}

// Ref is the canonical artifact location for a (job, stage) pair, used as a
// relative file path or object key depending on the backend.
func Ref(jobID, stageID string) string {
	return fmt.Sprintf("job_data/%s/stage_%s.txt", jobID, stageID)
}
