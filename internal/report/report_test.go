package report

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"transcript-pipeline/internal/store"
	"transcript-pipeline/internal/types"
)

func seedCompletedJob(t *testing.T, st *store.Store, cost float64, stages ...types.StageResult) *types.Job {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	job := &types.Job{
		ID:           uuid.New().String(),
		ProfileID:    "meeting-notes",
		Filename:     "call.wav",
		Status:       types.JobStatusComplete,
		Priority:     types.DefaultPriority,
		CreatedAt:    now,
		CompletedAt:  &now,
		CostEstimate: cost,
	}
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	for i := range stages {
		stages[i].JobID = job.ID
		stages[i].Status = types.StageStatusComplete
		if err := st.UpsertStageResult(ctx, &stages[i]); err != nil {
			t.Fatalf("upsert stage result: %v", err)
		}
	}
	return job
}

// TestWriteCostReport builds a workbook over two completed jobs and checks
// both sheets carry the expected rows and the grand total.
func TestWriteCostReport(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	seedCompletedJob(t, st, 0.50,
		types.StageResult{StageID: "clean", ModelUsed: "deepseek-chat", Provider: "deepseek", InputTokens: 1000, OutputTokens: 500, CostEstimate: 0.25},
		types.StageResult{StageID: "summarise", ModelUsed: "deepseek-chat", Provider: "deepseek", InputTokens: 800, OutputTokens: 400, CostEstimate: 0.25},
	)
	seedCompletedJob(t, st, 0.25,
		types.StageResult{StageID: "clean", ModelUsed: "gpt-4o-mini", Provider: "openai", InputTokens: 500, OutputTokens: 100, CostEstimate: 0.25},
	)

	// A queued job must not appear in the report.
	if err := st.CreateJob(ctx, &types.Job{
		ID: uuid.New().String(), ProfileID: "meeting-notes", Filename: "pending.wav",
		Status: types.JobStatusQueued, Priority: types.DefaultPriority, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create queued job: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCostReport(ctx, st, &buf); err != nil {
		t.Fatalf("WriteCostReport: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	jobs, err := f.GetRows(jobsSheet)
	if err != nil {
		t.Fatalf("read jobs sheet: %v", err)
	}
	// Header, two jobs, blank spacer, total.
	if len(jobs) != 5 {
		t.Fatalf("jobs sheet rows = %d, want 5", len(jobs))
	}
	if jobs[0][0] != "Job ID" {
		t.Errorf("jobs header = %v", jobs[0])
	}
	totalRow := jobs[len(jobs)-1]
	if totalRow[0] != "Total" {
		t.Fatalf("last row = %v, want grand total", totalRow)
	}
	if got := totalRow[len(totalRow)-1]; got != "0.75" {
		t.Errorf("grand total = %q, want 0.75", got)
	}

	stages, err := f.GetRows(stagesSheet)
	if err != nil {
		t.Fatalf("read stages sheet: %v", err)
	}
	if len(stages) != 4 {
		t.Fatalf("stages sheet rows = %d, want 4 (header + 3 stages)", len(stages))
	}
	if stages[1][1] != "clean" || stages[2][1] != "summarise" {
		t.Errorf("stage rows out of order: %v", stages[1:])
	}
}
