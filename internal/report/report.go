// Package report renders cost summaries of completed jobs as xlsx
// workbooks for finance and capacity reviews.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"transcript-pipeline/internal/store"
)

const (
	jobsSheet   = "Jobs"
	stagesSheet = "Stages"
)

var jobsHeader = []interface{}{"Job ID", "Profile", "Filename", "Created", "Completed", "Cost (USD)"}
var stagesHeader = []interface{}{"Job ID", "Stage", "Model", "Provider", "Input Tokens", "Output Tokens", "Cost (USD)"}

// WriteCostReport renders every completed job, with per stage token and
// cost breakdowns, into w as an xlsx workbook.
func WriteCostReport(ctx context.Context, st *store.Store, w io.Writer) error {
	jobs, err := st.CompletedJobs(ctx)
	if err != nil {
		return fmt.Errorf("load completed jobs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", jobsSheet)
	if _, err := f.NewSheet(stagesSheet); err != nil {
		return err
	}

	if err := setRow(f, jobsSheet, 1, jobsHeader); err != nil {
		return err
	}
	if err := setRow(f, stagesSheet, 1, stagesHeader); err != nil {
		return err
	}

	var total float64
	stageRow := 2
	for i, job := range jobs {
		total += job.CostEstimate
		if err := setRow(f, jobsSheet, i+2, []interface{}{
			job.ID,
			job.ProfileID,
			job.Filename,
			job.CreatedAt.Format(time.RFC3339),
			formatCompleted(job.CompletedAt),
			job.CostEstimate,
		}); err != nil {
			return err
		}

		results, err := st.ListStageResults(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("load stage results for %s: %w", job.ID, err)
		}
		for _, sr := range results {
			if err := setRow(f, stagesSheet, stageRow, []interface{}{
				job.ID,
				sr.StageID,
				sr.ModelUsed,
				sr.Provider,
				sr.InputTokens,
				sr.OutputTokens,
				sr.CostEstimate,
			}); err != nil {
				return err
			}
			stageRow++
		}
	}

	// Grand total under the job list.
	totalRow := len(jobs) + 3
	if err := setRow(f, jobsSheet, totalRow, []interface{}{"Total", "", "", "", "", total}); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func formatCompleted(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
