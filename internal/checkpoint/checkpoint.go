// Package checkpoint persists backfill progress so an interrupted run can
// resume at the first day that has not completed.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"

	"github.com/omniaagent/crmsync/internal/errors"
)

// DefaultPath is the progress file written in the working directory.
const DefaultPath = "backfill-progress.json"

// Counters are the totals reported by one completed day.
type Counters struct {
	Received int64
	Created  int64
	Updated  int64
	Failed   int64
}

// Progress is the on-disk checkpoint.
type Progress struct {
	PipelineID            string   `json:"pipelineId"`
	StartDate             string   `json:"startDate"`
	EndDate               string   `json:"endDate"`
	CompletedDays         []string `json:"completedDays"`
	LastCompletedDate     *string  `json:"lastCompletedDate"`
	TotalRecordsProcessed int64    `json:"totalRecordsProcessed"`
	TotalCreated          int64    `json:"totalCreated"`
	TotalUpdated          int64    `json:"totalUpdated"`
	TotalFailed           int64    `json:"totalFailed"`
}

// New returns empty progress for a pipeline and [start, end) range.
func New(pipelineID, start, end string) *Progress {
	return &Progress{
		PipelineID:    pipelineID,
		StartDate:     start,
		EndDate:       end,
		CompletedDays: []string{},
	}
}

// Load reads path. A missing or unreadable file yields (nil, nil): the
// caller starts fresh.
func Load(path string) (*Progress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		GetLogger().Warn("progress file unreadable, starting fresh")
		return nil, nil
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		GetLogger().Warn("progress file is not valid JSON, starting fresh")
		return nil, nil
	}
	if p.CompletedDays == nil {
		p.CompletedDays = []string{}
	}
	return &p, nil
}

// Save writes p to path atomically.
func (p *Progress) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.New(err).
			Component("checkpoint").
			Category(errors.CategoryFileIO).
			Context("operation", "marshal").
			Build()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".progress-*.json")
	if err != nil {
		return fileErr(err, "create_temp", path)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fileErr(err, "write", path)
	}
	if err := tmp.Close(); err != nil {
		return fileErr(err, "close", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fileErr(err, "rename", path)
	}
	return nil
}

func fileErr(err error, op, path string) error {
	return errors.New(err).
		Component("checkpoint").
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("path", path).
		Build()
}

// Done reports whether day is already completed.
func (p *Progress) Done(day string) bool {
	return slices.Contains(p.CompletedDays, day)
}

// MarkDay records a completed day and adds its counters to the totals.
func (p *Progress) MarkDay(day string, c Counters) {
	if !p.Done(day) {
		p.CompletedDays = append(p.CompletedDays, day)
	}
	d := day
	p.LastCompletedDate = &d
	p.TotalRecordsProcessed += c.Received
	p.TotalCreated += c.Created
	p.TotalUpdated += c.Updated
	p.TotalFailed += c.Failed
}
