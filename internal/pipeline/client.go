// Package pipeline drives the CRM's remote ingestion pipeline: it rewrites
// the pipeline's request window, triggers pulls and polls their logs. The
// pipeline's own fetch and transform engine is not reimplemented here.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/antonholmquist/jason"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/graphql"
)

// DefaultPipelineID is the Convoso call pipeline.
const DefaultPipelineID = "716afad6-a45a-4bdd-b8a4-0e64ed466bf8"

// Run log statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunLog is one ingestion log entry.
type RunLog struct {
	ID                   string
	Status               string
	TotalRecordsReceived int64
	RecordsCreated       int64
	RecordsUpdated       int64
	RecordsFailed        int64
	Errors               string
	CompletedAt          string
}

// Terminal reports whether the run has finished.
func (l RunLog) Terminal() bool {
	return l.Status == StatusCompleted || l.Status == StatusFailed
}

// API is the remote surface the controllers need.
type API interface {
	GetConfig(ctx context.Context, pipelineID string) (map[string]any, error)
	UpdateConfig(ctx context.Context, pipelineID string, cfg map[string]any) (map[string]any, error)
	Trigger(ctx context.Context, pipelineID string) (RunLog, error)
	Logs(ctx context.Context, pipelineID string) ([]RunLog, error)
}

// Client implements API over the CRM metadata GraphQL endpoint.
type Client struct {
	exec graphql.Executor
}

func NewClient(exec graphql.Executor) *Client {
	return &Client{exec: exec}
}

func pipelineErr(err error, op, pipelineID string) error {
	return errors.New(err).
		Component("pipeline").
		Category(errors.CategoryPipeline).
		Context("operation", op).
		Context("pipeline_id", pipelineID).
		Build()
}

// GetConfig returns the pipeline's sourceRequestConfig.
func (c *Client) GetConfig(ctx context.Context, pipelineID string) (map[string]any, error) {
	const q = `query IngestionPipeline($id: UUID!) {
  ingestionPipeline(id: $id) { id sourceRequestConfig }
}`
	data, err := c.exec.Query(ctx, q, map[string]any{"id": pipelineID})
	if err != nil {
		return nil, pipelineErr(err, "get_config", pipelineID)
	}
	cfg, err := configValue(data, "ingestionPipeline")
	if err != nil {
		return nil, pipelineErr(err, "get_config", pipelineID)
	}
	return cfg, nil
}

// UpdateConfig replaces the pipeline's sourceRequestConfig.
func (c *Client) UpdateConfig(ctx context.Context, pipelineID string, cfg map[string]any) (map[string]any, error) {
	const q = `mutation UpdateIngestionPipeline($input: UpdateIngestionPipelineInput!) {
  updateIngestionPipeline(input: $input) { id sourceRequestConfig }
}`
	input := map[string]any{
		"id":     pipelineID,
		"update": map[string]any{"sourceRequestConfig": cfg},
	}
	data, err := c.exec.Mutate(ctx, q, map[string]any{"input": input})
	if err != nil {
		return nil, pipelineErr(err, "update_config", pipelineID)
	}
	updated, err := configValue(data, "updateIngestionPipeline")
	if err != nil {
		return nil, pipelineErr(err, "update_config", pipelineID)
	}
	return updated, nil
}

// Trigger starts a pull and returns its log entry.
func (c *Client) Trigger(ctx context.Context, pipelineID string) (RunLog, error) {
	const q = `mutation TriggerIngestionPull($pipelineId: UUID!) {
  triggerIngestionPull(pipelineId: $pipelineId) { id status }
}`
	data, err := c.exec.Mutate(ctx, q, map[string]any{"pipelineId": pipelineID})
	if err != nil {
		return RunLog{}, pipelineErr(err, "trigger", pipelineID)
	}
	obj, err := data.GetObject("triggerIngestionPull")
	if err != nil {
		return RunLog{}, pipelineErr(fmt.Errorf("trigger returned no log: %w", err), "trigger", pipelineID)
	}
	return parseRunLog(obj), nil
}

// Logs returns the latest run logs, newest first.
func (c *Client) Logs(ctx context.Context, pipelineID string) ([]RunLog, error) {
	const q = `query IngestionLogs($pipelineId: UUID!) {
  ingestionLogs(pipelineId: $pipelineId, limit: 5) {
    id status totalRecordsReceived recordsCreated recordsUpdated recordsFailed errors completedAt
  }
}`
	data, err := c.exec.Query(ctx, q, map[string]any{"pipelineId": pipelineID})
	if err != nil {
		return nil, pipelineErr(err, "logs", pipelineID)
	}
	items, err := data.GetObjectArray("ingestionLogs")
	if err != nil {
		return nil, nil
	}
	logs := make([]RunLog, 0, len(items))
	for _, item := range items {
		logs = append(logs, parseRunLog(item))
	}
	return logs, nil
}

// configValue returns the sourceRequestConfig under field. A null config
// is returned as nil so it can be restored as null.
func configValue(data *jason.Object, field string) (map[string]any, error) {
	v, err := data.GetValue(field, "sourceRequestConfig")
	if err != nil {
		return nil, fmt.Errorf("%s has no sourceRequestConfig: %w", field, err)
	}
	if v.Null() == nil {
		return nil, nil
	}

	var raw []byte
	if s, err := v.String(); err == nil {
		// some deployments serialize the JSON column as a string
		raw = []byte(s)
	} else if _, err := v.Object(); err == nil {
		if raw, err = v.Marshal(); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("sourceRequestConfig is not an object")
	}

	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("sourceRequestConfig is not an object: %w", err)
	}
	return m, nil
}

func parseRunLog(obj *jason.Object) RunLog {
	var l RunLog
	l.ID, _ = obj.GetString("id")
	l.Status, _ = obj.GetString("status")
	l.TotalRecordsReceived, _ = obj.GetInt64("totalRecordsReceived")
	l.RecordsCreated, _ = obj.GetInt64("recordsCreated")
	l.RecordsUpdated, _ = obj.GetInt64("recordsUpdated")
	l.RecordsFailed, _ = obj.GetInt64("recordsFailed")
	l.CompletedAt, _ = obj.GetString("completedAt")
	l.Errors = errorsText(obj)
	return l
}

// errorsText flattens the log's errors column: strings as-is, anything
// else as compact JSON, null as "".
func errorsText(obj *jason.Object) string {
	v, err := obj.GetValue("errors")
	if err != nil || v.Null() == nil {
		return ""
	}
	if s, err := v.String(); err == nil {
		return s
	}
	b, err := v.Marshal()
	if err != nil {
		return ""
	}
	return string(b)
}
