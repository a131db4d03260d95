package metrics

import "time"

// Recorder is what drivers report to. *MigrationMetrics implements it and
// Nop stands in when metrics are off.
type Recorder interface {
	RecordOutcome(kind, outcome string)
	RecordLookup(entity, result string)
	RecordPipelineDay(outcome string)
	ObserveWrite(d time.Duration, err error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordOutcome(string, string)      {}
func (Nop) RecordLookup(string, string)       {}
func (Nop) RecordPipelineDay(string)          {}
func (Nop) ObserveWrite(time.Duration, error) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

var (
	_ Recorder = (*MigrationMetrics)(nil)
	_ Recorder = Nop{}
)
