// Package adapter defines the notification boundary for finished
// operations.
//
// Adapters publish compression completion events to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/inkfold-io/rebind/runtime"
	"github.com/inkfold-io/rebind/types"
)

// CompressionCompletedEvent is the payload published when an operation
// finishes.
type CompressionCompletedEvent struct {
	EventType string `json:"event_type"` // always "compression_completed"
	OpID      string `json:"op_id"`
	Version   string `json:"version"`
	Outcome   string `json:"outcome"`

	Format  string `json:"format"`
	Quality int    `json:"quality"`
	Workers int    `json:"workers"`

	Files      int64 `json:"files"`
	Transcoded int64 `json:"transcoded"`
	Failed     int64 `json:"failed"`

	ArchiveBytesIn  int   `json:"archive_bytes_in"`
	ArchiveBytesOut int   `json:"archive_bytes_out"`

	OutputPath string `json:"output_path"`
	Timestamp  string `json:"timestamp"` // ISO 8601
	DurationMs int64  `json:"duration_ms"`
}

// EventFromReport builds the completion event from an operation report.
func EventFromReport(report *runtime.Report, outputPath string) *CompressionCompletedEvent {
	return &CompressionCompletedEvent{
		EventType:       "compression_completed",
		OpID:            report.OpID,
		Version:         types.Version,
		Outcome:         string(report.Outcome),
		Format:          report.Format,
		Quality:         report.Quality,
		Workers:         report.Workers,
		Files:           int64(report.Files),
		Transcoded:      report.Transcoded,
		Failed:          report.Failed,
		ArchiveBytesIn:  report.ArchiveBytesIn,
		ArchiveBytesOut: report.ArchiveBytesOut,
		OutputPath:      outputPath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationMs:      report.DurationMs,
	}
}

// Adapter publishes compression completion events to a downstream system.
// Implementations must be safe for single-use per operation.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *CompressionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
