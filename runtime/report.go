package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/inkfold-io/rebind/epub"
	"github.com/inkfold-io/rebind/metrics"
	"github.com/inkfold-io/rebind/types"
)

// Report is the structured JSON summary of one compression operation.
type Report struct {
	OpID    string              `json:"op_id"`
	Version string              `json:"version"`
	Outcome types.OutcomeStatus `json:"outcome"`

	Format  string `json:"format"`
	Quality int    `json:"quality"`
	Workers int    `json:"workers"`

	Entries int `json:"entries"`
	Files   int `json:"files"`
	Dirs    int `json:"dirs"`

	Processed  int64 `json:"processed"`
	Transcoded int64 `json:"transcoded"`
	Kept       int64 `json:"kept"`
	Failed     int64 `json:"failed"`

	PayloadBytesIn  int64 `json:"payload_bytes_in"`
	PayloadBytesOut int64 `json:"payload_bytes_out"`
	ArchiveBytesIn  int   `json:"archive_bytes_in"`
	ArchiveBytesOut int   `json:"archive_bytes_out"`

	DurationMs int64 `json:"duration_ms"`

	Metrics *metrics.Snapshot `json:"metrics,omitempty"`
}

// buildReport composes the report from the orchestrator's final state.
func buildReport(opts Options, input *epub.Manifest, progress *ProgressState,
	transcoded, kept, bytesIn, bytesOut int64, archiveIn, archiveOut int,
	duration time.Duration) *Report {

	report := &Report{
		OpID:            opts.OpID,
		Version:         types.Version,
		Outcome:         types.OutcomeSuccess,
		Format:          string(opts.Format),
		Quality:         opts.Quality,
		Workers:         ClampWorkers(opts.Workers),
		Entries:         input.Len(),
		Files:           len(input.Files()),
		Dirs:            len(input.Dirs()),
		Processed:       progress.Processed(),
		Transcoded:      transcoded,
		Kept:            kept,
		Failed:          progress.Failed(),
		PayloadBytesIn:  bytesIn,
		PayloadBytesOut: bytesOut,
		ArchiveBytesIn:  archiveIn,
		ArchiveBytesOut: archiveOut,
		DurationMs:      duration.Milliseconds(),
	}
	if opts.Collector != nil {
		snap := opts.Collector.Snapshot()
		report.Metrics = &snap
	}
	return report
}

// WriteReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteReport(report *Report, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		if _, err := os.Stderr.Write(data); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}
