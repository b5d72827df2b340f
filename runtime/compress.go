package runtime

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/inkfold-io/rebind/epub"
	"github.com/inkfold-io/rebind/ipc"
	"github.com/inkfold-io/rebind/log"
	"github.com/inkfold-io/rebind/metrics"
	"github.com/inkfold-io/rebind/types"
)

// Options configures a single compression operation.
type Options struct {
	// Quality is the user-facing quality value, 1–100.
	Quality int
	// Format is the target image format.
	Format types.TargetFormat
	// Workers overrides the execution context count. Zero means clamp
	// available parallelism into [MinWorkers, MaxWorkers].
	Workers int
	// OnProgress, when set, receives completion percentage after every
	// retired file. Calls are serialized and non-decreasing.
	OnProgress ProgressFunc
	// Logger is the injected logging capability. Nil discards logs.
	Logger *log.Logger
	// Collector records operation metrics. Nil-safe.
	Collector *metrics.Collector
	// OpID identifies the operation in logs and the report. Generated
	// when empty.
	OpID string
}

// contextMsg is one inbound message from a context's reader goroutine.
// A non-nil err is a context-level fatal fault.
type contextMsg struct {
	index int
	frame any
	err   error
}

// spawnContext is indirected so tests can stand in faulty contexts.
var spawnContext = SpawnContext

// Compress re-encodes the images inside an EPUB archive and reassembles
// the container. It resolves exactly once: with the final encoded archive
// and its report, or with a single classified error. Per-file transcode
// failures fall back to the original bytes and never reject the call;
// context-level faults abort the whole operation with no partial result.
func Compress(ctx context.Context, archive []byte, opts Options) ([]byte, *Report, error) {
	start := time.Now()

	if opts.OpID == "" {
		opts.OpID = uuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	// Boundary validation: quality and format are checked before any work.
	if _, err := types.ParseTargetFormat(string(opts.Format)); err != nil {
		return nil, nil, WrapValidation("validate options", err)
	}
	if err := types.ValidateQuality(opts.Quality); err != nil {
		return nil, nil, WrapValidation("validate options", err)
	}

	input, err := epub.Decode(archive)
	if err != nil {
		return nil, nil, WrapValidation("decode archive", err)
	}

	// Seed the output manifest in input order: directories carry straight
	// over, file slots fill as results stream in. Seeding up front keeps
	// reassembly deterministic no matter which context finishes first.
	output := epub.NewManifest()
	var bytesIn int64
	files := input.Files()
	for _, e := range input.Entries() {
		if e.IsDir {
			output.Put(epub.Entry{Path: e.Path, IsDir: true})
		} else {
			output.Put(epub.Entry{Path: e.Path})
			bytesIn += int64(len(e.Data))
		}
	}

	progress := newProgressState(int64(len(files)))

	// Zero files: resolve immediately, no contexts spawned.
	if len(files) == 0 {
		if opts.OnProgress != nil {
			opts.OnProgress(100)
		}
		blob, err := epub.Encode(output)
		if err != nil {
			return nil, nil, WrapUnknown("encode archive", err)
		}
		report := buildReport(opts, input, progress, 0, 0, bytesIn, bytesIn, len(archive), len(blob), time.Since(start))
		return blob, report, nil
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	workers := ClampWorkers(opts.Workers)
	batches := PartitionPaths(paths, workers)

	logger.Info("dispatching batches", map[string]any{
		"files":   len(files),
		"workers": workers,
		"batches": len(batches),
	})

	// Buffered for every message any context can ever send, plus dispatch
	// and fault reports. Reader goroutines can therefore always run to
	// completion without a drain pass, even on the abort path.
	msgs := make(chan contextMsg, len(files)+3*len(batches))

	handles := make([]*ContextHandle, len(batches))
	for i, batch := range batches {
		h := spawnContext(ctx, i, logger)
		handles[i] = h
		opts.Collector.IncContextSpawned()

		frame := &ipc.BatchFrame{
			Type:    ipc.TypeBatch,
			Index:   i,
			Quality: opts.Quality,
			Format:  opts.Format,
			Files:   make([]ipc.FilePayload, len(batch)),
		}
		for j, p := range batch {
			e, _ := input.Get(p)
			frame.Files[j] = ipc.FilePayload{Path: p, Data: e.Data}
		}

		go func(h *ContextHandle, frame *ipc.BatchFrame) {
			if err := h.Dispatch(frame); err != nil {
				msgs <- contextMsg{index: h.Index(), err: err}
			}
		}(h, frame)

		go readContextFrames(h, msgs, opts.Collector)
	}

	// Fold loop: the only goroutine that touches progress and the output
	// manifest. Message delivery serializes all mutation.
	var transcoded int64
	bytesOut := bytesIn
	pending := make(map[string]bool, len(paths))
	for _, p := range paths {
		pending[p] = true
	}

	abort := func(index int, cause error) error {
		opts.Collector.IncContextCrashed()
		for _, h := range handles {
			if h.State() != StateCompleted {
				h.Crash(cause)
			}
		}
		logger.Error("aborting operation", map[string]any{
			"batch": index,
			"error": cause.Error(),
		})
		return WrapContextFault(fmt.Sprintf("context %d", index), cause)
	}

	remaining := len(batches)
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, abort(-1, err)
		}
		select {
		case <-ctx.Done():
			return nil, nil, abort(-1, ctx.Err())

		case m := <-msgs:
			if m.err != nil {
				return nil, nil, abort(m.index, m.err)
			}

			switch f := m.frame.(type) {
			case *ipc.FileResultFrame:
				if !pending[f.Path] {
					return nil, nil, abort(m.index, fmt.Errorf("unexpected result for %q", f.Path))
				}
				delete(pending, f.Path)
				output.Put(epub.Entry{Path: f.Path, Data: f.Data})
				if f.Transcoded {
					transcoded++
					orig, _ := input.Get(f.Path)
					bytesOut += int64(len(f.Data)) - int64(len(orig.Data))
				}
				progress.retire(false)
				opts.Collector.IncFileProcessed()
				if opts.OnProgress != nil {
					opts.OnProgress(progress.Percent())
				}

			case *ipc.FileErrorFrame:
				if !pending[f.Path] {
					return nil, nil, abort(m.index, fmt.Errorf("unexpected error for %q", f.Path))
				}
				delete(pending, f.Path)
				// A failed transcode never loses content: the original
				// bytes stand in for the file.
				orig, _ := input.Get(f.Path)
				output.Put(epub.Entry{Path: f.Path, Data: orig.Data})
				progress.retire(true)
				opts.Collector.IncFileProcessed()
				opts.Collector.IncFileFailed()
				logger.Warn("file transcode failed", map[string]any{
					"path":  f.Path,
					"error": f.Error,
				})
				if opts.OnProgress != nil {
					opts.OnProgress(progress.Percent())
				}

			case *ipc.BatchCompleteFrame:
				handles[m.index].Complete()
				opts.Collector.IncContextCompleted()
				remaining--
				logger.Debug("batch complete", map[string]any{
					"batch":     f.Index,
					"processed": f.Processed,
					"failed":    f.Failed,
				})

			default:
				return nil, nil, abort(m.index, fmt.Errorf("unexpected frame %T", m.frame))
			}
		}
	}

	if !progress.Done() {
		// All contexts reported batch_complete but files are missing: a
		// protocol violation, not a partial success.
		return nil, nil, abort(-1, fmt.Errorf("%d files unaccounted for", len(pending)))
	}

	successes := progress.Processed() - progress.Failed()
	opts.Collector.AbsorbPolicyStats(transcoded, successes-transcoded, bytesIn, bytesOut)

	blob, err := epub.Encode(output)
	if err != nil {
		return nil, nil, WrapUnknown("encode archive", err)
	}

	report := buildReport(opts, input, progress, transcoded, successes-transcoded, bytesIn, bytesOut, len(archive), len(blob), time.Since(start))
	logger.Info("operation complete", map[string]any{
		"files":      progress.Total(),
		"failed":     progress.Failed(),
		"transcoded": transcoded,
		"input":      len(archive),
		"output":     len(blob),
	})
	return blob, report, nil
}

// readContextFrames forwards one context's decoded frames into the
// orchestrator's message channel. Clean EOF before batch_complete, fatal
// frame errors, and undecodable frames all surface as context faults.
func readContextFrames(h *ContextHandle, msgs chan<- contextMsg, collector *metrics.Collector) {
	dec := h.Frames()
	completed := false
	for {
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			if !completed {
				msgs <- contextMsg{index: h.Index(), err: fmt.Errorf("stream ended before batch_complete")}
			}
			return
		}
		if err != nil {
			if completed {
				// Teardown after completion closes the pipe out from
				// under the decoder; not a fault.
				return
			}
			msgs <- contextMsg{index: h.Index(), err: err}
			return
		}

		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			collector.IncFrameDecodeError()
			msgs <- contextMsg{index: h.Index(), err: err}
			return
		}
		msgs <- contextMsg{index: h.Index(), frame: frame}

		if _, ok := frame.(*ipc.BatchCompleteFrame); ok {
			completed = true
			return
		}
	}
}
