package runtime

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/inkfold-io/rebind/ipc"
	"github.com/inkfold-io/rebind/log"
	"github.com/inkfold-io/rebind/policy"
)

// ContextState is the lifecycle of one execution context:
// spawned → active → {completed, crashed}.
type ContextState int32

const (
	StateSpawned ContextState = iota
	StateActive
	StateCompleted
	StateCrashed
)

// ContextHandle is the orchestrator's grip on one execution context. The
// context runs in full isolation: it only ever sees the copies of batch
// bytes delivered in its batch frame, and only speaks through its pipes.
// A handle never outlives one Compress call.
type ContextHandle struct {
	index int

	// in is written once by the orchestrator (the batch frame).
	in *io.PipeWriter
	// out delivers the context's result frames to the orchestrator.
	out *io.PipeReader

	state atomic.Int32
}

// SpawnContext launches an execution context and returns its handle.
// The context waits for its single batch frame, transcodes every file in
// the batch concurrently, streams results back, and terminates with a
// batch_complete frame.
func SpawnContext(ctx context.Context, index int, logger *log.Logger) *ContextHandle {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := &ContextHandle{index: index, in: inW, out: outR}
	h.state.Store(int32(StateSpawned))

	go runContext(ctx, inR, outW, logger)
	return h
}

// Index returns the batch index this context serves.
func (h *ContextHandle) Index() int {
	return h.index
}

// State returns the current lifecycle state.
func (h *ContextHandle) State() ContextState {
	return ContextState(h.state.Load())
}

// Dispatch sends the context its batch frame, exactly once, then closes
// the dispatch channel. Blocks until the context has consumed the frame.
func (h *ContextHandle) Dispatch(frame *ipc.BatchFrame) error {
	// Terminal states are sticky: a context crashed before its dispatch
	// lands must not flip back to active.
	h.state.CompareAndSwap(int32(StateSpawned), int32(StateActive))
	enc := ipc.NewFrameEncoder(h.in)
	if err := enc.WriteFrame(frame); err != nil {
		return WrapContextFault("dispatch", err)
	}
	return h.in.Close()
}

// Frames returns a decoder over the context's result stream.
func (h *ContextHandle) Frames() *ipc.FrameDecoder {
	return ipc.NewFrameDecoder(h.out)
}

// Complete marks the context completed and tears down its pipes.
func (h *ContextHandle) Complete() {
	h.state.Store(int32(StateCompleted))
	h.teardown(nil)
}

// Crash marks the context crashed and tears down its pipes. Any blocked
// context write fails immediately, unwinding the context goroutine.
func (h *ContextHandle) Crash(err error) {
	h.state.Store(int32(StateCrashed))
	if err == nil {
		err = ErrExecutionContext
	}
	h.teardown(err)
}

func (h *ContextHandle) teardown(err error) {
	if err != nil {
		_ = h.in.CloseWithError(err)
		_ = h.out.CloseWithError(err)
		return
	}
	_ = h.in.Close()
	_ = h.out.Close()
}

// applyTranscode indirects the per-file policy call so tests can inject
// faults into a live context.
var applyTranscode = func(ctx context.Context, tr *policy.Transcoder, path string, data []byte) policy.Outcome {
	return tr.Apply(ctx, path, data)
}

// runContext is the execution context body. It owns nothing but its pipes
// and the decoded copies of its batch; all results leave as frames.
func runContext(ctx context.Context, in *io.PipeReader, out *io.PipeWriter, logger *log.Logger) {
	defer in.Close()
	defer func() {
		// A panic inside the context surfaces as a stream fault, never as a
		// process crash; the orchestrator rejects the whole operation.
		if r := recover(); r != nil {
			_ = out.CloseWithError(fmt.Errorf("context panic: %v", r))
		}
	}()

	dec := ipc.NewFrameDecoder(in)
	payload, err := dec.ReadFrame()
	if err != nil {
		_ = out.CloseWithError(fmt.Errorf("read batch frame: %w", err))
		return
	}
	frame, err := ipc.DecodeFrame(payload)
	if err != nil {
		_ = out.CloseWithError(fmt.Errorf("decode batch frame: %w", err))
		return
	}
	batch, ok := frame.(*ipc.BatchFrame)
	if !ok {
		_ = out.CloseWithError(fmt.Errorf("unexpected dispatch frame %T", frame))
		return
	}

	// The policy is constructed from the frame's own fields: configuration
	// travels in the message, not through shared memory.
	transcoder, err := policy.NewTranscoder(batch.Format, batch.Quality)
	if err != nil {
		_ = out.CloseWithError(fmt.Errorf("batch %d policy: %w", batch.Index, err))
		return
	}

	logger.Debug("batch accepted", map[string]any{
		"batch": batch.Index,
		"files": len(batch.Files),
	})

	// All files in the batch transcode concurrently; completion order is
	// whatever the codec yields. The buffered channel means no file
	// goroutine ever blocks on the writer loop.
	outcomes := make(chan policy.Outcome, len(batch.Files))
	faults := make(chan error, len(batch.Files))
	for _, f := range batch.Files {
		go func(f ipc.FilePayload) {
			defer func() {
				if r := recover(); r != nil {
					faults <- fmt.Errorf("transcode %s: panic: %v", f.Path, r)
				}
			}()
			outcomes <- applyTranscode(ctx, transcoder, f.Path, f.Data)
		}(f)
	}

	enc := ipc.NewFrameEncoder(out)
	var processed, failed int64
	for range batch.Files {
		var o policy.Outcome
		select {
		case err := <-faults:
			_ = out.CloseWithError(err)
			return
		case o = <-outcomes:
		}
		processed++

		var werr error
		if o.Failed {
			failed++
			werr = enc.WriteFrame(&ipc.FileErrorFrame{
				Type:  ipc.TypeFileError,
				Path:  o.Path,
				Error: o.Err.Error(),
			})
		} else {
			werr = enc.WriteFrame(&ipc.FileResultFrame{
				Type:       ipc.TypeFileResult,
				Path:       o.Path,
				Data:       o.Bytes,
				Transcoded: o.Transcoded,
			})
		}
		if werr != nil {
			// Orchestrator tore us down mid-batch; nothing left to report.
			_ = out.CloseWithError(werr)
			return
		}
	}

	complete := &ipc.BatchCompleteFrame{
		Type:      ipc.TypeBatchComplete,
		Index:     batch.Index,
		Processed: processed,
		Failed:    failed,
	}
	if err := enc.WriteFrame(complete); err != nil {
		_ = out.CloseWithError(err)
		return
	}
	_ = out.Close()
}
