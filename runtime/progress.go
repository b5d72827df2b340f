package runtime

// ProgressFunc receives completion percentage in [0,100]. Invocations are
// serialized and non-decreasing; the final call delivers exactly 100.
type ProgressFunc func(percent float64)

// ProgressState holds the operation-wide counters. It is owned exclusively
// by the orchestrator goroutine and mutated only in response to inbound
// messages, so no locking is needed: message delivery serializes access by
// construction. Execution contexts never see this state.
type ProgressState struct {
	total     int64
	processed int64
	failed    int64
}

func newProgressState(total int64) *ProgressState {
	return &ProgressState{total: total}
}

// retire records one finished file. Failed files still retire the progress
// counter; processed never exceeds total.
func (p *ProgressState) retire(failed bool) {
	if p.processed < p.total {
		p.processed++
	}
	if failed {
		p.failed++
	}
}

// Percent returns completion in [0,100]. A zero-file operation is complete
// by definition.
func (p *ProgressState) Percent() float64 {
	if p.total == 0 {
		return 100
	}
	return float64(p.processed) / float64(p.total) * 100
}

// Done reports whether every file has retired.
func (p *ProgressState) Done() bool {
	return p.processed == p.total
}

// Total returns the number of files in the operation.
func (p *ProgressState) Total() int64 { return p.total }

// Processed returns the number of retired files.
func (p *ProgressState) Processed() int64 { return p.processed }

// Failed returns the number of per-file failures.
func (p *ProgressState) Failed() int64 { return p.failed }
