// Package metrics provides per-operation metrics collection.
//
// The Collector accumulates counters during a single compression. It is a
// leaf package with no internal dependencies. Policy counters are absorbed
// from policy stats at completion rather than recorded live, avoiding
// double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Files
	FilesProcessed  int64
	FilesTranscoded int64
	FilesKept       int64
	FilesFailed     int64

	// Execution contexts
	ContextsSpawned   int64
	ContextsCompleted int64
	ContextsCrashed   int64
	FrameDecodeErrors int64

	// Sizes
	BytesIn  int64
	BytesOut int64

	// Dimensions (informational, set at construction)
	Format  string
	Quality int
	Workers int
	OpID    string
}

// Collector accumulates metrics during a single compression operation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe
// so callers never have to guard against an absent collector.
type Collector struct {
	mu sync.Mutex

	filesProcessed  int64
	filesTranscoded int64
	filesKept       int64
	filesFailed     int64

	contextsSpawned   int64
	contextsCompleted int64
	contextsCrashed   int64
	frameDecodeErrors int64

	bytesIn  int64
	bytesOut int64

	format  string
	quality int
	workers int
	opID    string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(format string, quality, workers int, opID string) *Collector {
	return &Collector{
		format:  format,
		quality: quality,
		workers: workers,
		opID:    opID,
	}
}

// IncFileProcessed records one retired file (success or failure).
func (c *Collector) IncFileProcessed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesProcessed++
	c.mu.Unlock()
}

// IncFileFailed records one per-file transcode failure.
func (c *Collector) IncFileFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesFailed++
	c.mu.Unlock()
}

// IncContextSpawned records one execution context launch.
func (c *Collector) IncContextSpawned() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.contextsSpawned++
	c.mu.Unlock()
}

// IncContextCompleted records a context reaching batch_complete.
func (c *Collector) IncContextCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.contextsCompleted++
	c.mu.Unlock()
}

// IncContextCrashed records a context-level fatal fault.
func (c *Collector) IncContextCrashed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.contextsCrashed++
	c.mu.Unlock()
}

// IncFrameDecodeError records an undecodable inbound frame.
func (c *Collector) IncFrameDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.frameDecodeErrors++
	c.mu.Unlock()
}

// AbsorbPolicyStats folds policy counters in once, at completion.
func (c *Collector) AbsorbPolicyStats(transcoded, kept, bytesIn, bytesOut int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.filesTranscoded = transcoded
	c.filesKept = kept
	c.bytesIn = bytesIn
	c.bytesOut = bytesOut
	c.mu.Unlock()
}

// Snapshot returns a consistent copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		FilesProcessed:    c.filesProcessed,
		FilesTranscoded:   c.filesTranscoded,
		FilesKept:         c.filesKept,
		FilesFailed:       c.filesFailed,
		ContextsSpawned:   c.contextsSpawned,
		ContextsCompleted: c.contextsCompleted,
		ContextsCrashed:   c.contextsCrashed,
		FrameDecodeErrors: c.frameDecodeErrors,
		BytesIn:           c.bytesIn,
		BytesOut:          c.bytesOut,
		Format:            c.format,
		Quality:           c.quality,
		Workers:           c.workers,
		OpID:              c.opID,
	}
}
