package runtime

import "runtime"

// Worker pool bounds. Never fewer than two contexts, so one faulting
// context cannot serialize the whole operation behind it; never more than
// eight, past which transcode throughput stops scaling on typical archives.
const (
	MinWorkers = 2
	MaxWorkers = 8
)

// ClampWorkers clamps a requested worker count into [MinWorkers,
// MaxWorkers]. Non-positive values mean "use available parallelism".
func ClampWorkers(n int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// PartitionPaths splits an ordered file path list into contiguous, roughly
// equal batches, one per execution context. Batch size is ceil(n/workers);
// the final batch may be smaller. Batches are disjoint and their union is
// the input list, in order. Zero paths produce zero batches.
func PartitionPaths(paths []string, workers int) [][]string {
	if len(paths) == 0 || workers < 1 {
		return nil
	}

	size := (len(paths) + workers - 1) / workers
	batches := make([][]string, 0, workers)
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		batches = append(batches, paths[start:end])
	}
	return batches
}
