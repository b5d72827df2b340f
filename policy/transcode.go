// Package policy implements the per-file image transcode policy: decide
// whether a file should be re-encoded and whether the re-encoded bytes are
// worth keeping.
//
// Policy rules:
//   - Only files whose extension maps to an image kind are candidates.
//   - Paths containing "cover" (any case) are never transcoded; readers
//     rely on cover-detection conventions that a format change would break.
//   - Re-encoded bytes are kept only when strictly smaller than the
//     original (ties favor the original).
//   - A decode or encode failure is a per-file failure, never fatal to the
//     batch.
package policy

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/inkfold-io/rebind/imaging"
	"github.com/inkfold-io/rebind/types"
)

// Kind classifies a path by its extension.
type Kind string

const (
	KindJPEG  Kind = "jpeg"
	KindPNG   Kind = "png"
	KindWebP  Kind = "webp"
	KindOther Kind = "other"
)

// IsImage returns true for the image kinds eligible for transcoding.
func (k Kind) IsImage() bool {
	return k != KindOther
}

// kindByExt is the fixed extension mapping. Anything absent is non-image.
var kindByExt = map[string]Kind{
	".jpg":  KindJPEG,
	".jpeg": KindJPEG,
	".png":  KindPNG,
	".webp": KindWebP,
}

// KindForPath infers the content kind from the path's extension.
func KindForPath(p string) Kind {
	ext := strings.ToLower(path.Ext(p))
	if k, ok := kindByExt[ext]; ok {
		return k
	}
	return KindOther
}

// IsCover reports whether the path names a cover image. Matching is a
// case-insensitive substring test over the whole path, mirroring the
// conventions of reader apps that look for "cover" anywhere in the name.
func IsCover(p string) bool {
	return strings.Contains(strings.ToLower(p), "cover")
}

// Outcome is the result of applying the policy to exactly one file.
// Consumed exactly once by container rebuild.
type Outcome struct {
	// Path is the archive path of the file.
	Path string
	// Bytes is what should be stored at Path. On failure this is nil;
	// the orchestrator falls back to the original bytes.
	Bytes []byte
	// Transcoded is true when Bytes holds re-encoded data rather than
	// the original.
	Transcoded bool
	// Failed is true when decode or encode raised an error.
	Failed bool
	// Err describes the failure. Nil unless Failed.
	Err error
}

// Stats are the policy's observability counters. Snapshot semantics: the
// returned value is consistent at a point in time.
type Stats struct {
	// TotalFiles is the number of files the policy has seen.
	TotalFiles int64
	// Transcoded is the number of files where the re-encode won.
	Transcoded int64
	// KeptOriginal is the number of image files where the original won.
	KeptOriginal int64
	// Skipped is the number of non-image or cover files passed through.
	Skipped int64
	// Failed is the number of files whose transcode failed.
	Failed int64
	// BytesIn and BytesOut track payload sizes across all files.
	BytesIn  int64
	BytesOut int64
}

// Transcoder applies the policy for a fixed target format and quality.
// Safe for concurrent use; a single Transcoder serves a whole batch.
type Transcoder struct {
	format  types.TargetFormat
	quality float64

	mu    sync.Mutex
	stats Stats
}

// NewTranscoder validates the quality and format at the boundary and
// returns a policy instance. Quality is the user-facing [1,100] scale,
// mapped linearly onto the codec's [0,1] scale.
func NewTranscoder(format types.TargetFormat, quality int) (*Transcoder, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("invalid target format %q", format)
	}
	if err := types.ValidateQuality(quality); err != nil {
		return nil, err
	}
	return &Transcoder{
		format:  format,
		quality: float64(quality) / float64(types.QualityMax),
	}, nil
}

// Format returns the configured target format.
func (t *Transcoder) Format() types.TargetFormat {
	return t.format
}

// Apply runs the policy on one file and returns its outcome.
//
// Idempotent: applying it to its own output (already smaller or equal and
// in the target format) never grows the file and is safe to repeat.
func (t *Transcoder) Apply(ctx context.Context, filePath string, data []byte) Outcome {
	if err := ctx.Err(); err != nil {
		return t.fail(filePath, data, err)
	}

	if !KindForPath(filePath).IsImage() || IsCover(filePath) {
		t.record(func(s *Stats) {
			s.TotalFiles++
			s.Skipped++
			s.BytesIn += int64(len(data))
			s.BytesOut += int64(len(data))
		})
		return Outcome{Path: filePath, Bytes: data}
	}

	img, _, err := imaging.Decode(data)
	if err != nil {
		return t.fail(filePath, data, err)
	}

	encoded, err := imaging.Encode(img, t.format, t.quality)
	if err != nil {
		return t.fail(filePath, data, err)
	}

	// Keep-smaller: strictly less, ties favor the original.
	if len(encoded) < len(data) {
		t.record(func(s *Stats) {
			s.TotalFiles++
			s.Transcoded++
			s.BytesIn += int64(len(data))
			s.BytesOut += int64(len(encoded))
		})
		return Outcome{Path: filePath, Bytes: encoded, Transcoded: true}
	}

	t.record(func(s *Stats) {
		s.TotalFiles++
		s.KeptOriginal++
		s.BytesIn += int64(len(data))
		s.BytesOut += int64(len(data))
	})
	return Outcome{Path: filePath, Bytes: data}
}

// Stats returns a snapshot of the policy counters.
func (t *Transcoder) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Transcoder) fail(filePath string, data []byte, err error) Outcome {
	t.record(func(s *Stats) {
		s.TotalFiles++
		s.Failed++
		s.BytesIn += int64(len(data))
		s.BytesOut += int64(len(data))
	})
	return Outcome{
		Path:   filePath,
		Failed: true,
		Err:    fmt.Errorf("transcode %q: %w", filePath, err),
	}
}

func (t *Transcoder) record(fn func(*Stats)) {
	t.mu.Lock()
	fn(&t.stats)
	t.mu.Unlock()
}
