// Package store persists finished archives. A Sink accepts the encoded
// output blob plus optional sidecar files (the JSON report) and writes
// them to a destination: the local filesystem or an S3-compatible bucket.
package store

import (
	"context"
	"strings"
	"sync"
)

// Sink writes named artifacts to a storage destination.
type Sink interface {
	// Put writes data under name. Name is relative to the sink's root and
	// must not contain ".." segments.
	Put(ctx context.Context, name string, data []byte) error

	// Close releases sink resources.
	Close() error
}

// IsS3Target reports whether a destination string names an S3 location.
func IsS3Target(target string) bool {
	return strings.HasPrefix(target, "s3://")
}

// ParseS3Target splits "s3://bucket/prefix" into bucket and prefix.
// The prefix may be empty.
func ParseS3Target(target string) (bucket, prefix string) {
	rest := strings.TrimPrefix(target, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = strings.Trim(parts[1], "/")
	}
	return bucket, prefix
}

// StubSink records Put calls for testing.
type StubSink struct {
	mu     sync.Mutex
	Puts   []StubPut
	Closed bool

	// Err, when set, is returned from every Put.
	Err error
}

// StubPut is one recorded write.
type StubPut struct {
	Name string
	Data []byte
}

// NewStubSink creates a recording sink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// Put implements Sink by recording the call.
func (s *StubSink) Put(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Puts = append(s.Puts, StubPut{Name: name, Data: data})
	return nil
}

// Close implements Sink.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

var _ Sink = (*StubSink)(nil)
