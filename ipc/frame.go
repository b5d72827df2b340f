// Package ipc implements the message protocol between the orchestrator and
// its execution contexts: length-prefixed msgpack frames over a byte
// stream.
//
// Each context receives exactly one batch frame and answers with a stream
// of file_result / file_error frames in arbitrary order, terminated by a
// single batch_complete frame. No frames may follow the terminal frame.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/inkfold-io/rebind/types"
)

// Frame size constants. Batch and file_result frames carry raw image
// payloads, so the ceiling is far above typical event-frame limits.
const (
	// MaxFrameSize is the maximum frame size (256 MiB), including prefix.
	MaxFrameSize = 256 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size.
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	TypeBatch         = "batch"
	TypeFileResult    = "file_result"
	TypeFileError     = "file_error"
	TypeBatchComplete = "batch_complete"
)

// FilePayload is one archive file handed to a context inside a batch frame.
type FilePayload struct {
	Path string `msgpack:"path"`
	Data []byte `msgpack:"data"`
}

// BatchFrame is the single dispatch message sent to an execution context.
// It carries copies of the batch's raw bytes; no memory is shared across
// the context boundary.
type BatchFrame struct {
	Type    string             `msgpack:"type"`
	Index   int                `msgpack:"index"`
	Quality int                `msgpack:"quality"`
	Format  types.TargetFormat `msgpack:"format"`
	Files   []FilePayload      `msgpack:"files"`
}

// FileResultFrame reports one successfully processed file: the bytes to
// store at Path, which are either transcoded or the original.
type FileResultFrame struct {
	Type       string `msgpack:"type"`
	Path       string `msgpack:"path"`
	Data       []byte `msgpack:"data"`
	Transcoded bool   `msgpack:"transcoded"`
}

// FileErrorFrame reports one file whose transcode failed unrecoverably.
type FileErrorFrame struct {
	Type  string `msgpack:"type"`
	Path  string `msgpack:"path"`
	Error string `msgpack:"error"`
}

// BatchCompleteFrame is the terminal message from a context: every file in
// its batch has produced exactly one result or error.
type BatchCompleteFrame struct {
	Type      string `msgpack:"type"`
	Index     int    `msgpack:"index"`
	Processed int64  `msgpack:"processed"`
	Failed    int64  `msgpack:"failed"`
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if this error must terminate the context. Partial
// and oversized frames mean the stream can no longer be trusted.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if err is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameEncoder writes length-prefixed msgpack frames to a stream.
type FrameEncoder struct {
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame marshals v and writes it as one length-prefixed frame.
func (e *FrameEncoder) WriteFrame(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode frame", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := e.writer.Write(lengthBuf[:]); err != nil {
		return &FrameError{Kind: FrameErrorPartial, Msg: "failed to write length prefix", Err: err}
	}
	if _, err := e.writer.Write(payload); err != nil {
		return &FrameError{Kind: FrameErrorPartial, Msg: "failed to write payload", Err: err}
	}
	return nil
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream and returns the raw
// msgpack payload bytes.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}
	return payload, nil
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into one of the typed frames,
// discriminating on the type field.
func DecodeFrame(payload []byte) (any, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	switch probe.Type {
	case TypeBatch:
		return decodeAs[BatchFrame](payload, "batch")
	case TypeFileResult:
		return decodeAs[FileResultFrame](payload, "file result")
	case TypeFileError:
		return decodeAs[FileErrorFrame](payload, "file error")
	case TypeBatchComplete:
		return decodeAs[BatchCompleteFrame](payload, "batch complete")
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unknown frame type %q", probe.Type),
		}
	}
}

func decodeAs[T any](payload []byte, what string) (*T, error) {
	var frame T
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode " + what + " frame",
			Err:  err,
		}
	}
	return &frame, nil
}
