package runtime

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/inkfold-io/rebind/ipc"
	"github.com/inkfold-io/rebind/log"
	"github.com/inkfold-io/rebind/policy"
	"github.com/inkfold-io/rebind/types"
)

// noisyPNG builds a PNG full of seeded random pixels. Noise defeats PNG's
// lossless filters, so the encoded size is large relative to a lossy
// re-encode of the same image.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// collectFrames dispatches a batch to a fresh context and drains its
// result stream until batch_complete or stream end.
func collectFrames(t *testing.T, batch *ipc.BatchFrame) []any {
	t.Helper()
	h := SpawnContext(context.Background(), batch.Index, log.Nop())
	if err := h.Dispatch(batch); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var frames []any
	dec := h.Frames()
	for {
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		frames = append(frames, frame)
		if _, ok := frame.(*ipc.BatchCompleteFrame); ok {
			break
		}
	}
	h.Complete()
	return frames
}

func TestContext_BatchRoundTrip(t *testing.T) {
	batch := &ipc.BatchFrame{
		Type:    ipc.TypeBatch,
		Index:   2,
		Quality: 60,
		Format:  types.FormatWebP,
		Files: []ipc.FilePayload{
			{Path: "OEBPS/images/fig.png", Data: noisyPNG(t, 64, 64)},
			{Path: "OEBPS/content.xhtml", Data: []byte("<html/>")},
		},
	}
	frames := collectFrames(t, batch)

	if len(frames) != 3 {
		t.Fatalf("expected 2 results + complete, got %d frames", len(frames))
	}

	results := make(map[string]*ipc.FileResultFrame)
	for _, f := range frames[:2] {
		r, ok := f.(*ipc.FileResultFrame)
		if !ok {
			t.Fatalf("unexpected frame %T before batch_complete", f)
		}
		results[r.Path] = r
	}

	xhtml, ok := results["OEBPS/content.xhtml"]
	if !ok {
		t.Fatal("missing result for non-image file")
	}
	if xhtml.Transcoded {
		t.Error("non-image file must not be transcoded")
	}
	if !bytes.Equal(xhtml.Data, []byte("<html/>")) {
		t.Error("non-image bytes changed")
	}

	fig, ok := results["OEBPS/images/fig.png"]
	if !ok {
		t.Fatal("missing result for image file")
	}
	if len(fig.Data) == 0 {
		t.Error("image result carries no bytes")
	}
	if fig.Transcoded && len(fig.Data) >= len(batch.Files[0].Data) {
		t.Error("transcoded result is not smaller than the original")
	}

	complete, ok := frames[2].(*ipc.BatchCompleteFrame)
	if !ok {
		t.Fatalf("terminal frame is %T, want batch_complete", frames[2])
	}
	if complete.Index != 2 {
		t.Errorf("complete.Index = %d, want 2", complete.Index)
	}
	if complete.Processed != 2 || complete.Failed != 0 {
		t.Errorf("complete counters = (%d,%d), want (2,0)", complete.Processed, complete.Failed)
	}
}

func TestContext_CorruptImageYieldsFileError(t *testing.T) {
	batch := &ipc.BatchFrame{
		Type:    ipc.TypeBatch,
		Index:   0,
		Quality: 75,
		Format:  types.FormatWebP,
		Files: []ipc.FilePayload{
			{Path: "images/broken.png", Data: []byte("not a png at all")},
		},
	}
	frames := collectFrames(t, batch)

	if len(frames) != 2 {
		t.Fatalf("expected error + complete, got %d frames", len(frames))
	}
	fe, ok := frames[0].(*ipc.FileErrorFrame)
	if !ok {
		t.Fatalf("first frame is %T, want file_error", frames[0])
	}
	if fe.Path != "images/broken.png" {
		t.Errorf("error path = %q", fe.Path)
	}
	if fe.Error == "" {
		t.Error("file_error carries no message")
	}
	complete := frames[1].(*ipc.BatchCompleteFrame)
	if complete.Failed != 1 {
		t.Errorf("complete.Failed = %d, want 1", complete.Failed)
	}
}

func TestContext_BadPolicyClosesStream(t *testing.T) {
	h := SpawnContext(context.Background(), 0, log.Nop())
	batch := &ipc.BatchFrame{
		Type:    ipc.TypeBatch,
		Index:   0,
		Quality: 0,
		Format:  types.FormatWebP,
		Files:   []ipc.FilePayload{{Path: "a.png", Data: []byte("x")}},
	}
	if err := h.Dispatch(batch); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	_, err := h.Frames().ReadFrame()
	if err == nil || err == io.EOF {
		t.Fatalf("expected stream error for invalid quality, got %v", err)
	}
}

func TestContext_PanicBecomesStreamFault(t *testing.T) {
	prev := applyTranscode
	defer func() { applyTranscode = prev }()
	applyTranscode = func(ctx context.Context, tr *policy.Transcoder, path string, data []byte) policy.Outcome {
		if path == "images/poison.png" {
			panic("codec blew up")
		}
		return tr.Apply(ctx, path, data)
	}

	h := SpawnContext(context.Background(), 0, log.Nop())
	batch := &ipc.BatchFrame{
		Type:    ipc.TypeBatch,
		Index:   0,
		Quality: 75,
		Format:  types.FormatWebP,
		Files: []ipc.FilePayload{
			{Path: "images/poison.png", Data: noisyPNG(t, 16, 16)},
		},
	}
	if err := h.Dispatch(batch); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	_, err := h.Frames().ReadFrame()
	if err == nil || err == io.EOF {
		t.Fatalf("panic must close the stream with an error, got %v", err)
	}
	if !strings.Contains(err.Error(), "panic") {
		t.Errorf("fault does not carry the panic: %v", err)
	}
}

func TestContextHandle_Crash(t *testing.T) {
	h := SpawnContext(context.Background(), 1, log.Nop())
	cause := errors.New("sibling context faulted")
	h.Crash(cause)

	if h.State() != StateCrashed {
		t.Errorf("state = %v, want crashed", h.State())
	}
	_, err := h.Frames().ReadFrame()
	if err == nil || err == io.EOF {
		t.Fatalf("crashed context stream should error, got %v", err)
	}
}
