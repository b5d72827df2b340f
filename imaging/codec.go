// Package imaging implements the image codec collaborator: decoding
// arbitrary image bytes into a pixel surface and encoding a surface into a
// target format at a given quality.
//
// Decoding sniffs the format from the byte stream. Supported inputs are
// jpeg, png, gif, webp and avif; anything else fails with a codec error.
package imaging

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"

	"github.com/inkfold-io/rebind/types"
)

// Decode decodes image bytes into a pixel surface, returning the surface
// and the sniffed source format name.
func Decode(b []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Encode encodes a pixel surface to the target format. Quality is on the
// codec's [0,1] scale; values outside the range are a caller bug and fail
// rather than clamp silently.
func Encode(img image.Image, format types.TargetFormat, quality float64) ([]byte, error) {
	if quality < 0 || quality > 1 {
		return nil, fmt.Errorf("codec quality %v out of range [0,1]", quality)
	}

	// Both codecs take quality on a 0–100 integer scale.
	q := int(quality*100 + 0.5)

	var buf bytes.Buffer
	switch format {
	case types.FormatWebP:
		if err := webp.Encode(&buf, img, webp.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case types.FormatAVIF:
		// Speed 10 is the fastest encoder preset; archive transcoding
		// favors throughput over the last few percent of density.
		if err := avif.Encode(&buf, img, avif.Options{Quality: q, QualityAlpha: q, Speed: 10}); err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported target format %q", format)
	}
	return buf.Bytes(), nil
}
