// Package types defines the shared vocabulary for rebind: target image
// formats, operation outcomes, and the canonical project version.
package types

import "fmt"

// TargetFormat is the closed set of image formats an archive's images may be
// re-encoded into. Validated at the orchestrator boundary; workers never see
// an unknown format.
type TargetFormat string

const (
	// FormatWebP re-encodes images as lossy WebP.
	FormatWebP TargetFormat = "webp"
	// FormatAVIF re-encodes images as AVIF.
	FormatAVIF TargetFormat = "avif"
)

// ParseTargetFormat validates a user-supplied format string.
// Accepted values are "webp" and "avif" (case-sensitive).
func ParseTargetFormat(s string) (TargetFormat, error) {
	switch TargetFormat(s) {
	case FormatWebP, FormatAVIF:
		return TargetFormat(s), nil
	default:
		return "", fmt.Errorf("unsupported target format %q (must be webp or avif)", s)
	}
}

// Valid returns true if the format is a member of the closed enumeration.
func (f TargetFormat) Valid() bool {
	_, err := ParseTargetFormat(string(f))
	return err == nil
}

// QualityMin and QualityMax bound the user-facing quality scale.
// The image codec consumes a [0,1] scale; see imaging.Encode.
const (
	QualityMin = 1
	QualityMax = 100
)

// ValidateQuality checks that q is within the user-facing [1,100] scale.
func ValidateQuality(q int) error {
	if q < QualityMin || q > QualityMax {
		return fmt.Errorf("quality %d out of range [%d,%d]", q, QualityMin, QualityMax)
	}
	return nil
}
