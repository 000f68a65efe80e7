package facegate

import (
	"context"
	"image"
)

// Detection is one face found in an image.
type Detection struct {
	// Embedding is the 512-dimensional L2-normalized face vector.
	Embedding []float32

	// Confidence is the detector's confidence in [0, 1].
	Confidence float64

	// Bounds is the face bounding box in image coordinates. The zero
	// rectangle means the detector did not report one.
	Bounds image.Rectangle
}

// Extractor turns an encoded image into face detections. Implementations
// must be safe for concurrent use; Enroll and Scan call Extract from
// multiple goroutines.
//
// Returning an empty slice with a nil error means the image contains no
// detectable face.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]Detection, error)
}

// bestDetection returns the detection with the highest confidence. Ties
// keep the earlier detection. Returns false when the slice is empty.
func bestDetection(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}
