// Package match implements cosine-similarity matching of face
// embeddings against an enrolled gallery.
//
// Matching runs in two phases. Phase one walks the gallery in
// enrollment order and accepts the first record whose similarity
// reaches the threshold, so a hit near the front of the gallery skips
// the rest. When nothing reaches the threshold, phase two reports the
// closest record so callers can surface near misses.
package match

import "github.com/facegate/client-go/gallery"

// Outcome reports the result of matching one probe embedding.
type Outcome struct {
	// Accepted is true when a record reached the threshold.
	Accepted bool
	// Record is the accepted record, or the closest record on
	// rejection. Nil when the gallery is empty.
	Record *gallery.Record
	// Similarity is the cosine similarity against Record, or -1 when
	// the gallery is empty.
	Similarity float64
}

// Similarity computes the cosine similarity of two embeddings. Both
// sides are expected to be L2-normalized, so the dot product suffices.
// Mismatched lengths yield -1, the floor of the cosine range.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return -1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Match compares a probe embedding against the gallery and returns a
// deterministic outcome: the same probe, records, and threshold always
// select the same record. Ties in phase two keep the record
// encountered first.
func Match(probe []float32, records []*gallery.Record, threshold float64) Outcome {
	for _, r := range records {
		if s := Similarity(probe, r.Vector); s >= threshold {
			return Outcome{Accepted: true, Record: r, Similarity: s}
		}
	}

	best := Outcome{Similarity: -1}
	for _, r := range records {
		if s := Similarity(probe, r.Vector); best.Record == nil || s > best.Similarity {
			best = Outcome{Record: r, Similarity: s}
		}
	}
	return best
}
