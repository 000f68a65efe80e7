package match

import (
	"math"
	"testing"

	"github.com/facegate/client-go/gallery"
)

// probeVec is a one-hot embedding along the first axis.
func probeVec() []float32 {
	v := make([]float32, gallery.EmbeddingDim)
	v[0] = 1
	return v
}

// vecWithSim builds a unit vector whose cosine similarity against
// probeVec is s, using a distinct axis for the orthogonal remainder.
func vecWithSim(t *testing.T, s float64, axis int) []float32 {
	t.Helper()
	if axis == 0 {
		t.Fatal("axis 0 is the probe axis")
	}
	v := make([]float32, gallery.EmbeddingDim)
	v[0] = float32(s)
	v[axis] = float32(math.Sqrt(1 - s*s))
	return v
}

func testGallery(t *testing.T, sims ...float64) []*gallery.Record {
	t.Helper()
	records := make([]*gallery.Record, 0, len(sims))
	for i, s := range sims {
		r, err := gallery.NewRecord(string(rune('a'+i)), vecWithSim(t, s, i+1), 0.9, "src.jpg")
		if err != nil {
			t.Fatalf("NewRecord(%d): %v", i, err)
		}
		records = append(records, r)
	}
	return records
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	probe := probeVec()

	if got := Similarity(probe, probe); math.Abs(got-1) > 1e-6 {
		t.Errorf("self similarity = %v, want 1", got)
	}

	orthogonal := make([]float32, gallery.EmbeddingDim)
	orthogonal[1] = 1
	if got := Similarity(probe, orthogonal); got != 0 {
		t.Errorf("orthogonal similarity = %v, want 0", got)
	}

	opposite := make([]float32, gallery.EmbeddingDim)
	opposite[0] = -1
	if got := Similarity(probe, opposite); math.Abs(got+1) > 1e-6 {
		t.Errorf("opposite similarity = %v, want -1", got)
	}

	if got := Similarity(probe, make([]float32, 10)); got != -1 {
		t.Errorf("mismatched lengths similarity = %v, want -1", got)
	}
}

func TestMatchAcceptsFirstAboveThreshold(t *testing.T) {
	t.Parallel()

	records := testGallery(t, 0.4, 0.9, 0.95)
	outcome := Match(probeVec(), records, 0.6)

	if !outcome.Accepted {
		t.Fatal("Accepted = false, want true")
	}
	// 0.9 clears the threshold before 0.95 is ever visited.
	if outcome.Record != records[1] {
		t.Errorf("Record = %q, want %q", outcome.Record.Label, records[1].Label)
	}
	if math.Abs(outcome.Similarity-0.9) > 1e-6 {
		t.Errorf("Similarity = %v, want 0.9", outcome.Similarity)
	}
}

func TestMatchReportsBestOnRejection(t *testing.T) {
	t.Parallel()

	records := testGallery(t, 0.4, 0.9, 0.95)
	outcome := Match(probeVec(), records, 0.97)

	if outcome.Accepted {
		t.Fatal("Accepted = true, want false")
	}
	if outcome.Record != records[2] {
		t.Errorf("Record = %q, want %q", outcome.Record.Label, records[2].Label)
	}
	if math.Abs(outcome.Similarity-0.95) > 1e-6 {
		t.Errorf("Similarity = %v, want 0.95", outcome.Similarity)
	}
}

func TestMatchEmptyGallery(t *testing.T) {
	t.Parallel()

	outcome := Match(probeVec(), nil, 0.6)

	if outcome.Accepted {
		t.Error("Accepted = true, want false")
	}
	if outcome.Record != nil {
		t.Errorf("Record = %v, want nil", outcome.Record)
	}
	if outcome.Similarity != -1 {
		t.Errorf("Similarity = %v, want -1", outcome.Similarity)
	}
}

func TestMatchTieKeepsFirst(t *testing.T) {
	t.Parallel()

	// Two records at the same similarity. The rejection report must
	// name the one enrolled first.
	records := testGallery(t, 0.5, 0.5)
	outcome := Match(probeVec(), records, 0.9)

	if outcome.Accepted {
		t.Fatal("Accepted = true, want false")
	}
	if outcome.Record != records[0] {
		t.Errorf("Record = %q, want %q", outcome.Record.Label, records[0].Label)
	}
}

func TestMatchExactFloor(t *testing.T) {
	t.Parallel()

	// A gallery whose only similarity is exactly -1 must still report
	// that record rather than pretending the gallery was empty.
	opposite := make([]float32, gallery.EmbeddingDim)
	opposite[0] = -1
	records := []*gallery.Record{{Label: "opposite", Vector: opposite}}

	outcome := Match(probeVec(), records, 0.6)
	if outcome.Accepted {
		t.Fatal("Accepted = true, want false")
	}
	if outcome.Record == nil {
		t.Fatal("Record = nil, want the opposite record")
	}
	if math.Abs(outcome.Similarity+1) > 1e-6 {
		t.Errorf("Similarity = %v, want -1", outcome.Similarity)
	}
}

func TestMatchDeterministic(t *testing.T) {
	t.Parallel()

	records := testGallery(t, 0.55, 0.58, 0.59)
	probe := probeVec()

	first := Match(probe, records, 0.6)
	for i := 0; i < 100; i++ {
		again := Match(probe, records, 0.6)
		if again.Accepted != first.Accepted ||
			again.Record != first.Record ||
			again.Similarity != first.Similarity {
			t.Fatalf("iteration %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

func TestMatchThresholdBoundary(t *testing.T) {
	t.Parallel()

	records := testGallery(t, 0.5)

	// The comparison is >=, so a similarity exactly at the threshold
	// accepts.
	sim := Similarity(probeVec(), records[0].Vector)
	outcome := Match(probeVec(), records, sim)
	if !outcome.Accepted {
		t.Error("similarity equal to threshold should accept")
	}

	outcome = Match(probeVec(), records, math.Nextafter(sim, 2))
	if outcome.Accepted {
		t.Error("similarity just under threshold should reject")
	}
}
