// Package gallery stores the set of enrolled face records a device
// matches captured faces against.
//
// A gallery holds between 1 and [MaxRecords] records, each carrying an
// L2-normalized embedding vector of [EmbeddingDim] float32 components.
// On disk the gallery lives under one directory: a gallery.json manifest
// listing every record with a checksum, plus one binary vector file per
// record. Writes go through temp-file renames and the manifest is
// written last, so an interrupted enroll never leaves a manifest
// pointing at half-written vectors.
//
// [Store.Load] returns records in enrollment order, which matching
// depends on for deterministic tie-breaks.
package gallery

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// EmbeddingDim is the length of a face embedding vector.
	EmbeddingDim = 512
	// MaxRecords is the most faces a profile may enroll.
	MaxRecords = 6

	// normTolerance bounds how far a stored vector's L2 norm may drift
	// from 1.
	normTolerance = 0.01
)

// Errors reported by record validation and gallery persistence.
var (
	// ErrInvalidRecord indicates a record failed validation.
	ErrInvalidRecord = errors.New("invalid gallery record")
	// ErrCorruptVector indicates an embedding vector is not L2-normalized.
	ErrCorruptVector = errors.New("corrupt embedding vector")
	// ErrInconsistent indicates the on-disk gallery does not match its
	// manifest.
	ErrInconsistent = errors.New("gallery state inconsistent")
	// ErrNoRecords indicates a persist was attempted with nothing to store.
	ErrNoRecords = errors.New("no records to persist")
	// ErrTooManyRecords indicates the record count exceeds MaxRecords.
	ErrTooManyRecords = errors.New("too many records")
	// ErrDuplicateLabel indicates two records share a label.
	ErrDuplicateLabel = errors.New("duplicate record label")
)

// Record is one enrolled face.
type Record struct {
	// Label identifies the face, unique within a gallery.
	Label string
	// Vector is the L2-normalized embedding.
	Vector []float32
	// Confidence is the detector confidence of the enrolled face,
	// in [0, 1].
	Confidence float64
	// Source is the storage path of the reference image the face came
	// from.
	Source string
}

// NewRecord validates its inputs and builds a record. The vector is
// copied, so the caller may reuse its slice.
func NewRecord(label string, vector []float32, confidence float64, source string) (*Record, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrInvalidRecord)
	}
	if strings.ContainsAny(label, `/\`) {
		return nil, fmt.Errorf("%w: label %q contains a path separator", ErrInvalidRecord, label)
	}
	if len(vector) != EmbeddingDim {
		return nil, fmt.Errorf("%w: vector has %d dimensions, want %d",
			ErrInvalidRecord, len(vector), EmbeddingDim)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0, 1]", ErrInvalidRecord, confidence)
	}
	if err := checkNorm(vector); err != nil {
		return nil, err
	}

	vec := make([]float32, EmbeddingDim)
	copy(vec, vector)
	return &Record{
		Label:      label,
		Vector:     vec,
		Confidence: confidence,
		Source:     source,
	}, nil
}

// checkNorm verifies the vector is L2-normalized within tolerance. NaN
// components fail the check.
func checkNorm(vector []float32) error {
	var sum float64
	for _, v := range vector {
		f := float64(v)
		sum += f * f
	}
	norm := math.Sqrt(sum)
	if math.IsNaN(norm) || math.Abs(norm-1) > normTolerance {
		return fmt.Errorf("%w: L2 norm %v", ErrCorruptVector, norm)
	}
	return nil
}
