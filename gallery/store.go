package gallery

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"
)

const (
	manifestVersion = 1
	manifestName    = "gallery.json"
)

// Store persists gallery records under one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for persistence events. The default
// discards everything.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store rooted at dir. The directory is created on
// first persist.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

type manifest struct {
	Version      int             `json:"version"`
	EnrolledAt   string          `json:"enrolled_at"`
	ProfileStamp string          `json:"profile_stamp"`
	Records      []manifestEntry `json:"records"`
}

type manifestEntry struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	VectorFile string  `json:"vector_file"`
	Checksum   string  `json:"sha256"`
}

// Persist atomically replaces the stored gallery with records, tagged
// with the profile stamp they were enrolled from. Vector files are
// written first and the manifest last, so a crash mid-persist leaves
// either the previous gallery or unreferenced vector files, never a
// manifest pointing at missing data.
func (s *Store) Persist(ctx context.Context, records []*Record, profileStamp string) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	if len(records) > MaxRecords {
		return fmt.Errorf("%w: %d records, limit %d", ErrTooManyRecords, len(records), MaxRecords)
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.Label] {
			return fmt.Errorf("%w: %q", ErrDuplicateLabel, r.Label)
		}
		seen[r.Label] = true
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create gallery dir: %w", err)
	}

	m := manifest{
		Version:      manifestVersion,
		EnrolledAt:   time.Now().UTC().Format(time.RFC3339),
		ProfileStamp: profileStamp,
	}
	for _, r := range records {
		data := encodeVector(r.Vector)
		name := r.Label + ".vec"
		if err := writeFileAtomic(filepath.Join(s.dir, name), data, 0o600); err != nil {
			return fmt.Errorf("write vector %s: %w", name, err)
		}
		sum := sha256.Sum256(data)
		m.Records = append(m.Records, manifestEntry{
			Label:      r.Label,
			Confidence: r.Confidence,
			Source:     r.Source,
			VectorFile: name,
			Checksum:   hex.EncodeToString(sum[:]),
		})
	}

	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, manifestName), data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	s.sweepOrphans(m.Records)

	s.logger.Info("gallery persisted",
		"records", len(records),
		"profile_stamp", profileStamp,
		"dir", s.dir)
	return nil
}

// Load reads the stored gallery in enrollment order. A missing gallery
// returns (nil, nil). A damaged one returns ErrInconsistent, or
// ErrCorruptVector when a vector fails the norm check, so callers can
// re-enroll from the profile.
func (s *Store) Load(ctx context.Context) ([]*Record, error) {
	m, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}

	records := make([]*Record, 0, len(m.Records))
	for _, entry := range m.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.VectorFile))
		if err != nil {
			return nil, fmt.Errorf("%w: vector file %s: %v", ErrInconsistent, entry.VectorFile, err)
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != entry.Checksum {
			return nil, fmt.Errorf("%w: checksum mismatch for %s", ErrInconsistent, entry.VectorFile)
		}
		vector, err := decodeVector(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInconsistent, entry.VectorFile, err)
		}
		if err := checkNorm(vector); err != nil {
			return nil, err
		}

		records = append(records, &Record{
			Label:      entry.Label,
			Vector:     vector,
			Confidence: entry.Confidence,
			Source:     entry.Source,
		})
	}
	return records, nil
}

// Stamp returns the profile stamp the stored gallery was enrolled from,
// or "" when nothing is stored.
func (s *Store) Stamp(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := s.readManifest()
	if err != nil || m == nil {
		return "", err
	}
	return m.ProfileStamp, nil
}

func (s *Store) readManifest() (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrInconsistent, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", ErrInconsistent, m.Version)
	}
	return &m, nil
}

// sweepOrphans removes vector files the manifest no longer references,
// left behind when a re-enroll shrinks or relabels the gallery.
func (s *Store) sweepOrphans(entries []manifestEntry) {
	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[e.VectorFile] = true
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.vec"))
	if err != nil {
		return
	}
	for _, path := range matches {
		if keep[filepath.Base(path)] {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Debug("orphan vector not removed", "file", path, "error", err)
			continue
		}
		s.logger.Debug("orphan vector removed", "file", filepath.Base(path))
	}
}

// encodeVector packs a vector as little-endian float32 words.
func encodeVector(vector []float32) []byte {
	data := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return data
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) != 4*EmbeddingDim {
		return nil, fmt.Errorf("vector payload is %d bytes, want %d", len(data), 4*EmbeddingDim)
	}
	vector := make([]float32, EmbeddingDim)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vector, nil
}

// writeFileAtomic writes data to a temp file in the target directory
// and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
