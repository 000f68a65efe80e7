// Package auditlog keeps the append-only scan history of a device.
//
// The log is one JSON file of the shape {"scans": [...]}, ordered by
// append time. Every record carries a sha256 sum over its own content
// plus the sum of the record before it, so an edit anywhere in history
// is detectable with [Log.Verify]. When the log was built with a
// signing key, each sum additionally carries an ed25519 signature.
//
// A record is critical when no detected face matched the gallery,
// including the case of no faces at all. Criticality is computed when
// the record is appended and never rewritten afterwards.
//
// A log file that fails to parse is never silently discarded:
// [Log.Append] and [Log.ReadAll] return [ErrCorrupt], and the caller
// decides whether to archive the damaged file with [Log.Reset].
package auditlog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/google/uuid"
)

// Errors reported by log operations and verification.
var (
	// ErrCorrupt indicates the log file exists but cannot be parsed.
	ErrCorrupt = errors.New("audit log corrupt")
	// ErrChainBroken indicates a record's sum or sequence does not
	// match the chain.
	ErrChainBroken = errors.New("audit chain broken")
	// ErrBadSignature indicates a record signature failed to verify.
	ErrBadSignature = errors.New("audit record signature invalid")
)

// Region is a face bounding box as left, top, right, bottom pixel
// offsets.
type Region [4]int

// ProbeResult is the matching outcome for one detected face.
type ProbeResult struct {
	Matched    bool    `json:"matched"`
	Label      string  `json:"matched_label,omitempty"`
	Similarity float64 `json:"similarity"`
	Region     *Region `json:"region,omitempty"`
}

// ScanRecord is one audit entry covering a full frame scan.
type ScanRecord struct {
	ID            string        `json:"id"`
	Timestamp     string        `json:"timestamp"`
	Source        string        `json:"source"`
	FacesDetected int           `json:"faces_detected"`
	Results       []ProbeResult `json:"results"`
	Critical      bool          `json:"critical"`
	Seq           int           `json:"seq"`
	PrevSum       string        `json:"prev_sum"`
	Sum           string        `json:"sum"`
	Sig           string        `json:"sig,omitempty"`
}

// Accepted reports whether any face in the scan matched the gallery.
func (r *ScanRecord) Accepted() bool {
	for _, res := range r.Results {
		if res.Matched {
			return true
		}
	}
	return false
}

type logFile struct {
	Scans []ScanRecord `json:"scans"`
}

// Log is a file-backed audit log. It is safe for concurrent use.
type Log struct {
	path   string
	logger *slog.Logger
	signer ed25519.PrivateKey

	mu sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger for append and reset events. The default
// discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithSigner enables ed25519 signing of record sums.
func WithSigner(key ed25519.PrivateKey) Option {
	return func(l *Log) {
		l.signer = key
	}
}

// New creates an audit log stored at path. The file is created on
// first append.
func New(path string, opts ...Option) *Log {
	l := &Log{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// NewRecord builds a scan record ready for Append, with a fresh ID and
// a UTC timestamp. Chain fields are filled in by Append.
func NewRecord(source string, facesDetected int, results []ProbeResult) *ScanRecord {
	return &ScanRecord{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Source:        source,
		FacesDetected: facesDetected,
		Results:       results,
	}
}

// Append adds a record to the end of the log. The record's critical
// flag, sequence number, and chain sums are computed here, so the
// stored value is authoritative no matter what the caller set. The
// passed record is updated in place with the stored values.
func (l *Log) Append(ctx context.Context, rec *ScanRecord) error {
	if rec == nil {
		return fmt.Errorf("nil scan record")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lf, err := l.read()
	if err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	rec.Critical = !rec.Accepted()
	rec.Seq = len(lf.Scans) + 1
	rec.PrevSum = ""
	if n := len(lf.Scans); n > 0 {
		rec.PrevSum = lf.Scans[n-1].Sum
	}

	sum, err := chainSum(rec)
	if err != nil {
		return err
	}
	rec.Sum = sum
	rec.Sig = ""
	if l.signer != nil {
		rec.Sig = base64.StdEncoding.EncodeToString(ed25519.Sign(l.signer, []byte(rec.Sum)))
	}

	lf.Scans = append(lf.Scans, *rec)
	if err := l.write(lf); err != nil {
		return err
	}

	if rec.Critical {
		l.logger.Warn("critical scan recorded",
			"id", rec.ID,
			"source", rec.Source,
			"faces", rec.FacesDetected)
	} else {
		l.logger.Debug("scan recorded", "id", rec.ID, "seq", rec.Seq)
	}
	return nil
}

// ReadAll returns every recorded scan in append order. A missing log
// file yields an empty slice.
func (l *Log) ReadAll(ctx context.Context) ([]ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lf, err := l.read()
	if err != nil {
		return nil, err
	}
	return lf.Scans, nil
}

// Reset archives a damaged log file so appends start a fresh chain.
// The damaged file stays beside the log under a timestamped name for
// later inspection. Resetting a missing file is a no-op.
func (l *Log) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	archive := l.path + ".corrupt-" + time.Now().UTC().Format("20060102T150405Z")
	if err := os.Rename(l.path, archive); err != nil {
		return fmt.Errorf("archive audit log: %w", err)
	}

	l.logger.Warn("audit log reset", "archived", archive)
	return nil
}

func (l *Log) read() (*logFile, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return &logFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	var lf logFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &lf, nil
}

func (l *Log) write(lf *logFile) error {
	if lf.Scans == nil {
		lf.Scans = []ScanRecord{}
	}
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode audit log: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create audit log dir: %w", err)
	}
	return writeFileAtomic(l.path, data, 0o600)
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
