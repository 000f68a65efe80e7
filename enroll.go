package facegate

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/facegate/client-go/gallery"
	"github.com/facegate/client-go/internal/envelope"
)

// DefaultEnrollConcurrency is how many profile items Enroll processes
// in parallel.
const DefaultEnrollConcurrency = 3

// EnrollReport summarizes an Enroll call.
type EnrollReport struct {
	// AlreadyCurrent is true when the stored gallery already matched
	// the remote profile and nothing was re-enrolled.
	AlreadyCurrent bool

	// Enrolled is the number of records in the gallery after the call.
	Enrolled int

	// Skipped lists per-item failures. Slots listed here are absent
	// from the gallery; surviving slots keep their profile positions.
	Skipped []*ItemError

	// Stamp is the profile timestamp the gallery corresponds to.
	Stamp string
}

// Enroll fetches the enrollment profile, decrypts its reference images
// and rebuilds the local gallery from them.
//
// When the stored gallery already matches the profile timestamp the
// call returns early with AlreadyCurrent set, unless WithForce is
// given. Items are processed concurrently; one bad item does not stop
// the others, it only surfaces in Skipped. If every item fails the
// gallery on disk is left untouched and ErrNoFacesEnrolled is returned.
func (c *Client) Enroll(ctx context.Context, opts ...EnrollOption) (*EnrollReport, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if c.extractor == nil {
		return nil, ErrNoExtractor
	}
	if !c.Provisioned() {
		return nil, ErrNotProvisioned
	}

	cfg := &enrollConfig{concurrency: DefaultEnrollConcurrency}
	for _, opt := range opts {
		opt(cfg)
	}

	profile, err := c.FetchProfile(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	if !cfg.force && c.galleryCurrent(ctx, profile.UpdatedAt) {
		records, err := c.loadedRecords(ctx)
		if err == nil {
			c.logger.Debug("gallery is current", "stamp", profile.UpdatedAt)
			return &EnrollReport{
				AlreadyCurrent: true,
				Enrolled:       len(records),
				Stamp:          profile.UpdatedAt,
			}, nil
		}
		c.logger.Warn("stored gallery unreadable, re-enrolling", "error", err)
	}

	records, skipped := c.enrollItems(ctx, profile, cfg.concurrency)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		c.logger.Error("enrollment produced no usable faces",
			"items", len(profile.ImagePaths), "skipped", len(skipped))
		return nil, ErrNoFacesEnrolled
	}

	if err := c.store.Persist(ctx, records, profile.UpdatedAt); err != nil {
		return nil, fmt.Errorf("persisting gallery: %w", err)
	}
	c.setRecords(records)

	c.logger.Info("gallery enrolled",
		"faces", len(records), "skipped", len(skipped), "stamp", profile.UpdatedAt)

	return &EnrollReport{
		Enrolled: len(records),
		Skipped:  skipped,
		Stamp:    profile.UpdatedAt,
	}, nil
}

// enrollItems runs the per-item pipeline over all profile slots with
// bounded concurrency. Surviving records come back in slot order.
func (c *Client) enrollItems(ctx context.Context, profile *Profile, concurrency int) ([]*gallery.Record, []*ItemError) {
	labels := deriveLabels(profile.ImagePaths)

	type slot struct {
		record *gallery.Record
		err    *ItemError
	}
	slots := make([]slot, len(profile.ImagePaths))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := range profile.ImagePaths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			record, err := c.enrollItem(ctx, profile, i, labels[i])
			if err != nil {
				c.logger.Warn("skipping profile item",
					"index", err.Index, "stage", err.Stage, "error", err.Err)
				slots[i].err = err
				return
			}
			slots[i].record = record
		}(i)
	}
	wg.Wait()

	var records []*gallery.Record
	var skipped []*ItemError
	for _, s := range slots {
		if s.err != nil {
			skipped = append(skipped, s.err)
			continue
		}
		records = append(records, s.record)
	}
	return records, skipped
}

// enrollItem downloads, unwraps, decrypts and extracts one profile
// slot. Every failure is reported as an ItemError naming the stage.
func (c *Client) enrollItem(ctx context.Context, profile *Profile, i int, label string) (*gallery.Record, *ItemError) {
	itemPath := profile.ImagePaths[i]

	blob, err := c.apiClient.DownloadItem(ctx, itemPath)
	if err != nil {
		return nil, &ItemError{Index: i, Stage: "download", Err: wrapError(err)}
	}

	wrapped, err := envelope.DecodeBase64(profile.WrappedKeys[i])
	if err != nil {
		return nil, &ItemError{Index: i, Stage: "unwrap", Err: fmt.Errorf("decoding wrapped key: %w", err)}
	}
	key, err := envelope.UnwrapKey(wrapped, c.devicePrivateKey())
	if err != nil {
		return nil, &ItemError{Index: i, Stage: "unwrap", Err: err}
	}
	defer envelope.Zero(key)

	plaintext, format, err := envelope.DecryptItem(blob, key)
	if err != nil {
		return nil, &ItemError{Index: i, Stage: "decrypt", Err: err}
	}
	c.logger.Debug("decrypted profile item",
		"index", i, "format", format, "bytes", len(plaintext))

	detections, err := c.extractor.Extract(ctx, plaintext)
	if err != nil {
		return nil, &ItemError{Index: i, Stage: "extract", Err: err}
	}
	best, ok := bestDetection(detections)
	if !ok {
		return nil, &ItemError{Index: i, Stage: "extract", Err: ErrNoFaceDetected}
	}

	record, err := gallery.NewRecord(label, best.Embedding, best.Confidence, itemPath)
	if err != nil {
		return nil, &ItemError{Index: i, Stage: "enroll", Err: err}
	}
	return record, nil
}

// deriveLabels names each gallery record after its image's filename
// stem. Empty stems fall back to the slot index and collisions get a
// numeric suffix, so labels stay unique within the profile.
func deriveLabels(paths []string) []string {
	labels := make([]string, len(paths))
	seen := make(map[string]bool, len(paths))
	for i, p := range paths {
		base := path.Base(p)
		stem := strings.TrimSuffix(base, path.Ext(base))
		if stem == "" || stem == "." || stem == "/" {
			stem = fmt.Sprintf("face_%d", i)
		}

		label := stem
		for n := 2; seen[label]; n++ {
			label = fmt.Sprintf("%s_%d", stem, n)
		}
		seen[label] = true
		labels[i] = label
	}
	return labels
}
