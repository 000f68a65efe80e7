package facegate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/facegate/client-go/auditlog"
	"github.com/facegate/client-go/gallery"
	"github.com/facegate/client-go/match"
)

// Scan extracts every face from the probe image, matches each against
// the enrolled gallery and appends one record to the scan log. The
// appended record is returned; its Critical flag is set when no face
// was accepted.
//
// Source is a free-form origin tag for the audit trail, typically a
// camera or file name. A corrupt scan log is reset and the record is
// appended to the fresh log.
func (c *Client) Scan(ctx context.Context, imageBytes []byte, source string) (*auditlog.ScanRecord, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if c.extractor == nil {
		return nil, ErrNoExtractor
	}

	records, err := c.loadedRecords(ctx)
	if err != nil {
		return nil, err
	}

	detections, err := c.extractor.Extract(ctx, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("extracting faces: %w", err)
	}

	results := c.matchDetections(detections, records)
	rec := auditlog.NewRecord(source, len(detections), results)

	audit := c.auditLog()
	if err := audit.Append(ctx, rec); err != nil {
		if !errors.Is(err, auditlog.ErrCorrupt) {
			return nil, fmt.Errorf("appending scan record: %w", err)
		}
		if err := audit.Reset(ctx); err != nil {
			return nil, fmt.Errorf("resetting corrupt scan log: %w", err)
		}
		if err := audit.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("appending scan record: %w", err)
		}
	}

	c.logger.Info("scan recorded",
		"source", source, "faces", len(detections),
		"accepted", acceptedCount(results), "critical", rec.Critical)
	return rec, nil
}

// matchDetections matches each detected face against the gallery
// snapshot, one goroutine per face.
func (c *Client) matchDetections(detections []Detection, records []*gallery.Record) []auditlog.ProbeResult {
	results := make([]auditlog.ProbeResult, len(detections))

	var wg sync.WaitGroup
	for i, det := range detections {
		wg.Add(1)
		go func(i int, det Detection) {
			defer wg.Done()

			outcome := match.Match(det.Embedding, records, c.threshold)
			result := auditlog.ProbeResult{
				Matched:    outcome.Accepted,
				Similarity: outcome.Similarity,
				Region:     boundsToRegion(det.Bounds),
			}
			if outcome.Record != nil {
				result.Label = outcome.Record.Label
			}
			results[i] = result
		}(i, det)
	}
	wg.Wait()

	return results
}

// boundsToRegion converts a bounding box to the audit region form
// [x1, y1, x2, y2]. The zero rectangle means the detector reported none.
func boundsToRegion(r image.Rectangle) *auditlog.Region {
	if r == (image.Rectangle{}) {
		return nil
	}
	return &auditlog.Region{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

func acceptedCount(results []auditlog.ProbeResult) int {
	n := 0
	for _, r := range results {
		if r.Matched {
			n++
		}
	}
	return n
}
