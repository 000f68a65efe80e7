package facegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"
)

// HTTPExtractor calls a face detection service over HTTP, typically an
// ONNX runtime sidecar on the same device. The request is the raw image
// as application/octet-stream; the response carries one detection per
// face:
//
//	{"detections": [{"embedding": [...], "confidence": 0.97, "bounds": [x, y, w, h]}]}
//
// An absent bounds field leaves Detection.Bounds zero.
type HTTPExtractor struct {
	// URL is the detection endpoint.
	URL string
	// Client is the HTTP client used for requests. Nil means a default
	// client with a 60 second timeout, generous enough for a cold model
	// load on the sidecar.
	Client *http.Client
}

// NewHTTPExtractor returns an HTTPExtractor with the default client.
func NewHTTPExtractor(url string) *HTTPExtractor {
	return &HTTPExtractor{
		URL:    url,
		Client: &http.Client{Timeout: 60 * time.Second},
	}
}

type wireDetection struct {
	Embedding  []float32 `json:"embedding"`
	Confidence float64   `json:"confidence"`
	Bounds     *[4]int   `json:"bounds,omitempty"`
}

// Extract implements Extractor.
func (e *HTTPExtractor) Extract(ctx context.Context, img []byte) ([]Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(img))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extractor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extractor returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var payload struct {
		Detections []wireDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding extractor response: %w", err)
	}

	dets := make([]Detection, 0, len(payload.Detections))
	for _, wd := range payload.Detections {
		det := Detection{
			Embedding:  wd.Embedding,
			Confidence: wd.Confidence,
		}
		if wd.Bounds != nil {
			b := *wd.Bounds
			det.Bounds = image.Rect(b[0], b[1], b[0]+b[2], b[1]+b[3])
		}
		dets = append(dets, det)
	}
	return dets, nil
}
