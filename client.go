package facegate

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cloudflare/circl/sign/ed25519"

	"github.com/facegate/client-go/auditlog"
	"github.com/facegate/client-go/gallery"
	"github.com/facegate/client-go/internal/api"
	"github.com/facegate/client-go/internal/envelope"
)

const (
	// MinItems and MaxItems bound how many reference images a profile
	// may carry.
	MinItems = 1
	MaxItems = 6

	// DefaultThreshold is the cosine similarity required to accept a
	// match.
	DefaultThreshold = 0.6

	// DefaultDataDir is where the device key, gallery and scan log
	// live, relative to the working directory.
	DefaultDataDir = ".facegate"

	keyFileName    = "device_key.pem"
	auditFileName  = "scan_log.json"
	galleryDirName = "gallery"
)

// Client is a facegate device client. It owns the device key, the
// enrolled gallery and the scan log, and talks to the profile store on
// behalf of one product key.
//
// A Client is safe for concurrent use.
type Client struct {
	productKey string
	apiClient  *api.Client
	extractor  Extractor
	store      *gallery.Store
	logger     *slog.Logger
	dataDir    string
	threshold  float64

	mu         sync.RWMutex
	privateKey *rsa.PrivateKey
	audit      *auditlog.Log
	records    []*gallery.Record
	loaded     bool
	closed     bool
}

// New creates a Client bound to the given product key.
//
// The service key and base URL come from the FACEGATE_SERVICE_KEY and
// FACEGATE_BASE_URL environment variables unless set via options. The
// device key is read from the data directory when present; a missing
// key file is not an error, it just means the device is unprovisioned.
func New(productKey string, opts ...Option) (*Client, error) {
	if productKey == "" {
		return nil, errors.New("product key is required")
	}

	cfg := &clientConfig{
		baseURL:    os.Getenv("FACEGATE_BASE_URL"),
		serviceKey: os.Getenv("FACEGATE_SERVICE_KEY"),
		dataDir:    DefaultDataDir,
		threshold:  DefaultThreshold,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.serviceKey == "" {
		return nil, ErrMissingServiceKey
	}
	if cfg.baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.threshold < -1 || cfg.threshold > 1 {
		return nil, fmt.Errorf("threshold %v outside [-1, 1]", cfg.threshold)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	apiClient, err := buildAPIClient(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		productKey: productKey,
		apiClient:  apiClient,
		extractor:  cfg.extractor,
		logger:     cfg.logger,
		dataDir:    cfg.dataDir,
		threshold:  cfg.threshold,
	}
	c.store = gallery.NewStore(filepath.Join(cfg.dataDir, galleryDirName),
		gallery.WithLogger(cfg.logger))

	if err := c.loadPrivateKey(cfg.privateKey); err != nil {
		return nil, err
	}
	c.audit = c.buildAuditLog()

	return c, nil
}

// buildAPIClient creates the internal API client from the configuration.
func buildAPIClient(cfg *clientConfig) (*api.Client, error) {
	opts := []api.Option{api.WithBaseURL(cfg.baseURL)}

	if cfg.bucket != "" {
		opts = append(opts, api.WithBucket(cfg.bucket))
	}
	if cfg.timeout > 0 {
		opts = append(opts, api.WithTimeout(cfg.timeout))
	}
	if cfg.retries > 0 {
		opts = append(opts, api.WithRetries(cfg.retries))
	}
	if cfg.retryDelay > 0 {
		opts = append(opts, api.WithRetryDelay(cfg.retryDelay))
	}
	if len(cfg.retryOn) > 0 {
		opts = append(opts, api.WithRetryOn(cfg.retryOn))
	}
	if cfg.httpClient != nil {
		opts = append(opts, api.WithHTTPClient(cfg.httpClient))
	}

	return api.New(cfg.serviceKey, opts...)
}

// loadPrivateKey installs the device key from explicit material or from
// the key file. A missing key file leaves the client unprovisioned.
func (c *Client) loadPrivateKey(material string) error {
	if material != "" {
		key, err := envelope.ParsePrivateKey(material)
		if err != nil {
			return err
		}
		c.privateKey = key
		return nil
	}

	data, err := os.ReadFile(c.keyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading device key: %w", err)
	}
	key, err := envelope.ParsePrivateKey(string(data))
	if err != nil {
		return fmt.Errorf("device key file %s: %w", c.keyPath(), err)
	}
	c.privateKey = key
	return nil
}

// buildAuditLog wires the scan log, signed when a device key exists.
func (c *Client) buildAuditLog() *auditlog.Log {
	opts := []auditlog.Option{auditlog.WithLogger(c.logger)}
	if signer := c.auditSigner(); signer != nil {
		opts = append(opts, auditlog.WithSigner(signer))
	}
	return auditlog.New(filepath.Join(c.dataDir, auditFileName), opts...)
}

// auditSigner derives the scan log signing key from the device key, so
// signatures survive restarts without storing a second secret.
func (c *Client) auditSigner() ed25519.PrivateKey {
	if c.privateKey == nil {
		return nil
	}
	seed, err := envelope.DeriveKey(c.privateKey.D.Bytes(), nil,
		[]byte(envelope.AuditSeedContext), ed25519.SeedSize)
	if err != nil {
		c.logger.Warn("scan log signing disabled", "error", err)
		return nil
	}
	return ed25519.NewKeyFromSeed(seed)
}

func (c *Client) keyPath() string {
	return filepath.Join(c.dataDir, keyFileName)
}

// checkClosed returns an error if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// auditLog returns the current scan log. Provision swaps it for a
// signing one, so reads go through the lock.
func (c *Client) auditLog() *auditlog.Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.audit
}

func (c *Client) devicePrivateKey() *rsa.PrivateKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.privateKey
}

// Provisioned reports whether a device key is available.
func (c *Client) Provisioned() bool {
	return c.devicePrivateKey() != nil
}

// Fingerprint returns the device public key fingerprint, or the empty
// string when the device is not provisioned.
func (c *Client) Fingerprint() string {
	key := c.devicePrivateKey()
	if key == nil {
		return ""
	}
	return envelope.Fingerprint(&key.PublicKey)
}

// DataDir returns the directory holding the device key, gallery and
// scan log.
func (c *Client) DataDir() string {
	return c.dataDir
}

// Threshold returns the configured similarity threshold.
func (c *Client) Threshold() float64 {
	return c.threshold
}

// Gallery returns the enrolled records, loading them from disk on first
// use. A fresh device returns an empty slice.
func (c *Client) Gallery(ctx context.Context) ([]*gallery.Record, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.loadedRecords(ctx)
}

// loadedRecords returns the cached gallery snapshot, reading the store
// on first use. Load failures are not cached, so a later call after
// re-enrollment can succeed.
func (c *Client) loadedRecords(ctx context.Context) ([]*gallery.Record, error) {
	c.mu.RLock()
	if c.loaded {
		records := c.records
		c.mu.RUnlock()
		return records, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.records, nil
	}
	records, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.records = records
	c.loaded = true
	return records, nil
}

// setRecords replaces the cached gallery snapshot after an enrollment.
func (c *Client) setRecords(records []*gallery.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = records
	c.loaded = true
}

// ScanLog returns every recorded scan in append order.
func (c *Client) ScanLog(ctx context.Context) ([]auditlog.ScanRecord, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	return c.auditLog().ReadAll(ctx)
}

// VerifyAuditLog replays the scan log and checks its hash chain and,
// when the device is provisioned, its signatures.
func (c *Client) VerifyAuditLog(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return c.auditLog().Verify(ctx)
}

// Close releases the client. Subsequent operations return
// ErrClientClosed. Closing an already closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.records = nil
	c.loaded = false
	return nil
}
