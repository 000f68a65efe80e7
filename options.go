package facegate

import (
	"log/slog"
	"net/http"
	"time"
)

// clientConfig holds the configuration for a Client.
type clientConfig struct {
	baseURL    string
	serviceKey string
	bucket     string
	dataDir    string
	threshold  float64
	privateKey string // PEM or base64 DER key material; overrides the key file
	extractor  Extractor
	logger     *slog.Logger
	httpClient *http.Client
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	retryOn    []int
}

// Option configures a Client.
type Option func(*clientConfig)

// WithBaseURL sets the backend base URL.
// Default: value of the FACEGATE_BASE_URL environment variable.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithServiceKey sets the backend service key.
// Default: value of the FACEGATE_SERVICE_KEY environment variable.
func WithServiceKey(key string) Option {
	return func(c *clientConfig) {
		c.serviceKey = key
	}
}

// WithBucket sets the storage bucket that holds profile items.
// Default: "images".
func WithBucket(bucket string) Option {
	return func(c *clientConfig) {
		c.bucket = bucket
	}
}

// WithDataDir sets the directory for the device key, the gallery and
// the scan log.
// Default: ".facegate" in the current directory.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithThreshold sets the cosine similarity threshold for accepting a
// match. Values must lie in [-1, 1].
// Default: 0.6.
func WithThreshold(threshold float64) Option {
	return func(c *clientConfig) {
		c.threshold = threshold
	}
}

// WithPrivateKey supplies the device private key directly instead of
// reading it from the data directory. Accepts PEM or base64 DER.
func WithPrivateKey(material string) Option {
	return func(c *clientConfig) {
		c.privateKey = material
	}
}

// WithExtractor sets the face extractor used by Enroll and Scan.
func WithExtractor(e Extractor) Option {
	return func(c *clientConfig) {
		c.extractor = e
	}
}

// WithLogger sets the structured logger.
// Default: a logger that discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client for backend requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the timeout for backend requests.
// Default: 30 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetries sets the maximum number of retries for transient backend
// failures.
// Default: 3.
func WithRetries(retries int) Option {
	return func(c *clientConfig) {
		c.retries = retries
	}
}

// WithRetryDelay sets the base delay between retries.
// Default: 1 second.
func WithRetryDelay(delay time.Duration) Option {
	return func(c *clientConfig) {
		c.retryDelay = delay
	}
}

// WithRetryOn sets the HTTP status codes that trigger a retry.
// Default: 408, 429, 500, 502, 503, 504.
func WithRetryOn(statusCodes ...int) Option {
	return func(c *clientConfig) {
		c.retryOn = statusCodes
	}
}

// enrollConfig holds the configuration for an Enroll call.
type enrollConfig struct {
	force       bool
	concurrency int
}

// EnrollOption configures an Enroll call.
type EnrollOption func(*enrollConfig)

// WithForce re-enrolls even when the stored gallery already matches the
// current profile.
func WithForce() EnrollOption {
	return func(c *enrollConfig) {
		c.force = true
	}
}

// WithConcurrency sets how many profile items are processed in parallel.
// Default: 3.
func WithConcurrency(n int) EnrollOption {
	return func(c *enrollConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}
