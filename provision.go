package facegate

import (
	"context"
	"fmt"
	"os"

	"github.com/facegate/client-go/internal/envelope"
)

// Provision generates the device keypair, stores the private key in the
// data directory and publishes the public key to the product record.
//
// The private key is written before the publish call; if publishing
// fails the key file is rolled back so Provision can be retried.
// Returns ErrAlreadyProvisioned when a device key already exists.
func (c *Client) Provision(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if c.Provisioned() {
		return ErrAlreadyProvisioned
	}
	if _, err := os.Stat(c.keyPath()); err == nil {
		return ErrAlreadyProvisioned
	}

	key, err := envelope.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating device key: %w", err)
	}

	pemBytes, err := envelope.MarshalPrivateKeyPEM(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(c.keyPath(), pemBytes, 0o600); err != nil {
		return fmt.Errorf("writing device key: %w", err)
	}

	pub, err := envelope.MarshalPublicKey(&key.PublicKey)
	if err != nil {
		os.Remove(c.keyPath())
		return err
	}
	if err := c.apiClient.PublishPublicKey(ctx, c.productKey, pub); err != nil {
		// Roll back the key file so a later Provision can retry.
		if rmErr := os.Remove(c.keyPath()); rmErr != nil {
			c.logger.Warn("could not remove unpublished device key",
				"path", c.keyPath(), "error", rmErr)
		}
		return wrapError(err)
	}

	c.mu.Lock()
	c.privateKey = key
	c.audit = c.buildAuditLog()
	c.mu.Unlock()

	c.logger.Info("device provisioned",
		"fingerprint", envelope.Fingerprint(&key.PublicKey))
	return nil
}
