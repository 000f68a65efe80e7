package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ResolveUserID looks up the account that owns a product key.
func (c *Client) ResolveUserID(ctx context.Context, productKey string) (string, error) {
	path := "/rest/v1/products?select=user_id&product_key=eq." + url.QueryEscape(productKey)

	var rows []struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", ErrProductNotFound
	}
	return rows[0].UserID, nil
}

// GetProfile fetches the enrollment profile for a user.
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	path := "/rest/v1/user_profiles?select=user_id,updated_at,images,images_encrypted_keys&user_id=eq." +
		url.QueryEscape(userID)

	var rows []profileRow
	if err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrProfileNotFound
	}
	return rows[0].toProfile()
}

// PublishPublicKey stores the device public key on the product row so the
// owner's app can wrap item keys for this device.
func (c *Client) PublishPublicKey(ctx context.Context, productKey, publicKey string) error {
	path := "/rest/v1/products?product_key=eq." + url.QueryEscape(productKey)
	body := map[string]string{"public_key": publicKey}
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// DownloadItem fetches an encrypted object from the storage bucket. The
// path is the object path as stored on the profile, without the bucket
// prefix.
func (c *Client) DownloadItem(ctx context.Context, path string) ([]byte, error) {
	fullURL := c.baseURL + "/storage/v1/object/" + url.PathEscape(c.bucket) + "/" + escapePath(path)

	resp, err := c.send(ctx, http.MethodGet, fullURL, nil, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return data, nil
}

// escapePath escapes each segment of an object path while keeping the
// segment separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
