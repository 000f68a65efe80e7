package facegate

import (
	"context"
	"fmt"
)

// Profile is the remote enrollment profile bound to the product key.
// ImagePaths and WrappedKeys are index-aligned: WrappedKeys[i] unwraps
// the image stored at ImagePaths[i].
type Profile struct {
	UserID      string
	UpdatedAt   string
	ImagePaths  []string
	WrappedKeys []string
}

// FetchProfile resolves the product key to a user and returns that
// user's enrollment profile. The profile is not validated; Enroll does
// that before touching any item.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	userID, err := c.apiClient.ResolveUserID(ctx, c.productKey)
	if err != nil {
		return nil, wrapError(err)
	}
	p, err := c.apiClient.GetProfile(ctx, userID)
	if err != nil {
		return nil, wrapError(err)
	}

	return &Profile{
		UserID:      p.UserID,
		UpdatedAt:   p.UpdatedAt,
		ImagePaths:  p.ImagePaths,
		WrappedKeys: p.WrappedKeys,
	}, nil
}

// validateProfile checks the index-aligned item lists before any item
// is processed. All problems are reported at once.
func validateProfile(p *Profile) error {
	var errs []string

	n := len(p.ImagePaths)
	if n < MinItems || n > MaxItems {
		errs = append(errs, fmt.Sprintf("profile has %d reference images, want %d to %d",
			n, MinItems, MaxItems))
	}
	if len(p.WrappedKeys) != n {
		errs = append(errs, fmt.Sprintf("%d reference images but %d wrapped keys",
			n, len(p.WrappedKeys)))
	}
	for i, path := range p.ImagePaths {
		if path == "" {
			errs = append(errs, fmt.Sprintf("item %d: empty image path", i))
		}
	}
	for i, key := range p.WrappedKeys {
		if key == "" {
			errs = append(errs, fmt.Sprintf("item %d: empty wrapped key", i))
		}
	}
	if p.UpdatedAt == "" {
		errs = append(errs, "missing updated_at timestamp")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// galleryCurrent reports whether the stored gallery was enrolled from
// the profile version with the given timestamp. The stamps must match
// byte for byte. A store error logs a warning and reports not current.
func (c *Client) galleryCurrent(ctx context.Context, updatedAt string) bool {
	stamp, err := c.store.Stamp(ctx)
	if err != nil {
		c.logger.Warn("gallery currency check failed", "error", err)
		return false
	}
	return stamp != "" && stamp == updatedAt
}
