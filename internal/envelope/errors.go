package envelope

import "errors"

var (
	// ErrKeyUnwrap is returned for any failure to unwrap an item key.
	// The cause is not distinguished.
	ErrKeyUnwrap = errors.New("key unwrap failed")

	// ErrInvalidPadding is returned when a decrypted item carries
	// malformed padding.
	ErrInvalidPadding = errors.New("invalid padding")

	// ErrCiphertextSize is returned when an encrypted item is too short
	// or its body is not block-aligned.
	ErrCiphertextSize = errors.New("invalid ciphertext size")

	// ErrKeySize is returned when a symmetric key has an unsupported size.
	ErrKeySize = errors.New("invalid key size")

	// ErrPrivateKey is returned when private key material cannot be parsed.
	ErrPrivateKey = errors.New("invalid private key")

	// ErrPublicKey is returned when public key material cannot be parsed.
	ErrPublicKey = errors.New("invalid public key")
)
