package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"
)

// UnwrapKey recovers an item key from its RSA-OAEP wrapping. OAEP uses
// SHA-256 for both the digest and the mask generation function, with no
// label, matching the encryption side.
//
// Every failure returns ErrKeyUnwrap with no further detail; the caller
// cannot tell a wrong length from a failed OAEP decode.
func UnwrapKey(wrapped []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil || len(wrapped) != priv.Size() {
		return nil, ErrKeyUnwrap
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrapped, nil)
	if err != nil {
		return nil, ErrKeyUnwrap
	}

	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, ErrKeyUnwrap
}

// WrapKey encrypts an item key under the recipient's public key.
func WrapKey(key []byte, pub *rsa.PublicKey) ([]byte, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrKeySize, len(key))
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}
	return wrapped, nil
}

// DecryptItem recovers an item's plaintext. The first IVSize bytes of blob
// are the CBC initialization vector, the remainder is the ciphertext body,
// which must be a non-empty multiple of BlockSize.
//
// Returns the plaintext with padding removed, plus its sniffed Format.
func DecryptItem(blob, key []byte) ([]byte, Format, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, FormatUnknown, fmt.Errorf("%w: %d bytes", ErrKeySize, len(key))
	}
	if len(blob) < IVSize+BlockSize || (len(blob)-IVSize)%BlockSize != 0 {
		return nil, FormatUnknown, fmt.Errorf("%w: %d bytes", ErrCiphertextSize, len(blob))
	}

	iv, body := blob[:IVSize], blob[IVSize:]
	padded := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, body)

	plaintext, err := stripPadding(padded)
	if err != nil {
		return nil, FormatUnknown, err
	}
	return plaintext, DetectFormat(plaintext), nil
}

// EncryptItem is the encryption-side reciprocal of DecryptItem: it pads
// the plaintext, encrypts it under a fresh random IV and prepends the IV.
func EncryptItem(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeySize, len(key))
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	padded := padPlaintext(plaintext)
	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return out, nil
}

// NewItemKey generates a fresh AES-256 item key.
func NewItemKey() ([]byte, error) {
	key := make([]byte, ItemKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate item key: %w", err)
	}
	return key, nil
}

// padPlaintext appends PKCS#7 padding. The result is always at least one
// byte longer than the input and a multiple of BlockSize.
func padPlaintext(plaintext []byte) []byte {
	p := BlockSize - len(plaintext)%BlockSize
	padded := make([]byte, len(plaintext)+p)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(p)
	}
	return padded
}

// stripPadding validates and removes PKCS#7 padding. The final byte p must
// satisfy 1 <= p <= BlockSize and every one of the last p bytes must equal
// p. A zero or oversized pad byte is rejected, never truncated to "no
// padding", and no partial plaintext is ever returned.
func stripPadding(padded []byte) ([]byte, error) {
	if len(padded) == 0 || len(padded)%BlockSize != 0 {
		return nil, ErrInvalidPadding
	}
	p := int(padded[len(padded)-1])
	if p < 1 || p > BlockSize {
		return nil, ErrInvalidPadding
	}
	for _, b := range padded[len(padded)-p:] {
		if int(b) != p {
			return nil, ErrInvalidPadding
		}
	}
	return padded[:len(padded)-p], nil
}

// Zero overwrites b in place. Callers wipe unwrapped item keys as soon as
// the item is decrypted.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
