package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// testPrivateKey returns a shared RSA key so each test does not pay for
// its own key generation.
func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, KeyBits)
	})
	if testKeyErr != nil {
		t.Fatalf("generate test key: %v", testKeyErr)
	}
	return testKey
}

// encryptRaw CBC-encrypts plaintext without adding padding, for crafting
// items that decrypt to a chosen padded byte sequence.
func encryptRaw(t *testing.T, key, padded []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	iv := bytes.Repeat([]byte{0x24}, IVSize)
	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return out
}

func TestItemRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := NewItemKey()
	if err != nil {
		t.Fatalf("NewItemKey: %v", err)
	}

	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"one byte", 1},
		{"one under block", 15},
		{"exact block", 16},
		{"one over block", 17},
		{"several blocks", 48},
		{"unaligned large", 1000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			plaintext := make([]byte, tt.size)
			if _, err := rand.Read(plaintext); err != nil {
				t.Fatalf("rand.Read: %v", err)
			}

			blob, err := EncryptItem(plaintext, key)
			if err != nil {
				t.Fatalf("EncryptItem: %v", err)
			}
			if got := len(blob); got < IVSize+BlockSize || (got-IVSize)%BlockSize != 0 {
				t.Errorf("blob length = %d, want IV plus whole blocks", got)
			}

			got, _, err := DecryptItem(blob, key)
			if err != nil {
				t.Fatalf("DecryptItem: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(plaintext))
			}
		})
	}
}

func TestEncryptItemFreshIV(t *testing.T) {
	t.Parallel()

	key, err := NewItemKey()
	if err != nil {
		t.Fatalf("NewItemKey: %v", err)
	}
	plaintext := []byte("same plaintext both times")

	a, err := EncryptItem(plaintext, key)
	if err != nil {
		t.Fatalf("EncryptItem: %v", err)
	}
	b, err := EncryptItem(plaintext, key)
	if err != nil {
		t.Fatalf("EncryptItem: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical blobs")
	}
}

func TestDecryptItemFormat(t *testing.T) {
	t.Parallel()

	key, err := NewItemKey()
	if err != nil {
		t.Fatalf("NewItemKey: %v", err)
	}

	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("jfif body")...)
	blob, err := EncryptItem(jpeg, key)
	if err != nil {
		t.Fatalf("EncryptItem: %v", err)
	}

	_, format, err := DecryptItem(blob, key)
	if err != nil {
		t.Fatalf("DecryptItem: %v", err)
	}
	if format != FormatJPEG {
		t.Errorf("format = %q, want %q", format, FormatJPEG)
	}
}

func TestDecryptItemInvalidPadding(t *testing.T) {
	t.Parallel()

	key, err := NewItemKey()
	if err != nil {
		t.Fatalf("NewItemKey: %v", err)
	}

	block := func(last byte) []byte {
		b := bytes.Repeat([]byte{0xAA}, BlockSize)
		b[BlockSize-1] = last
		return b
	}
	mismatched := bytes.Repeat([]byte{0x04}, BlockSize)
	mismatched[BlockSize-2] = 0x05 // pad claims 4 bytes but one differs

	tests := []struct {
		name   string
		padded []byte
	}{
		{"pad byte zero", block(0x00)},
		{"pad byte over block size", block(0x11)},
		{"pad byte far too large", block(0xFF)},
		{"pad bytes disagree", mismatched},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			blob := encryptRaw(t, key, tt.padded)
			plaintext, _, err := DecryptItem(blob, key)
			if !errors.Is(err, ErrInvalidPadding) {
				t.Errorf("err = %v, want ErrInvalidPadding", err)
			}
			if plaintext != nil {
				t.Errorf("got partial plaintext of %d bytes, want none", len(plaintext))
			}
		})
	}
}

func TestDecryptItemFullPadBlock(t *testing.T) {
	t.Parallel()

	key, err := NewItemKey()
	if err != nil {
		t.Fatalf("NewItemKey: %v", err)
	}

	// A single block of 0x10 bytes is the valid padding of an empty
	// plaintext.
	blob := encryptRaw(t, key, bytes.Repeat([]byte{0x10}, BlockSize))
	plaintext, _, err := DecryptItem(blob, key)
	if err != nil {
		t.Fatalf("DecryptItem: %v", err)
	}
	if len(plaintext) != 0 {
		t.Errorf("plaintext = %d bytes, want empty", len(plaintext))
	}
}

func TestDecryptItemSizeChecks(t *testing.T) {
	t.Parallel()

	key, err := NewItemKey()
	if err != nil {
		t.Fatalf("NewItemKey: %v", err)
	}

	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{"empty", nil, ErrCiphertextSize},
		{"iv only", make([]byte, IVSize), ErrCiphertextSize},
		{"body under one block", make([]byte, IVSize+BlockSize-1), ErrCiphertextSize},
		{"body not block aligned", make([]byte, IVSize+BlockSize+5), ErrCiphertextSize},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, _, err := DecryptItem(tt.blob, key); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("bad key size", func(t *testing.T) {
		t.Parallel()

		blob := make([]byte, IVSize+BlockSize)
		if _, _, err := DecryptItem(blob, make([]byte, 7)); !errors.Is(err, ErrKeySize) {
			t.Errorf("err = %v, want ErrKeySize", err)
		}
	})
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	t.Parallel()

	priv := testPrivateKey(t)

	for _, size := range []int{16, 24, 32} {
		key := make([]byte, size)
		if _, err := rand.Read(key); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}

		wrapped, err := WrapKey(key, &priv.PublicKey)
		if err != nil {
			t.Fatalf("WrapKey(%d bytes): %v", size, err)
		}
		if len(wrapped) != WrappedKeySize {
			t.Errorf("wrapped length = %d, want %d", len(wrapped), WrappedKeySize)
		}

		got, err := UnwrapKey(wrapped, priv)
		if err != nil {
			t.Fatalf("UnwrapKey(%d bytes): %v", size, err)
		}
		if !bytes.Equal(got, key) {
			t.Errorf("unwrapped key differs from original (%d bytes)", size)
		}
	}
}

func TestUnwrapKeyConstantShapeFailure(t *testing.T) {
	t.Parallel()

	priv := testPrivateKey(t)

	key := make([]byte, ItemKeySize)
	wrapped, err := WrapKey(key, &priv.PublicKey)
	if err != nil {
		t.Fatalf("WrapKey: %v", err)
	}

	corrupted := bytes.Clone(wrapped)
	corrupted[10] ^= 0x01

	otherKey, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		t.Fatalf("generate second key: %v", err)
	}

	tests := []struct {
		name    string
		wrapped []byte
		priv    *rsa.PrivateKey
	}{
		{"short ciphertext", wrapped[:WrappedKeySize-1], priv},
		{"long ciphertext", append(bytes.Clone(wrapped), 0x00), priv},
		{"corrupted ciphertext", corrupted, priv},
		{"wrong private key", wrapped, otherKey},
		{"nil private key", wrapped, nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := UnwrapKey(tt.wrapped, tt.priv)
			// Every failure mode must surface the same bare sentinel.
			if err != ErrKeyUnwrap {
				t.Errorf("err = %v, want ErrKeyUnwrap exactly", err)
			}
			if got != nil {
				t.Error("got key material from a failed unwrap")
			}
		})
	}
}

func TestWrapKeyBadSize(t *testing.T) {
	t.Parallel()

	priv := testPrivateKey(t)
	if _, err := WrapKey(make([]byte, 20), &priv.PublicKey); !errors.Is(err, ErrKeySize) {
		t.Errorf("err = %v, want ErrKeySize", err)
	}
}

func TestZero(t *testing.T) {
	t.Parallel()

	b := []byte{1, 2, 3, 4}
	Zero(b)
	if !bytes.Equal(b, make([]byte, 4)) {
		t.Errorf("Zero left %v", b)
	}
}

func TestDeriveKey(t *testing.T) {
	t.Parallel()

	secret := []byte("device key material")

	a, err := DeriveKey(secret, nil, []byte(AuditSeedContext), 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	b, err := DeriveKey(secret, nil, []byte(AuditSeedContext), 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same inputs derived different keys")
	}
	if len(a) != 32 {
		t.Errorf("derived key length = %d, want 32", len(a))
	}

	c, err := DeriveKey(secret, nil, []byte("other context"), 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Error("different info strings derived the same key")
	}
}
