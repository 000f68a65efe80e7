package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"strings"
)

// randReader is the random source used for key generation. It can be
// overridden for testing.
var randReader io.Reader = rand.Reader

// GenerateKey creates a new RSA-2048 device keypair.
func GenerateKey() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(randReader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return priv, nil
}

// ParsePrivateKey decodes private key material. It accepts a PEM block
// directly or the base64 wrapping of one, and understands PKCS#8 with a
// PKCS#1 fallback.
func ParsePrivateKey(material string) (*rsa.PrivateKey, error) {
	pemBytes, err := decodePEMMaterial(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKey, err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrPrivateKey)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrPrivateKey)
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKey, err)
	}
	return rsaKey, nil
}

// ParsePublicKey decodes public key material in the published form: a
// SubjectPublicKeyInfo PEM block, raw or base64-wrapped.
func ParsePublicKey(material string) (*rsa.PublicKey, error) {
	pemBytes, err := decodePEMMaterial(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublicKey, err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrPublicKey)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublicKey, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrPublicKey)
	}
	return rsaKey, nil
}

// MarshalPrivateKeyPEM encodes the private key as a PKCS#8 PEM block, the
// on-disk form of a provisioned device key.
func MarshalPrivateKeyPEM(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPrivateKey encodes the private key as base64-wrapped PKCS#8 PEM,
// the form carried in environment variables.
func MarshalPrivateKey(priv *rsa.PrivateKey) (string, error) {
	pemBytes, err := MarshalPrivateKeyPEM(priv)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pemBytes), nil
}

// MarshalPublicKey encodes the public key as base64-wrapped
// SubjectPublicKeyInfo PEM, the form published to the profile store.
func MarshalPublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return base64.StdEncoding.EncodeToString(pemBytes), nil
}

// Fingerprint returns a short hex digest of the public key, for logs.
func Fingerprint(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8])
}

// decodePEMMaterial returns the PEM text for material, base64-decoding it
// first when it is not already a PEM block.
func decodePEMMaterial(material string) ([]byte, error) {
	material = strings.TrimSpace(material)
	if strings.HasPrefix(material, "-----BEGIN") {
		return []byte(material), nil
	}
	return base64.StdEncoding.DecodeString(material)
}
