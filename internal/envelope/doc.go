// Package envelope implements the hybrid envelope scheme protecting
// reference images at rest.
//
// # Scheme
//
// Each stored item is encrypted under its own symmetric key:
//
//   - RSA-2048 OAEP (SHA-256 for both the digest and the mask generation
//     function, no label) wraps the per-item AES key under the device
//     public key.
//
//   - AES-CBC encrypts the item body. The first 16 bytes of an encrypted
//     item are the IV, the remainder is the ciphertext.
//
//   - PKCS#7 padding is validated strictly on removal: the final byte p
//     must satisfy 1 <= p <= 16 and all p pad bytes must equal p.
//
// Items are independent. Decrypting one never requires state from another,
// so callers may fan out across items sharing only the read-only private
// key.
//
// # Error discipline
//
// [UnwrapKey] collapses every failure into [ErrKeyUnwrap]. Reporting
// whether the length check, the OAEP decoding, or the key-size check
// failed would give a chosen-ciphertext attacker a decryption oracle; the
// caller only learns that the item is undecryptable.
//
// Padding removal never truncates on a malformed pad. A plaintext is
// returned only when the full PKCS#7 structure checks out; anything else
// is [ErrInvalidPadding] with no partial output.
//
// # Key material
//
// Device keys travel in two text forms: the private key as PKCS#8 PEM
// (kept local, optionally base64-wrapped for environment variables), the
// public key as base64-wrapped SubjectPublicKeyInfo PEM (published to the
// profile store). [ParsePrivateKey] and [ParsePublicKey] accept both the
// wrapped and the raw PEM form.
package envelope
