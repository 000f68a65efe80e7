package envelope

const (
	// KeyBits is the RSA modulus size in bits for device keypairs.
	KeyBits = 2048
	// WrappedKeySize is the size of a wrapped item key in bytes, equal to
	// the RSA modulus size.
	WrappedKeySize = KeyBits / 8

	// IVSize is the size of the CBC initialization vector in bytes.
	IVSize = 16
	// BlockSize is the AES block size in bytes.
	BlockSize = 16

	// ItemKeySize is the size of a freshly generated item key in bytes
	// (AES-256). Unwrapping also accepts 16 and 24 byte keys.
	ItemKeySize = 32
)

// AuditSeedContext is the HKDF info string for deriving the audit-log
// signing seed from the device private key.
const AuditSeedContext = "facegate:audit-log:v1"
