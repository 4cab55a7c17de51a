package testutil

// Key material for tests only. 32 bytes each, valid for both the credential
// store (AES-256) and the history signer (HMAC-SHA256).
const (
	TestEncryptionKey = "12345678901234567890123456789012"
	TestSigningKey    = "test-signing-key-1234567890123456"
)
