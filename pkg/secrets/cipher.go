package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrMasterKeyRequired is returned when no master key is configured
	ErrMasterKeyRequired = errors.New("secret store master key is required")

	// ErrCiphertextInvalid is returned when a stored value cannot be decrypted
	ErrCiphertextInvalid = errors.New("stored secret could not be decrypted")
)

var (
	kdfSalt = []byte("fern/secrets")
	kdfInfo = []byte("fern secret store v1")
)

// Cipher seals secret values with XChaCha20-Poly1305. The account key is bound
// as additional data so a ciphertext cannot be replayed under another account.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the encryption key from masterKey with HKDF-SHA256
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) == 0 {
		return nil, ErrMasterKeyRequired
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, kdfSalt, kdfInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive secret key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext for account. The nonce is prepended to the output.
func (c *Cipher) Seal(account string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, []byte(account)), nil
}

// Open decrypts a value produced by Seal for the same account
func (c *Cipher) Open(account string, sealed []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize+c.aead.Overhead() {
		return nil, ErrCiphertextInvalid
	}
	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], []byte(account))
	if err != nil {
		return nil, ErrCiphertextInvalid
	}
	return plaintext, nil
}
