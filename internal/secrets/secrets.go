// Package secrets stores the Notion API token encrypted on disk using
// AES-256-GCM. The key lives next to the token with 0600 permissions and
// is generated on first use.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// EnvToken overrides the stored token, useful for CI and one-off runs.
	EnvToken = "KOBO_NOTION_TOKEN"

	keySize       = 32 // AES-256
	tokenFileName = "notion-token.enc"
	keyFileName   = ".token-key"
)

var (
	// ErrNoToken is returned when no token has been stored and the
	// environment override is unset.
	ErrNoToken = errors.New("no API token configured, run setup first")

	errCiphertextTooShort = errors.New("ciphertext too short")
)

// Store persists a single API token under the given directory.
type Store struct {
	dir string
}

// NewStore creates a token store rooted at dir, usually the config
// directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) tokenPath() string { return filepath.Join(s.dir, tokenFileName) }
func (s *Store) keyPath() string   { return filepath.Join(s.dir, keyFileName) }

// Get returns the API token: the environment override when set, otherwise
// the decrypted stored token.
func (s *Store) Get() (string, error) {
	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}

	data, err := os.ReadFile(s.tokenPath())
	if os.IsNotExist(err) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	key, err := s.loadKey()
	if err != nil {
		return "", err
	}

	token, err := decrypt(key, string(data))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return token, nil
}

// Put encrypts and stores the token, creating the key on first use.
func (s *Store) Put(token string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create secrets dir: %w", err)
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}

	encrypted, err := encrypt(key, token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	if err := os.WriteFile(s.tokenPath(), []byte(encrypted), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete removes the stored token. Missing files are not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.tokenPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func (s *Store) loadKey() ([]byte, error) {
	encoded, err := os.ReadFile(s.keyPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption key: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes", keySize)
	}
	return key, nil
}

func (s *Store) loadOrCreateKey() ([]byte, error) {
	if key, err := s.loadKey(); err == nil {
		return key, nil
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(s.keyPath(), []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to save encryption key: %w", err)
	}
	return key, nil
}

// encrypt seals the plaintext with AES-256-GCM, nonce prepended, and
// returns base64.
func encrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func decrypt(key []byte, encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(sealed) < gcm.NonceSize() {
		return "", errCiphertextTooShort
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
