package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/scrypt"

	"devteam/pkg/logx"
)

// Secrets file configuration.
const (
	SecretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

var (
	// ErrSecretNotFound is returned when a secret is in neither the file nor the environment.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrBadPassword is returned when the secrets file cannot be authenticated.
	ErrBadPassword = errors.New("wrong password or corrupted secrets file")
)

// Secrets holds decrypted secrets in memory. Lookups fall back to the environment.
type Secrets struct {
	mu     sync.RWMutex
	values map[string]string
	getenv func(string) string
}

// NewSecrets returns a Secrets seeded with values.
func NewSecrets(values map[string]string) *Secrets {
	s := &Secrets{values: make(map[string]string, len(values)), getenv: os.Getenv}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Get returns a secret value by name using standard precedence:
// 1. Decrypted secrets (in memory)
// 2. Environment variables.
func (s *Secrets) Get(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrSecretNotFound)
	}
	if s != nil {
		s.mu.RLock()
		value := s.values[name]
		s.mu.RUnlock()
		if value != "" {
			return value, nil
		}
	}

	getenv := os.Getenv
	if s != nil && s.getenv != nil {
		getenv = s.getenv
	}
	if value := getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s not in secrets file or environment", ErrSecretNotFound, name)
}

// Set stores a secret in memory.
func (s *Secrets) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Delete removes a secret from memory.
func (s *Secrets) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Names returns the sorted secret names (not values).
func (s *Secrets) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save encrypts the in-memory secrets to the project's secrets file.
func (s *Secrets) Save(projectDir, password string) error {
	s.mu.RLock()
	snapshot := make(map[string]string, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.RUnlock()
	return EncryptSecretsFile(projectDir, password, snapshot)
}

// LoadSecrets decrypts the project's secrets file. A missing file yields an empty,
// env-backed Secrets.
func LoadSecrets(projectDir, password string) (*Secrets, error) {
	if !SecretsFileExists(projectDir) {
		return NewSecrets(nil), nil
	}
	values, err := DecryptSecretsFile(projectDir, password)
	if err != nil {
		return nil, err
	}
	return NewSecrets(values), nil
}

// SecretsPath returns <projectDir>/.devteam/secrets.json.enc.
func SecretsPath(projectDir string) string {
	return filepath.Join(projectDir, ProjectConfigDir, SecretsFileName)
}

// SecretsFileExists checks if secrets.json.enc exists in the project directory.
func SecretsFileExists(projectDir string) bool {
	_, err := os.Stat(SecretsPath(projectDir))
	return err == nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptSecretsFile encrypts and saves secrets to .devteam/secrets.json.enc with mode 0600.
// File layout: [salt][nonce][ciphertext+tag].
func EncryptSecretsFile(projectDir, password string, secrets map[string]string) error {
	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(passwordBytes, salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer zero(plaintext)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	path := SecretsPath(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", ProjectConfigDir, err)
	}
	if err := os.WriteFile(path, fileData, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile decrypts and returns secrets from .devteam/secrets.json.enc.
// Loose file permissions are corrected to 0600.
func DecryptSecretsFile(projectDir, password string) (map[string]string, error) {
	path := SecretsPath(projectDir)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0o600 {
		logx.NewLogger("config").Warn("Secrets file has incorrect permissions (found: %04o, expected: 0600), fixing", info.Mode().Perm())
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(fileData) < saltSize+nonceSize+1 {
		return nil, fmt.Errorf("secrets file too short: %w", ErrBadPassword)
	}

	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	gcm, err := newGCM(passwordBytes, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassword
	}
	defer zero(plaintext)

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets JSON: %w", err)
	}
	return secrets, nil
}
