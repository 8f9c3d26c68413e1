package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"retflow/internal/common"
)

const (
	// Keyring service name
	keyringService = "retflow"
	// Salt for key derivation
	saltSize = 32
	// Number of iterations for PBKDF2
	pbkdf2Iterations = 100000
	// Key size for AES-256
	keySize = 32
)

// Store handles secure storage and retrieval of pipeline credentials.
// It prefers the OS keyring and falls back to AES-GCM encrypted files
// under the config directory when no keyring backend is available.
type Store struct {
	useKeyring bool
	masterKey  []byte
}

// Credential represents a stored credential
type Credential struct {
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Value     string            `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Encrypted bool              `json:"encrypted"`
}

// NewStore creates a new credential store
func NewStore() (*Store, error) {
	s := &Store{
		useKeyring: isKeyringAvailable(),
	}

	// Initialize master key if not using system keyring
	if !s.useKeyring {
		key, err := s.getMasterKey()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize master key: %w", err)
		}
		s.masterKey = key
	}

	return s, nil
}

// Set securely stores a credential
func (s *Store) Set(name, kind, value string, metadata map[string]string) error {
	if s.useKeyring {
		return s.storeInKeyring(name, kind, value, metadata)
	}
	return s.storeEncrypted(name, kind, value, metadata)
}

// Get retrieves a stored credential
func (s *Store) Get(name string) (*Credential, error) {
	if s.useKeyring {
		return s.getFromKeyring(name)
	}
	return s.getEncrypted(name)
}

// Delete removes a stored credential
func (s *Store) Delete(name string) error {
	if s.useKeyring {
		if err := keyring.Delete(keyringService, name); err != nil {
			return err
		}
		return s.updateIndex(name, false)
	}
	return s.deleteEncrypted(name)
}

// List returns the names of stored credentials
func (s *Store) List() ([]string, error) {
	if s.useKeyring {
		// Keyring doesn't support listing, so we maintain a separate index
		return s.getIndex()
	}
	return s.listEncrypted()
}

// Keyring storage methods

func (s *Store) storeInKeyring(name, kind, value string, metadata map[string]string) error {
	cred := Credential{
		Name:      name,
		Kind:      kind,
		Value:     value,
		Metadata:  metadata,
		Encrypted: false,
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := keyring.Set(keyringService, name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	// Update index
	return s.updateIndex(name, true)
}

func (s *Store) getFromKeyring(name string) (*Credential, error) {
	data, err := keyring.Get(keyringService, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get from keyring: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return &cred, nil
}

// Encrypted file storage methods

func (s *Store) storeEncrypted(name, kind, value string, metadata map[string]string) error {
	// Encrypt the value
	encrypted, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	cred := Credential{
		Name:      name,
		Kind:      kind,
		Value:     encrypted,
		Metadata:  metadata,
		Encrypted: true,
	}

	// Store in file
	return s.saveCredentialFile(name, &cred)
}

func (s *Store) getEncrypted(name string) (*Credential, error) {
	cred, err := s.loadCredentialFile(name)
	if err != nil {
		return nil, err
	}

	if cred.Encrypted {
		decrypted, err := s.decrypt(cred.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential: %w", err)
		}
		cred.Value = decrypted
		cred.Encrypted = false
	}

	return cred, nil
}

func (s *Store) deleteEncrypted(name string) error {
	path := s.credentialPath(name)
	return os.Remove(path)
}

func (s *Store) listEncrypted() ([]string, error) {
	dir := s.credentialsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cred") {
			name := strings.TrimSuffix(entry.Name(), ".cred")
			names = append(names, name)
		}
	}

	return names, nil
}

// Encryption methods

func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.masterKey)
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

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, encryptedData := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encryptedData, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// Helper methods

func (s *Store) getMasterKey() ([]byte, error) {
	keyPath := s.masterKeyPath()

	// Validate path against credentials directory
	validatedPath, err := common.ValidatePath(keyPath, s.credentialsDir())
	if err != nil {
		return nil, fmt.Errorf("invalid master key path: %w", err)
	}

	// Check if master key exists
	data, err := os.ReadFile(validatedPath) // #nosec G304 - path is validated
	if err == nil {
		// Extract the key part (skip the salt)
		if len(data) != saltSize+keySize {
			return nil, fmt.Errorf("invalid master key file size")
		}
		return data[saltSize:], nil
	}

	// Generate new master key
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	// Derive key from machine-specific data
	machineID := getMachineID()
	key := pbkdf2.Key([]byte(machineID), salt, pbkdf2Iterations, keySize, sha256.New)

	// Store salt and key together
	keyData := append(salt, key...)
	if err := os.MkdirAll(s.credentialsDir(), common.DirPermissionSecure); err != nil {
		return nil, err
	}

	// Validate path before writing
	validatedWritePath, err := common.ValidatePath(keyPath, s.credentialsDir())
	if err != nil {
		return nil, fmt.Errorf("invalid master key path for writing: %w", err)
	}

	if err := os.WriteFile(validatedWritePath, keyData, common.FilePermissionSecure); err != nil { // #nosec G304
		return nil, err
	}

	return key, nil
}

func (s *Store) credentialsDir() string {
	home, _ := os.UserHomeDir()
	return fmt.Sprintf("%s/.retflow/credentials", home)
}

func (s *Store) credentialPath(name string) string {
	return fmt.Sprintf("%s/%s.cred", s.credentialsDir(), name)
}

func (s *Store) masterKeyPath() string {
	return fmt.Sprintf("%s/.master", s.credentialsDir())
}

func (s *Store) saveCredentialFile(name string, cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.credentialsDir(), common.DirPermissionSecure); err != nil {
		return err
	}

	path := s.credentialPath(name)
	// Validate path against credentials directory
	validatedPath, err := common.ValidatePath(path, s.credentialsDir())
	if err != nil {
		return fmt.Errorf("invalid credential file path: %w", err)
	}
	return os.WriteFile(validatedPath, data, common.FilePermissionSecure) // #nosec G304
}

func (s *Store) loadCredentialFile(name string) (*Credential, error) {
	path := s.credentialPath(name)
	// Validate path against credentials directory
	validatedPath, err := common.ValidatePath(path, s.credentialsDir())
	if err != nil {
		return nil, fmt.Errorf("invalid credential file path: %w", err)
	}
	data, err := os.ReadFile(validatedPath) // #nosec G304
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}

	return &cred, nil
}

func (s *Store) getIndex() ([]string, error) {
	indexPath := fmt.Sprintf("%s/.index", s.credentialsDir())
	// Validate path against credentials directory
	validatedPath, err := common.ValidatePath(indexPath, s.credentialsDir())
	if err != nil {
		return nil, fmt.Errorf("invalid index file path: %w", err)
	}
	data, err := os.ReadFile(validatedPath) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var index []string
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	return index, nil
}

func (s *Store) updateIndex(name string, add bool) error {
	index, err := s.getIndex()
	if err != nil {
		return err
	}

	// Update index
	found := false
	newIndex := []string{}
	for _, n := range index {
		if n == name {
			found = true
			if add {
				newIndex = append(newIndex, n)
			}
		} else {
			newIndex = append(newIndex, n)
		}
	}

	if add && !found {
		newIndex = append(newIndex, name)
	}

	// Save index
	data, err := json.Marshal(newIndex)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.credentialsDir(), common.DirPermissionSecure); err != nil {
		return err
	}

	indexPath := fmt.Sprintf("%s/.index", s.credentialsDir())
	// Validate path against credentials directory
	validatedPath, err := common.ValidatePath(indexPath, s.credentialsDir())
	if err != nil {
		return fmt.Errorf("invalid index file path: %w", err)
	}
	return os.WriteFile(validatedPath, data, common.FilePermissionSecure) // #nosec G304
}

// Platform-specific helpers

func isKeyringAvailable() bool {
	// Check if keyring usage is explicitly disabled
	if os.Getenv("RETFLOW_USE_KEYCHAIN") == "false" {
		return false
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		// Check if a supported keyring backend is available
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			return true
		}
	}
	return false
}

func getMachineID() string {
	// Get machine-specific identifier
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	// Combine with other system info
	data := fmt.Sprintf("%s-%s-%s-%s", hostname, user, runtime.GOOS, runtime.GOARCH)
	hash := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// Export exports all credentials encrypted with a backup password
func (s *Store) Export(password string) ([]byte, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}

	credentials := make(map[string]*Credential)
	for _, name := range names {
		cred, err := s.Get(name)
		if err != nil {
			return nil, err
		}
		credentials[name] = cred
	}

	// Marshal credentials
	data, err := json.Marshal(credentials)
	if err != nil {
		return nil, err
	}

	// Encrypt with password
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)

	// Prepend salt
	result := append(salt, ciphertext...)
	return result, nil
}

// Import imports credentials from an encrypted backup
func (s *Store) Import(data []byte, password string) error {
	if len(data) < saltSize {
		return fmt.Errorf("invalid backup data")
	}

	// Extract salt
	salt := data[:saltSize]
	ciphertext := data[saltSize:]

	// Derive key
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt: invalid password or corrupted data")
	}

	// Unmarshal credentials
	var credentials map[string]*Credential
	if err := json.Unmarshal(plaintext, &credentials); err != nil {
		return err
	}

	// Import each credential
	for name, cred := range credentials {
		if err := s.Set(name, cred.Kind, cred.Value, cred.Metadata); err != nil {
			return fmt.Errorf("failed to import credential %s: %w", name, err)
		}
	}

	return nil
}
