// Package vault stores wallet credentials encrypted at rest. Each (owner,
// network) pair owns one JSON file holding the plaintext address and
// verification key next to an opaque blob carrying the recovery phrase. The
// plaintext phrase never touches disk; only Decrypt reconstructs it, in
// memory, on demand.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	masumi "github.com/masumi-network/masumi-go"
)

// Blob layout: salt(16) || iv(12) || authTag(16) || ciphertext, base64
// standard encoding. The byte order is an on-disk contract shared with other
// implementations and must not change.
const (
	saltSize  = 16
	nonceSize = 12
	tagSize   = 16

	pbkdf2Iterations = 100000
	keySize          = 32
)

// ErrDecryption reports an authentication tag mismatch: the blob was
// tampered with or the vault key is wrong. Never ignored silently.
var ErrDecryption = errors.New("vault: decryption failed")

// ErrNotFound reports a missing credential for an (owner, network) pair.
var ErrNotFound = errors.New("vault: credential not found")

// Config configures a vault.
type Config struct {
	// Dir is the directory credentials are stored in. Required; created
	// with 0700 permissions on first use.
	Dir string

	// Passphrase derives the encryption key. Required - there is no
	// insecure default.
	Passphrase string
}

// Credential is one stored wallet identity. Address and verification key are
// not sensitive and stay in plaintext; the recovery phrase lives only inside
// the encrypted blob.
type Credential struct {
	OwnerIdentifier string         `json:"ownerIdentifier"`
	Network         masumi.Network `json:"network"`
	Address         string         `json:"address"`
	VerificationKey string         `json:"verificationKey"`
	APIKey          string         `json:"apiKey,omitempty"`
	RegistryURL     string         `json:"registryUrl,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`

	// EncryptedPhrase is the base64 salt||iv||authTag||ciphertext blob.
	EncryptedPhrase string `json:"encryptedPhrase"`
}

// Vault encrypts and persists credentials. Concurrent writers to the same
// (owner, network) pair are not supported; callers serialize updates.
type Vault struct {
	dir        string
	passphrase string
}

// New creates a vault. An empty passphrase is a configuration error rather
// than a silent insecure default.
func New(config *Config) (*Vault, error) {
	if config == nil || config.Dir == "" {
		return nil, &masumi.ConfigurationError{Field: "Dir", Message: "vault directory is required"}
	}
	if config.Passphrase == "" {
		return nil, &masumi.ConfigurationError{Field: "Passphrase", Message: "vault passphrase is required"}
	}
	return &Vault{dir: config.Dir, passphrase: config.Passphrase}, nil
}

// Store encrypts the recovery phrase and writes the credential's file,
// replacing any previous record for the same (owner, network) pair. The
// write is atomic: a temp file is renamed over the target.
func (v *Vault) Store(cred Credential, recoveryPhrase string) error {
	if cred.OwnerIdentifier == "" || cred.Network == "" {
		return &masumi.ValidationError{Message: "owner identifier and network are required"}
	}
	if recoveryPhrase == "" {
		return &masumi.ValidationError{Message: "recovery phrase is required"}
	}

	blob, err := v.encrypt(recoveryPhrase)
	if err != nil {
		return err
	}
	cred.EncryptedPhrase = blob

	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	return v.write(cred)
}

// Load reads the credential for an (owner, network) pair. The recovery
// phrase stays encrypted; use RecoveryPhrase to decrypt it.
func (v *Vault) Load(owner string, network masumi.Network) (Credential, error) {
	raw, err := os.ReadFile(v.path(owner, network))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credential{}, fmt.Errorf("%w: %s/%s", ErrNotFound, owner, network)
		}
		return Credential{}, err
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, fmt.Errorf("vault: corrupt credential file: %w", err)
	}
	return cred, nil
}

// RecoveryPhrase decrypts and returns the stored phrase.
func (v *Vault) RecoveryPhrase(owner string, network masumi.Network) (string, error) {
	cred, err := v.Load(owner, network)
	if err != nil {
		return "", err
	}
	return v.decrypt(cred.EncryptedPhrase)
}

// UpdateMetadata rewrites the non-secret fields of a credential in place.
// The encrypted blob is carried over untouched; metadata updates never
// re-encrypt.
func (v *Vault) UpdateMetadata(owner string, network masumi.Network, update func(*Credential)) (Credential, error) {
	cred, err := v.Load(owner, network)
	if err != nil {
		return Credential{}, err
	}
	blob := cred.EncryptedPhrase
	createdAt := cred.CreatedAt

	update(&cred)

	cred.OwnerIdentifier = owner
	cred.Network = network
	cred.EncryptedPhrase = blob
	cred.CreatedAt = createdAt
	cred.UpdatedAt = time.Now().UTC()

	if err := v.write(cred); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// Delete removes the credential file for an (owner, network) pair.
func (v *Vault) Delete(owner string, network masumi.Network) error {
	err := os.Remove(v.path(owner, network))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, owner, network)
	}
	return err
}

// List returns every stored credential.
func (v *Vault) List() ([]Credential, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var creds []Credential
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(v.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var cred Credential
		if err := json.Unmarshal(raw, &cred); err != nil {
			return nil, fmt.Errorf("vault: corrupt credential file %s: %w", entry.Name(), err)
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func (v *Vault) write(cred Credential) error {
	if err := os.MkdirAll(v.dir, 0o700); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}

	path := v.path(cred.OwnerIdentifier, cred.Network)
	tmp, err := os.CreateTemp(v.dir, "credential-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (v *Vault) path(owner string, network masumi.Network) string {
	name := fmt.Sprintf("%s_%s.json", sanitize(owner), sanitize(strings.ToLower(string(network))))
	return filepath.Join(v.dir, name)
}

// sanitize keeps file names flat regardless of what an owner identifier
// contains.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, s)
}

// encrypt seals plaintext with AES-256-GCM under a fresh salt and nonce.
func (v *Vault) encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	gcm, err := v.aead(salt)
	if err != nil {
		return "", err
	}

	// Seal appends the tag after the ciphertext; the blob layout wants it
	// in front, so split and reorder.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, saltSize+nonceSize+tagSize+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// decrypt opens a salt||iv||authTag||ciphertext blob. Any authentication
// failure surfaces as ErrDecryption.
func (v *Vault) decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrDecryption)
	}
	if len(blob) < saltSize+nonceSize+tagSize {
		return "", fmt.Errorf("%w: blob too short", ErrDecryption)
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	tag := blob[saltSize+nonceSize : saltSize+nonceSize+tagSize]
	ciphertext := blob[saltSize+nonceSize+tagSize:]

	gcm, err := v.aead(salt)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}

func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(v.passphrase), salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
