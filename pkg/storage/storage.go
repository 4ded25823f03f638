// Package storage caches known-face descriptors so reference images are
// only encoded again when they change. Records can be encrypted at rest
// with NaCl secretbox.
package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MrCodeEU/facedetect/pkg/logging"
	"github.com/MrCodeEU/facedetect/pkg/recognition"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
)

// KnownFace is a cached reference descriptor.
type KnownFace struct {
	Name       string                 `json:"name"`
	Source     string                 `json:"source"`
	SHA256     string                 `json:"sha256"`
	Descriptor recognition.Descriptor `json:"descriptor"`
	EncodedAt  time.Time              `json:"encoded_at"`
}

// ErrNotFound is returned when no record exists for a name.
var ErrNotFound = errors.New("known face not cached")

// ErrStale is returned when the cached record was built from a different file.
var ErrStale = errors.New("cached known face is stale")

// ErrInvalidName is returned for names that cannot be used as file names.
var ErrInvalidName = errors.New("invalid known face name")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// FileStorage keeps one file per known face under <dir>/faces.
type FileStorage struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(dataDir string, encryptionEnabled bool) (*FileStorage, error) {
	fs := &FileStorage{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	if err := os.MkdirAll(fs.facesDir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create faces directory: %w", err)
	}

	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information,
// tying the cache to this machine and user.
func deriveKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("facedetect-v1-salt")

	hash := sha256.Sum256([]byte(identity.String()))
	copy(key[:], hash[:])

	return key, nil
}

// HashFile returns the hex SHA-256 of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (fs *FileStorage) facesDir() string {
	return filepath.Join(fs.dataDir, "faces")
}

func (fs *FileStorage) extension() string {
	if fs.encryptionEnabled {
		return ".enc"
	}
	return ".json"
}

func (fs *FileStorage) facePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(fs.facesDir(), name+fs.extension()), nil
}

// Save stores a known face, replacing any previous record of the same name.
func (fs *FileStorage) Save(known KnownFace) error {
	path, err := fs.facePath(known.Name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(known, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal known face: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt known face: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write known face: %w", err)
	}

	logging.Debugf("Cached descriptor for: %s", known.Name)
	return nil
}

// Load reads the record for name.
func (fs *FileStorage) Load(name string) (*KnownFace, error) {
	path, err := fs.facePath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read known face: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt known face: %w", err)
		}
	}

	var known KnownFace
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, fmt.Errorf("failed to unmarshal known face: %w", err)
	}
	return &known, nil
}

// Lookup returns the cached descriptor for name when it was built from a
// file with the given SHA-256.
func (fs *FileStorage) Lookup(name, sha string) (recognition.Descriptor, error) {
	known, err := fs.Load(name)
	if err != nil {
		return recognition.Descriptor{}, err
	}
	if known.SHA256 != sha {
		return recognition.Descriptor{}, ErrStale
	}
	return known.Descriptor, nil
}

// Delete removes the record for name.
func (fs *FileStorage) Delete(name string) error {
	path, err := fs.facePath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete known face: %w", err)
	}

	logging.Infof("Deleted cached known face: %s", name)
	return nil
}

// List returns the cached names in sorted order.
func (fs *FileStorage) List() ([]string, error) {
	entries, err := os.ReadDir(fs.facesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list known faces: %w", err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			names = append(names, strings.TrimSuffix(name, ".json"))
		} else if strings.HasSuffix(name, ".enc") {
			names = append(names, strings.TrimSuffix(name, ".enc"))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Clear removes every cached record and returns how many were removed.
func (fs *FileStorage) Clear() (int, error) {
	entries, err := os.ReadDir(fs.facesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list known faces: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".enc")) {
			continue
		}
		if err := os.Remove(filepath.Join(fs.facesDir(), name)); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed++
	}

	logging.Infof("Cleared %d cached known face(s)", removed)
	return removed, nil
}

func (fs *FileStorage) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey), nil
}

func (fs *FileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}
	return plaintext, nil
}
