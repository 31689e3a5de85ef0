package securestore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltLen = 16
	keyLen  = chacha20poly1305.KeySize

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// ErrDecrypt is returned when the file cannot be opened with the passphrase.
var ErrDecrypt = errors.New("securestore: cannot decrypt store (wrong passphrase or corrupt file)")

// File is an encrypted single-file Store, the desktop stand-in for encrypted
// shared preferences. Layout: salt(16) || nonce(24) || XChaCha20-Poly1305(json map).
// The key is derived from the passphrase with Argon2id.
type File struct {
	path       string
	passphrase []byte

	mu   sync.Mutex
	salt []byte
	key  []byte
}

// NewFile returns a File store at path. The file is created on first Set.
func NewFile(path string, passphrase []byte) (*File, error) {
	if path == "" {
		return nil, errors.New("securestore: empty path")
	}
	if len(passphrase) == 0 {
		return nil, errors.New("securestore: empty passphrase")
	}
	return &File{path: path, passphrase: append([]byte(nil), passphrase...)}, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return nil, err
	}
	v, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return err
	}
	m[key] = append([]byte(nil), value...)
	return f.write(m)
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return f.write(m)
}

// read loads and decrypts the whole map. A missing file is an empty map.
func (f *File) read() (map[string][]byte, error) {
	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("securestore: read %s: %w", f.path, err)
	}
	if len(blob) < saltLen+chacha20poly1305.NonceSizeX {
		return nil, ErrDecrypt
	}
	salt := blob[:saltLen]
	nonce := blob[saltLen : saltLen+chacha20poly1305.NonceSizeX]
	ct := blob[saltLen+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(f.keyFor(salt))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, ct, salt)
	if err != nil {
		return nil, ErrDecrypt
	}
	m := map[string][]byte{}
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("securestore: decode: %w", err)
	}
	return m, nil
}

// write encrypts m and replaces the file via rename so readers never see a
// half-written store.
func (f *File) write(m map[string][]byte) error {
	plain, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if f.salt == nil {
		salt := make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		f.salt = salt
	}
	aead, err := chacha20poly1305.NewX(f.keyFor(f.salt))
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	out := make([]byte, 0, saltLen+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, f.salt...)
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plain, f.salt)...)

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("securestore: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".securestore-*")
	if err != nil {
		return fmt.Errorf("securestore: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("securestore: write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// keyFor returns the Argon2id key for salt, reusing the cached one when the
// salt has not changed. read always runs before write, so an existing file's
// salt is adopted before the first rewrite.
func (f *File) keyFor(salt []byte) []byte {
	if f.key != nil && bytes.Equal(f.salt, salt) {
		return f.key
	}
	f.salt = append([]byte(nil), salt...)
	f.key = argon2.IDKey(f.passphrase, f.salt, argonTime, argonMemory, argonThreads, keyLen)
	return f.key
}
