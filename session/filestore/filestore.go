package filestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jrsteele09/go-portal-client/session"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	documentVersion = 1
	saltLength      = 16

	// argon2id parameters for deriving the file key from the passphrase
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrDecrypt is returned when the session file cannot be opened with the
// configured passphrase.
var ErrDecrypt = errors.New("session file cannot be decrypted")

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// document is the on-disk layout. Plain files carry Entries; encrypted
// files carry Sealed (nonce followed by ciphertext of the entries JSON).
type document struct {
	Version int                      `json:"version"`
	Salt    []byte                   `json:"salt,omitempty"`
	Sealed  []byte                   `json:"sealed,omitempty"`
	Entries map[string]session.Entry `json:"entries,omitempty"`
}

// Store is a session.Storage backed by a single JSON file, optionally
// encrypted with XChaCha20-Poly1305 under an argon2id-derived key. Writes
// replace the file atomically.
type Store struct {
	path string
	salt []byte
	aead cipher.AEAD
	mu   sync.Mutex
}

var _ session.Storage = (*Store)(nil)

// New opens (or prepares to create) the session file at path. An empty
// passphrase stores entries in plain text.
func New(path, passphrase string) (*Store, error) {
	if path == "" {
		return nil, errors.New("[filestore New] path is required")
	}
	s := &Store{path: path}
	if passphrase == "" {
		return s, nil
	}

	doc, err := s.readDocument()
	if err != nil {
		return nil, errors.Wrap(err, "[filestore New] failed to read session file")
	}
	s.salt = doc.Salt
	if len(s.salt) == 0 {
		s.salt = make([]byte, saltLength)
		if _, err := rand.Read(s.salt); err != nil {
			return nil, errors.Wrap(err, "[filestore New] failed to generate salt")
		}
	}

	key := argon2.IDKey([]byte(passphrase), s.salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	s.aead, err = chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "[filestore New] failed to create cipher")
	}
	return s, nil
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(_ context.Context, name string) (*http.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	e, ok := entries[name]
	if !ok {
		return nil, session.ErrNotFound
	}
	c := e.Cookie(name)
	if session.Expired(c, NowTimeFunc()) {
		return nil, session.ErrNotFound
	}
	return c, nil
}

func (s *Store) Set(_ context.Context, cookie *http.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[cookie.Name] = session.EntryFromCookie(cookie)
	return s.save(entries)
}

func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[name]; !ok {
		return nil
	}
	delete(entries, name)
	return s.save(entries)
}

func (s *Store) readDocument() (*document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{Version: documentVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "malformed session file")
	}
	return &doc, nil
}

// load returns the live entries, dropping expired ones.
func (s *Store) load() (map[string]session.Entry, error) {
	doc, err := s.readDocument()
	if err != nil {
		return nil, errors.Wrap(err, "[filestore] failed to read session file")
	}

	entries := doc.Entries
	if len(doc.Sealed) > 0 {
		if s.aead == nil {
			return nil, errors.Wrap(ErrDecrypt, "no passphrase configured")
		}
		if entries, err = s.open(doc.Sealed); err != nil {
			return nil, err
		}
	}
	if entries == nil {
		entries = make(map[string]session.Entry)
	}

	now := NowTimeFunc()
	for name, e := range entries {
		if session.Expired(e.Cookie(name), now) {
			delete(entries, name)
		}
	}
	return entries, nil
}

func (s *Store) save(entries map[string]session.Entry) error {
	doc := document{Version: documentVersion}
	if s.aead != nil {
		sealed, err := s.seal(entries)
		if err != nil {
			return err
		}
		doc.Salt = s.salt
		doc.Sealed = sealed
	} else {
		doc.Entries = entries
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[filestore] failed to encode session file")
	}
	return writeAtomic(s.path, raw)
}

func (s *Store) seal(entries map[string]session.Entry) ([]byte, error) {
	plain, err := json.Marshal(entries)
	if err != nil {
		return nil, errors.Wrap(err, "[filestore] failed to encode entries")
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "[filestore] failed to generate nonce")
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Store) open(sealed []byte) (map[string]session.Entry, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrDecrypt
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	var entries map[string]session.Entry
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, errors.Wrap(ErrDecrypt, err.Error())
	}
	return entries, nil
}

// writeAtomic writes data to a temp file next to path and renames it into
// place, so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "[filestore] failed to create session directory")
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return errors.Wrap(err, "[filestore] failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore] failed to write session file")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore] failed to set session file mode")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[filestore] failed to close session file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "[filestore] failed to replace session file")
}
