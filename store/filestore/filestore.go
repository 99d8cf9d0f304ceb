package filestore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	internalerrors "github.com/jrsteele09/go-sso-client/internal/errors"
	"github.com/jrsteele09/go-sso-client/store"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var _ store.Repo = (*Store)(nil)

// Store keeps all rows in one JSON file, replaced atomically on every write.
// Values are sealed with secretbox when a key is configured.
type Store struct {
	path string
	key  *[32]byte
	lock sync.Mutex
}

type Option func(*Store) error

// WithHexKey seals values with the given hex encoded 32 byte key. An empty key is ignored.
func WithHexKey(hexKey string) Option {
	return func(s *Store) error {
		if hexKey == "" {
			return nil
		}
		b, err := hex.DecodeString(hexKey)
		if err != nil || len(b) != 32 {
			return internalerrors.Wrapf(internalerrors.ErrInvalidStoreKey, "[filestore.WithHexKey] expected 32 hex encoded bytes")
		}
		s.key = new([32]byte)
		copy(s.key[:], b)
		return nil
	}
}

func New(path string, options ...Option) (*Store, error) {
	if path == "" {
		return nil, internalerrors.Wrapf(internalerrors.ErrFieldNotSpecified, "[filestore.New] path")
	}
	s := &Store{path: path}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "filestore.New MkdirAll")
	}
	return s, nil
}

func (s *Store) Name() string {
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return s.path
	}
	return abs
}

func (s *Store) Get(key string) (string, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *Store) GetAll() (map[string]string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.load()
}

func (s *Store) PutAll(values map[string]string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	current, err := s.load()
	if err != nil {
		return err
	}
	changed := false
	for k, v := range values {
		if old, ok := current[k]; !ok || old != v {
			current[k] = v
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(current)
}

func (s *Store) Delete(keys ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	current, err := s.load()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := current[k]; ok {
			delete(current, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(current)
}

func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "Store.Clear Remove")
	}
	return nil
}

func (s *Store) load() (map[string]string, error) {
	values := make(map[string]string)
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store.load ReadFile")
	}
	var stored map[string]string
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, errors.Wrap(err, "Store.load Unmarshal")
	}
	for k, v := range stored {
		opened, err := s.open(v)
		if err != nil {
			return nil, errors.Wrapf(err, "Store.load open %s", k)
		}
		values[k] = opened
	}
	return values, nil
}

func (s *Store) save(values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		sv, err := s.seal(v)
		if err != nil {
			return err
		}
		sealed[k] = sv
	}
	b, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Store.save Marshal")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "Store.save CreateTemp")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "Store.save Write")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "Store.save Sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "Store.save Close")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "Store.save Rename")
	}
	return nil
}

func (s *Store) seal(value string) (string, error) {
	if s.key == nil {
		return value, nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errors.Wrap(err, "Store.seal rand")
	}
	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) open(value string) (string, error) {
	if s.key == nil {
		return value, nil
	}
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", errors.Wrap(err, "Store.open decode")
	}
	if len(b) < nonceSize {
		return "", internalerrors.ErrInvalidStoreKey
	}
	var nonce [nonceSize]byte
	copy(nonce[:], b[:nonceSize])
	opened, ok := secretbox.Open(nil, b[nonceSize:], &nonce, s.key)
	if !ok {
		return "", internalerrors.Wrapf(internalerrors.ErrInvalidStoreKey, "[Store.open] authentication failed")
	}
	return string(opened), nil
}
