package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Well-known credential keys.
const (
	KeyPrivateKey    = "poly.private_key"
	KeyAPIKey        = "poly.api_key"
	KeyAPISecret     = "poly.api_secret"
	KeyAPIPassphrase = "poly.api_passphrase"
	KeyFunderAddress = "poly.funder_address"
)

// Store keeps trading credentials encrypted at rest. Encryption comes from
// Badger's own options (value log + key registry), not from this wrapper.
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil opens the DB unencrypted
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads.
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("secretstore: key is empty")
	}
	var out string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

func (s *Store) Set(key, val string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: key is empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

// Credentials is the bundle the order gateway needs to sign and authenticate.
type Credentials struct {
	PrivateKey    string
	APIKey        string
	APISecret     string
	APIPassphrase string
	FunderAddress string
}

// LoadCredentials reads the well-known keys; missing keys stay empty so the
// caller can fall back to config/env values.
func (s *Store) LoadCredentials() (Credentials, error) {
	var c Credentials
	for _, kv := range []struct {
		key string
		dst *string
	}{
		{KeyPrivateKey, &c.PrivateKey},
		{KeyAPIKey, &c.APIKey},
		{KeyAPISecret, &c.APISecret},
		{KeyAPIPassphrase, &c.APIPassphrase},
		{KeyFunderAddress, &c.FunderAddress},
	} {
		v, ok, err := s.Get(kv.key)
		if err != nil {
			return Credentials{}, err
		}
		if ok {
			*kv.dst = v
		}
	}
	return c, nil
}

// ParseKey decodes a 32-byte encryption key from hex (0x-prefixed or bare)
// or standard base64. Empty input returns nil, nil.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
