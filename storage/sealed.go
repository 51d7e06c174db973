package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/techsync/internal/util"
)

const (
	sealedKeyInfo   = "techsync:value-store:v1"
	sealedAADPrefix = "techsync:value:"
)

// ErrSealedCorrupt is returned when a stored value cannot be opened with the
// configured key.
var ErrSealedCorrupt = errors.New("sealed value cannot be opened")

// Sealed wraps a Repository and encrypts every value at rest with a key
// derived from an externally supplied secret. The derived key lives in a
// memguard enclave and is only unsealed for the duration of one operation.
type Sealed struct {
	inner Repository
	key   *memguard.Enclave
}

var _ Repository = (*Sealed)(nil)

// NewSealed derives the value key from secret with HKDF-SHA256. The caller
// keeps ownership of secret.
func NewSealed(inner Repository, secret []byte) (*Sealed, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("store secret must be at least 16 bytes, got %d", len(secret))
	}
	key, err := util.HKDF(secret, nil, []byte(sealedKeyInfo))
	if err != nil {
		return nil, fmt.Errorf("deriving store key: %w", err)
	}
	// NewEnclave wipes key.
	return &Sealed{inner: inner, key: memguard.NewEnclave(key)}, nil
}

func (s *Sealed) Get(key string) ([]byte, error) {
	data, err := s.inner.Get(key)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%s: %w", key, ErrSealedCorrupt)
	}

	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening store key: %w", err)
	}
	defer buf.Destroy()

	plain, err := OpenRecord(buf.Bytes(), &env, []byte(sealedAADPrefix+key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, errors.Join(ErrSealedCorrupt, err))
	}
	return plain, nil
}

func (s *Sealed) Put(key string, value []byte) error {
	buf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening store key: %w", err)
	}
	env, err := SealRecord(buf.Bytes(), value, []byte(sealedAADPrefix+key))
	buf.Destroy()
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.inner.Put(key, data)
}

func (s *Sealed) Delete(key string) error {
	return s.inner.Delete(key)
}
